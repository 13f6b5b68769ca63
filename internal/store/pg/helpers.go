package pg

// nilStr maps "" to NULL for optional text columns.
func nilStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// derefStr maps NULL back to "".
func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
