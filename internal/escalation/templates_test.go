package escalation

import (
	"testing"

	"pgregory.net/rapid"
)

// TestSelectFollowUp_Cyclic verifies that template selection rotates:
// count and count+N always pick the same template, and consecutive
// counts pick different ones.
func TestSelectFollowUp_Cyclic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		count := rapid.IntRange(0, 1000).Draw(rt, "count")
		n := FollowUpTemplateCount()

		if got, want := SelectFollowUp(count+n), SelectFollowUp(count); got != want {
			rt.Fatalf("SelectFollowUp(%d) = %q, want %q (period %d)", count+n, got, want, n)
		}
		if SelectFollowUp(count) == SelectFollowUp(count+1) {
			rt.Fatalf("counts %d and %d picked the same template", count, count+1)
		}
	})
}

func TestSelectFollowUp_NegativeCount(t *testing.T) {
	if got, want := SelectFollowUp(-5), SelectFollowUp(0); got != want {
		t.Fatalf("SelectFollowUp(-5) = %q, want %q", got, want)
	}
}

func TestCannedCopyNonEmpty(t *testing.T) {
	if InitialEscalationText() == "" {
		t.Fatal("initial escalation text is empty")
	}
	if ActiveTicketDisclaimer() == "" {
		t.Fatal("active ticket disclaimer is empty")
	}
	for i := 0; i < FollowUpTemplateCount(); i++ {
		if SelectFollowUp(i) == "" {
			t.Fatalf("follow-up template %d is empty", i)
		}
	}
}
