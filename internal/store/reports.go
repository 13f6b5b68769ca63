package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Scalar counter fields on the daily report row. The metrics package
// builds increments against these names; both store backends map them to
// columns, so an unknown name is a programming error and is rejected.
const (
	MetricInboundMessages        = "inboundMessages"
	MetricOutboundMessages       = "outboundMessages"
	MetricAIReplies              = "aiReplies"
	MetricHumanReplies           = "humanReplies"
	MetricEscalationsOpened      = "escalationsOpened"
	MetricEscalationsClosed      = "escalationsClosed"
	MetricFollowupsSent          = "followupsSent"
	MetricKBBackedReplies        = "kbBackedReplies"
	MetricFirstResponseTimeSumMs = "firstResponseTimeSumMs"
	MetricFirstResponseTimeCount = "firstResponseTimeCount"
)

// Keyed sum-map fields on the daily report.
const (
	MetricMapTagCounts              = "tagCounts"
	MetricMapEscalationReasonCounts = "escalationReasonCounts"
	MetricMapKBArticleCounts        = "kbArticleCounts"
	MetricMapCategoryCounts         = "categoryCounts"
	MetricMapGoalAttempts           = "goalAttempts"
	MetricMapGoalCompletions        = "goalCompletions"
)

// KeyedDelta adds delta to one key of one sum-map field.
type KeyedDelta struct {
	Field string `json:"field"`
	Key   string `json:"key"`
	Delta int64  `json:"delta"`
}

// ReportIncrements is a sparse set of additive deltas for one workspace/day.
// All application is `+=`; increments from concurrent writers compose in
// any order.
type ReportIncrements struct {
	Scalars map[string]int64 `json:"scalars,omitempty"`
	Keyed   []KeyedDelta     `json:"keyed,omitempty"`
}

// Empty reports whether there is nothing to apply.
func (ri ReportIncrements) Empty() bool {
	return len(ri.Scalars) == 0 && len(ri.Keyed) == 0
}

// DailyReportData is the per-workspace, per-day rollup row.
type DailyReportData struct {
	WorkspaceID uuid.UUID `json:"workspaceId"`
	Day         string    `json:"day"` // YYYY-MM-DD

	InboundMessages        int64 `json:"inboundMessages"`
	OutboundMessages       int64 `json:"outboundMessages"`
	AIReplies              int64 `json:"aiReplies"`
	HumanReplies           int64 `json:"humanReplies"`
	EscalationsOpened      int64 `json:"escalationsOpened"`
	EscalationsClosed      int64 `json:"escalationsClosed"`
	FollowupsSent          int64 `json:"followupsSent"`
	KBBackedReplies        int64 `json:"kbBackedReplies"`
	FirstResponseTimeSumMs int64 `json:"firstResponseTimeSumMs"`
	FirstResponseTimeCount int64 `json:"firstResponseTimeCount"`

	TagCounts              map[string]int64 `json:"tagCounts,omitempty"`
	EscalationReasonCounts map[string]int64 `json:"escalationReasonCounts,omitempty"`
	KBArticleCounts        map[string]int64 `json:"kbArticleCounts,omitempty"`
	CategoryCounts         map[string]int64 `json:"categoryCounts,omitempty"`
	GoalAttempts           map[string]int64 `json:"goalAttempts,omitempty"`
	GoalCompletions        map[string]int64 `json:"goalCompletions,omitempty"`
}

// KeyedMap returns the sum map for a keyed field name, allocating it on
// first use. Unknown field names return nil.
func (r *DailyReportData) KeyedMap(field string) map[string]int64 {
	var target *map[string]int64
	switch field {
	case MetricMapTagCounts:
		target = &r.TagCounts
	case MetricMapEscalationReasonCounts:
		target = &r.EscalationReasonCounts
	case MetricMapKBArticleCounts:
		target = &r.KBArticleCounts
	case MetricMapCategoryCounts:
		target = &r.CategoryCounts
	case MetricMapGoalAttempts:
		target = &r.GoalAttempts
	case MetricMapGoalCompletions:
		target = &r.GoalCompletions
	default:
		return nil
	}
	if *target == nil {
		*target = make(map[string]int64)
	}
	return *target
}

// DayOf formats a timestamp as the report day key (UTC).
func DayOf(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}

// ReportStore manages daily rollup rows.
//
// IncrementDaily upserts the (workspace, day) row, creating it with all
// counters at zero when absent, and applies every delta atomically as an
// in-place addition, never an overwrite.
type ReportStore interface {
	IncrementDaily(ctx context.Context, workspaceID uuid.UUID, day string, inc ReportIncrements) error
	GetDaily(ctx context.Context, workspaceID uuid.UUID, day string) (*DailyReportData, error)
}
