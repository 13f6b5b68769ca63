// Package metrics rolls orchestration outcomes into per-workspace daily
// reports. Every delta is additive, so increments from concurrent
// orchestrator runs compose in any order.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxd/internal/store"
)

// Increments accumulates deltas for one Track call. Zero value is ready
// to use.
type Increments struct {
	inc store.ReportIncrements
}

// Add merges a scalar counter delta.
func (i *Increments) Add(metric string, delta int64) *Increments {
	if i.inc.Scalars == nil {
		i.inc.Scalars = make(map[string]int64)
	}
	i.inc.Scalars[metric] += delta
	return i
}

// AddKeyed merges a delta into one key of a sum-map field
// (e.g. AddKeyed(store.MetricMapTagCounts, "sales", 1)).
func (i *Increments) AddKeyed(field, key string, delta int64) *Increments {
	if key == "" {
		return i
	}
	for n, kd := range i.inc.Keyed {
		if kd.Field == field && kd.Key == key {
			i.inc.Keyed[n].Delta += delta
			return i
		}
	}
	i.inc.Keyed = append(i.inc.Keyed, store.KeyedDelta{Field: field, Key: key, Delta: delta})
	return i
}

// Empty reports whether nothing was accumulated.
func (i *Increments) Empty() bool { return i.inc.Empty() }

// Raw exposes the underlying store increments.
func (i *Increments) Raw() store.ReportIncrements { return i.inc }

// Tracker applies increments to the daily rollup store. Failures are the
// caller's business only when they ask for them; TrackBestEffort is the
// fire-and-forget path the orchestrator uses.
type Tracker struct {
	reports store.ReportStore
	logger  *slog.Logger
}

func NewTracker(reports store.ReportStore, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{reports: reports, logger: logger.With("component", "metrics")}
}

// Track upserts the (workspace, day-of-at) row and applies the deltas.
func (t *Tracker) Track(ctx context.Context, workspaceID uuid.UUID, at time.Time, inc *Increments) error {
	if inc == nil || inc.Empty() {
		return nil
	}
	return t.reports.IncrementDaily(ctx, workspaceID, store.DayOf(at), inc.Raw())
}

// TrackBestEffort applies the deltas and logs on failure. Losing a
// metric increment never rolls back the mutation that produced it.
func (t *Tracker) TrackBestEffort(ctx context.Context, workspaceID uuid.UUID, at time.Time, inc *Increments) {
	if err := t.Track(ctx, workspaceID, at, inc); err != nil {
		t.logger.Warn("daily metric increment failed",
			"workspace", workspaceID, "day", store.DayOf(at), "error", err)
	}
}

// ResponseTimeDelta computes the first-response latency contributed by an
// outbound business message sent at sentAt. It returns (delta, true) only
// when the customer sent the most recent inbound turn (strictly newer
// than the last business message) and the elapsed time is positive;
// consecutive business messages contribute nothing.
func ResponseTimeDelta(conv *store.ConversationData, sentAt time.Time) (time.Duration, bool) {
	if conv == nil || conv.LastCustomerMessageAt == nil {
		return 0, false
	}
	last := *conv.LastCustomerMessageAt
	if conv.LastBusinessMessageAt != nil && !last.After(*conv.LastBusinessMessageAt) {
		return 0, false
	}
	delta := sentAt.Sub(last)
	if delta <= 0 {
		return 0, false
	}
	return delta, true
}

// AddResponseTime records a first-response sample when ResponseTimeDelta
// applies.
func AddResponseTime(inc *Increments, conv *store.ConversationData, sentAt time.Time) {
	if delta, ok := ResponseTimeDelta(conv, sentAt); ok {
		inc.Add(store.MetricFirstResponseTimeSumMs, delta.Milliseconds())
		inc.Add(store.MetricFirstResponseTimeCount, 1)
	}
}
