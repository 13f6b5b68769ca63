package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxd/internal/store"
)

var scalarColumns = map[string]string{
	store.MetricInboundMessages:        "inbound_messages",
	store.MetricOutboundMessages:       "outbound_messages",
	store.MetricAIReplies:              "ai_replies",
	store.MetricHumanReplies:           "human_replies",
	store.MetricEscalationsOpened:      "escalations_opened",
	store.MetricEscalationsClosed:      "escalations_closed",
	store.MetricFollowupsSent:          "followups_sent",
	store.MetricKBBackedReplies:        "kb_backed_replies",
	store.MetricFirstResponseTimeSumMs: "first_response_time_sum_ms",
	store.MetricFirstResponseTimeCount: "first_response_time_count",
}

var keyedFields = map[string]bool{
	store.MetricMapTagCounts:              true,
	store.MetricMapEscalationReasonCounts: true,
	store.MetricMapKBArticleCounts:        true,
	store.MetricMapCategoryCounts:         true,
	store.MetricMapGoalAttempts:           true,
	store.MetricMapGoalCompletions:        true,
}

// ReportStore implements store.ReportStore over SQLite with the same
// additive-upsert discipline as the Postgres backend.
type ReportStore struct {
	db *sql.DB
}

func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

func (s *ReportStore) IncrementDaily(ctx context.Context, workspaceID uuid.UUID, day string, inc store.ReportIncrements) error {
	if inc.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if len(inc.Scalars) > 0 {
		cols := []string{"workspace_id", "day"}
		placeholders := []string{"?", "?"}
		args := []any{workspaceID, day}
		var updates []string
		for name, delta := range inc.Scalars {
			col, ok := scalarColumns[name]
			if !ok {
				return fmt.Errorf("unknown metric %q", name)
			}
			cols = append(cols, col)
			placeholders = append(placeholders, "?")
			args = append(args, delta)
			updates = append(updates, fmt.Sprintf("%s = %s + excluded.%s", col, col, col))
		}
		query := fmt.Sprintf(
			`INSERT INTO daily_reports (%s) VALUES (%s)
			 ON CONFLICT (workspace_id, day) DO UPDATE SET %s`,
			strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("increment daily report: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO daily_reports (workspace_id, day) VALUES (?, ?)
			 ON CONFLICT (workspace_id, day) DO NOTHING`, workspaceID, day); err != nil {
			return fmt.Errorf("ensure daily report row: %w", err)
		}
	}

	for _, kd := range inc.Keyed {
		if !keyedFields[kd.Field] {
			return fmt.Errorf("unknown keyed metric field %q", kd.Field)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO daily_report_counts (workspace_id, day, field, key, count)
			 VALUES (?,?,?,?,?)
			 ON CONFLICT (workspace_id, day, field, key)
			 DO UPDATE SET count = count + excluded.count`,
			workspaceID, day, kd.Field, kd.Key, kd.Delta); err != nil {
			return fmt.Errorf("increment %s.%s: %w", kd.Field, kd.Key, err)
		}
	}

	return tx.Commit()
}

func (s *ReportStore) GetDaily(ctx context.Context, workspaceID uuid.UUID, day string) (*store.DailyReportData, error) {
	report := &store.DailyReportData{WorkspaceID: workspaceID, Day: day}
	err := s.db.QueryRowContext(ctx,
		`SELECT inbound_messages, outbound_messages, ai_replies, human_replies,
			escalations_opened, escalations_closed, followups_sent, kb_backed_replies,
			first_response_time_sum_ms, first_response_time_count
		 FROM daily_reports WHERE workspace_id = ? AND day = ?`,
		workspaceID, day).
		Scan(&report.InboundMessages, &report.OutboundMessages, &report.AIReplies, &report.HumanReplies,
			&report.EscalationsOpened, &report.EscalationsClosed, &report.FollowupsSent, &report.KBBackedReplies,
			&report.FirstResponseTimeSumMs, &report.FirstResponseTimeCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT field, key, count FROM daily_report_counts
		 WHERE workspace_id = ? AND day = ?`, workspaceID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var field, key string
		var count int64
		if err := rows.Scan(&field, &key, &count); err != nil {
			return nil, err
		}
		if m := report.KeyedMap(field); m != nil {
			m[key] = count
		}
	}
	return report, rows.Err()
}
