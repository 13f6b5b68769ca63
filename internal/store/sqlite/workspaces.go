package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxd/internal/store"
)

// WorkspaceStore implements store.WorkspaceStore over SQLite.
type WorkspaceStore struct {
	db              *sql.DB
	defaultBehavior string
	defaultHoldMins int
}

func NewWorkspaceStore(db *sql.DB, defaultBehavior string, defaultHoldMins int) *WorkspaceStore {
	return &WorkspaceStore{db: db, defaultBehavior: defaultBehavior, defaultHoldMins: defaultHoldMins}
}

func (s *WorkspaceStore) Get(ctx context.Context, workspaceID uuid.UUID) (*store.WorkspaceSettingsData, error) {
	settings := &store.WorkspaceSettingsData{WorkspaceID: workspaceID}
	err := s.db.QueryRowContext(ctx,
		`SELECT human_escalation_behavior, human_hold_minutes
		 FROM workspace_settings WHERE workspace_id = ?`, workspaceID).
		Scan(&settings.HumanEscalationBehavior, &settings.HumanHoldMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		settings.HumanEscalationBehavior = s.defaultBehavior
		settings.HumanHoldMinutes = s.defaultHoldMins
		return settings, nil
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *WorkspaceStore) Upsert(ctx context.Context, settings *store.WorkspaceSettingsData) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workspace_settings (workspace_id, human_escalation_behavior, human_hold_minutes)
		 VALUES (?,?,?)
		 ON CONFLICT (workspace_id) DO UPDATE SET
			human_escalation_behavior = excluded.human_escalation_behavior,
			human_hold_minutes = excluded.human_hold_minutes`,
		settings.WorkspaceID, settings.HumanEscalationBehavior, settings.HumanHoldMinutes,
	)
	return err
}
