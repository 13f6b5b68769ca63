package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxd/internal/store"
)

// PGWorkspaceStore implements store.WorkspaceStore backed by Postgres.
type PGWorkspaceStore struct {
	db              *sql.DB
	defaultBehavior string
	defaultHoldMins int
}

func NewPGWorkspaceStore(db *sql.DB, defaultBehavior string, defaultHoldMins int) *PGWorkspaceStore {
	return &PGWorkspaceStore{db: db, defaultBehavior: defaultBehavior, defaultHoldMins: defaultHoldMins}
}

// Get returns the workspace settings row, falling back to the
// configured defaults when the workspace has never been configured.
func (s *PGWorkspaceStore) Get(ctx context.Context, workspaceID uuid.UUID) (*store.WorkspaceSettingsData, error) {
	settings := &store.WorkspaceSettingsData{WorkspaceID: workspaceID}
	err := s.db.QueryRowContext(ctx,
		`SELECT human_escalation_behavior, human_hold_minutes
		 FROM workspace_settings WHERE workspace_id = $1`, workspaceID).
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

func (s *PGWorkspaceStore) Upsert(ctx context.Context, settings *store.WorkspaceSettingsData) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workspace_settings (workspace_id, human_escalation_behavior, human_hold_minutes)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (workspace_id) DO UPDATE SET
			human_escalation_behavior = EXCLUDED.human_escalation_behavior,
			human_hold_minutes = EXCLUDED.human_hold_minutes`,
		settings.WorkspaceID, settings.HumanEscalationBehavior, settings.HumanHoldMinutes,
	)
	return err
}
