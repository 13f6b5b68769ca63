package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxd/internal/store"
)

// PGAutomationSessionStore implements store.AutomationSessionStore backed by Postgres.
type PGAutomationSessionStore struct {
	db *sql.DB
}

func NewPGAutomationSessionStore(db *sql.DB) *PGAutomationSessionStore {
	return &PGAutomationSessionStore{db: db}
}

func (s *PGAutomationSessionStore) Create(ctx context.Context, sess *store.AutomationSessionData) error {
	if sess.ID == uuid.Nil {
		sess.ID = store.GenNewID()
	}
	if sess.Status == "" {
		sess.Status = store.SessionStatusActive
	}
	now := time.Now()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO automation_sessions (id, conversation_id, status, paused_at, pause_reason, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sess.ID, sess.ConversationID, sess.Status, sess.PausedAt, nilStr(sess.PauseReason), now, now,
	)
	return err
}

func (s *PGAutomationSessionStore) Get(ctx context.Context, id uuid.UUID) (*store.AutomationSessionData, error) {
	var sess store.AutomationSessionData
	var reason *string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, status, paused_at, pause_reason, created_at, updated_at
		 FROM automation_sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.ConversationID, &sess.Status, &sess.PausedAt, &reason, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.PauseReason = derefStr(reason)
	return &sess, nil
}

// PauseActive flips every active session on the conversation to paused in
// one statement. Pausing when nothing is active is a no-op.
func (s *PGAutomationSessionStore) PauseActive(ctx context.Context, conversationID uuid.UUID, pausedAt time.Time, reason string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE automation_sessions
		 SET status = $3, paused_at = $4, pause_reason = $5, updated_at = $4
		 WHERE conversation_id = $1 AND status = $2`,
		conversationID, store.SessionStatusActive, store.SessionStatusPaused, pausedAt, reason,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *PGAutomationSessionStore) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]store.AutomationSessionData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, status, paused_at, pause_reason, created_at, updated_at
		 FROM automation_sessions WHERE conversation_id = $1 ORDER BY created_at`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []store.AutomationSessionData
	for rows.Next() {
		var sess store.AutomationSessionData
		var reason *string
		if err := rows.Scan(&sess.ID, &sess.ConversationID, &sess.Status, &sess.PausedAt, &reason, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sess.PauseReason = derefStr(reason)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
