package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxd/internal/store"
)

// PGMessageStore implements store.MessageStore backed by Postgres.
type PGMessageStore struct {
	db *sql.DB
}

func NewPGMessageStore(db *sql.DB) *PGMessageStore {
	return &PGMessageStore{db: db}
}

func (s *PGMessageStore) Create(ctx context.Context, msg *store.MessageData) error {
	if msg.ID == uuid.Nil {
		msg.ID = store.GenNewID()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, direction, sender, text, platform_message_id, sent_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		msg.ID, msg.ConversationID, msg.Direction, msg.Sender, msg.Text,
		nilStr(msg.PlatformMessageID), msg.SentAt,
	)
	return err
}

func (s *PGMessageStore) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]store.MessageData, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, direction, sender, text, platform_message_id, sent_at
		 FROM messages WHERE conversation_id = $1 ORDER BY sent_at DESC LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []store.MessageData
	for rows.Next() {
		var m store.MessageData
		var platformID *string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Sender, &m.Text, &platformID, &m.SentAt); err != nil {
			return nil, err
		}
		m.PlatformMessageID = derefStr(platformID)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
