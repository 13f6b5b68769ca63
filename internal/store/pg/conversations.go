package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxd/internal/store"
)

// PGConversationStore implements store.ConversationStore backed by Postgres.
type PGConversationStore struct {
	db *sql.DB
}

func NewPGConversationStore(db *sql.DB) *PGConversationStore {
	return &PGConversationStore{db: db}
}

const conversationCols = `id, workspace_id, platform_user_id, platform_page_id,
	last_message, last_message_at, last_customer_message_at, last_business_message_at,
	auto_reply_disabled, human_required, human_required_reason, human_triggered_at,
	human_triggered_by_message, human_hold_until, created_at, updated_at`

func (s *PGConversationStore) Create(ctx context.Context, conv *store.ConversationData) error {
	if conv.ID == uuid.Nil {
		conv.ID = store.GenNewID()
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	var triggeredBy *uuid.UUID
	if conv.HumanTriggeredByMessage != uuid.Nil {
		triggeredBy = &conv.HumanTriggeredByMessage
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (`+conversationCols+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		conv.ID, conv.WorkspaceID, conv.PlatformUserID, conv.PlatformPageID,
		nilStr(conv.LastMessage), conv.LastMessageAt, conv.LastCustomerMessageAt, conv.LastBusinessMessageAt,
		conv.AutoReplyDisabled, conv.HumanRequired, nilStr(conv.HumanRequiredReason), conv.HumanTriggeredAt,
		triggeredBy, conv.HumanHoldUntil, now, now,
	)
	return err
}

func (s *PGConversationStore) Get(ctx context.Context, id uuid.UUID) (*store.ConversationData, error) {
	return scanConversation(s.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id))
}

// Update applies a sparse field patch. Only non-nil patch fields are
// written, last writer wins at the field level.
func (s *PGConversationStore) Update(ctx context.Context, id uuid.UUID, patch store.ConversationPatch) error {
	sets := []string{"updated_at = $1"}
	args := []any{time.Now()}

	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.LastMessage != nil {
		add("last_message", *patch.LastMessage)
	}
	if patch.LastMessageAt != nil {
		add("last_message_at", *patch.LastMessageAt)
	}
	if patch.LastCustomerMessageAt != nil {
		add("last_customer_message_at", *patch.LastCustomerMessageAt)
	}
	if patch.LastBusinessMessageAt != nil {
		add("last_business_message_at", *patch.LastBusinessMessageAt)
	}
	if patch.AutoReplyDisabled != nil {
		add("auto_reply_disabled", *patch.AutoReplyDisabled)
	}
	if patch.HumanRequired != nil {
		add("human_required", *patch.HumanRequired)
	}
	if patch.HumanRequiredReason != nil {
		add("human_required_reason", nilStr(*patch.HumanRequiredReason))
	}
	if patch.HumanTriggeredAt != nil {
		add("human_triggered_at", *patch.HumanTriggeredAt)
	}
	if patch.HumanTriggeredByMessage != nil {
		add("human_triggered_by_message", *patch.HumanTriggeredByMessage)
	}
	if patch.ClearHumanHold {
		sets = append(sets, "human_hold_until = NULL")
	} else if patch.HumanHoldUntil != nil {
		add("human_hold_until", *patch.HumanHoldUntil)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE conversations SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGConversationStore) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, limit int) ([]store.ConversationData, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationCols+` FROM conversations
		 WHERE workspace_id = $1 ORDER BY COALESCE(last_message_at, created_at) DESC LIMIT $2`,
		workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []store.ConversationData
	for rows.Next() {
		conv, err := scanConversationRow(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversationFrom(sc rowScanner) (*store.ConversationData, error) {
	var conv store.ConversationData
	var lastMessage, humanReason *string
	var triggeredBy *uuid.UUID
	err := sc.Scan(
		&conv.ID, &conv.WorkspaceID, &conv.PlatformUserID, &conv.PlatformPageID,
		&lastMessage, &conv.LastMessageAt, &conv.LastCustomerMessageAt, &conv.LastBusinessMessageAt,
		&conv.AutoReplyDisabled, &conv.HumanRequired, &humanReason, &conv.HumanTriggeredAt,
		&triggeredBy, &conv.HumanHoldUntil, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	conv.LastMessage = derefStr(lastMessage)
	conv.HumanRequiredReason = derefStr(humanReason)
	if triggeredBy != nil {
		conv.HumanTriggeredByMessage = *triggeredBy
	}
	return &conv, nil
}

func scanConversation(row *sql.Row) (*store.ConversationData, error) {
	return scanConversationFrom(row)
}

func scanConversationRow(rows *sql.Rows) (*store.ConversationData, error) {
	return scanConversationFrom(rows)
}
