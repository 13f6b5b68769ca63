package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxd/internal/store"
)

// PGTicketStore implements store.TicketStore backed by Postgres.
type PGTicketStore struct {
	db *sql.DB
}

func NewPGTicketStore(db *sql.DB) *PGTicketStore {
	return &PGTicketStore{db: db}
}

const ticketCols = `id, conversation_id, workspace_id, category_id, topic_summary, reason,
	status, created_by, severity, follow_up_count, updates,
	last_customer_message, last_customer_at, last_ai_message, last_ai_at,
	created_at, updated_at`

func (s *PGTicketStore) Create(ctx context.Context, ticket *store.TicketData) error {
	if ticket.ID == uuid.Nil {
		ticket.ID = store.GenNewID()
	}
	if ticket.Status == "" {
		ticket.Status = store.TicketStatusPending
	}
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	if ticket.Updates == nil {
		ticket.Updates = []store.TicketUpdate{}
	}

	updatesJSON, err := json.Marshal(ticket.Updates)
	if err != nil {
		return fmt.Errorf("marshal ticket updates: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tickets (`+ticketCols+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		ticket.ID, ticket.ConversationID, ticket.WorkspaceID, ticket.CategoryID,
		ticket.TopicSummary, nilStr(ticket.Reason), ticket.Status, ticket.CreatedBy,
		nilStr(ticket.Severity), ticket.FollowUpCount, updatesJSON,
		nilStr(ticket.LastCustomerMessage), ticket.LastCustomerAt,
		nilStr(ticket.LastAiMessage), ticket.LastAiAt,
		now, now,
	)
	return err
}

func (s *PGTicketStore) Get(ctx context.Context, id uuid.UUID) (*store.TicketData, error) {
	return scanTicket(s.db.QueryRowContext(ctx,
		`SELECT `+ticketCols+` FROM tickets WHERE id = $1`, id))
}

// GetActive returns the newest pending/in_progress ticket for the
// conversation, or nil when the conversation has no open episode.
func (s *PGTicketStore) GetActive(ctx context.Context, conversationID uuid.UUID) (*store.TicketData, error) {
	ticket, err := scanTicket(s.db.QueryRowContext(ctx,
		`SELECT `+ticketCols+` FROM tickets
		 WHERE conversation_id = $1 AND status IN ($2, $3)
		 ORDER BY created_at DESC LIMIT 1`,
		conversationID, store.TicketStatusPending, store.TicketStatusInProgress))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return ticket, err
}

// AppendUpdate appends one entry to the updates log and applies the
// denormalization rules in the same statement, so concurrent appends
// never lose a follow-up bump.
func (s *PGTicketStore) AppendUpdate(ctx context.Context, id uuid.UUID, update store.TicketUpdate) error {
	if update.At.IsZero() {
		update.At = time.Now()
	}
	entry, err := json.Marshal([]store.TicketUpdate{update})
	if err != nil {
		return fmt.Errorf("marshal ticket update: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET
			updates = updates || $2::jsonb,
			follow_up_count = follow_up_count + CASE WHEN $3 = 'customer' AND $4 <> '' THEN 1 ELSE 0 END,
			last_customer_message = CASE WHEN $3 = 'customer' AND $4 <> '' THEN $4 ELSE last_customer_message END,
			last_customer_at = CASE WHEN $3 = 'customer' AND $4 <> '' THEN $5 ELSE last_customer_at END,
			last_ai_message = CASE WHEN $3 = 'ai' AND $4 <> '' THEN $4 ELSE last_ai_message END,
			last_ai_at = CASE WHEN $3 = 'ai' AND $4 <> '' THEN $5 ELSE last_ai_at END,
			updated_at = $5
		 WHERE id = $1`,
		id, entry, update.From, update.Text, update.At,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGTicketStore) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGTicketStore) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, limit int) ([]store.TicketData, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ticketCols+` FROM tickets
		 WHERE workspace_id = $1 ORDER BY created_at DESC LIMIT $2`,
		workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []store.TicketData
	for rows.Next() {
		t, err := scanTicketFrom(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

func scanTicketFrom(sc rowScanner) (*store.TicketData, error) {
	var t store.TicketData
	var reason, severity, lastCustomer, lastAI *string
	var updatesJSON []byte
	err := sc.Scan(
		&t.ID, &t.ConversationID, &t.WorkspaceID, &t.CategoryID, &t.TopicSummary, &reason,
		&t.Status, &t.CreatedBy, &severity, &t.FollowUpCount, &updatesJSON,
		&lastCustomer, &t.LastCustomerAt, &lastAI, &t.LastAiAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Reason = derefStr(reason)
	t.Severity = derefStr(severity)
	t.LastCustomerMessage = derefStr(lastCustomer)
	t.LastAiMessage = derefStr(lastAI)
	if len(updatesJSON) > 0 {
		if err := json.Unmarshal(updatesJSON, &t.Updates); err != nil {
			return nil, fmt.Errorf("unmarshal ticket updates: %w", err)
		}
	}
	return &t, nil
}

func scanTicket(row *sql.Row) (*store.TicketData, error) {
	return scanTicketFrom(row)
}
