package sqlite

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

// TicketStore implements store.TicketStore over SQLite. The updates log
// is a JSON array column appended with json_insert, so the append plus
// the denormalized-field changes land in one statement.
type TicketStore struct {
	db *sql.DB
}

func NewTicketStore(db *sql.DB) *TicketStore {
	return &TicketStore{db: db}
}

const ticketCols = `id, conversation_id, workspace_id, category_id, topic_summary, reason,
	status, created_by, severity, follow_up_count, updates,
	last_customer_message, last_customer_at, last_ai_message, last_ai_at,
	created_at, updated_at`

func (s *TicketStore) Create(ctx context.Context, ticket *store.TicketData) error {
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
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ticket.ID, ticket.ConversationID, ticket.WorkspaceID, ticket.CategoryID,
		ticket.TopicSummary, nilStr(ticket.Reason), ticket.Status, ticket.CreatedBy,
		nilStr(ticket.Severity), ticket.FollowUpCount, string(updatesJSON),
		nilStr(ticket.LastCustomerMessage), ticket.LastCustomerAt,
		nilStr(ticket.LastAiMessage), ticket.LastAiAt,
		now, now,
	)
	return err
}

func (s *TicketStore) Get(ctx context.Context, id uuid.UUID) (*store.TicketData, error) {
	return scanTicket(s.db.QueryRowContext(ctx,
		`SELECT `+ticketCols+` FROM tickets WHERE id = ?`, id))
}

func (s *TicketStore) GetActive(ctx context.Context, conversationID uuid.UUID) (*store.TicketData, error) {
	ticket, err := scanTicket(s.db.QueryRowContext(ctx,
		`SELECT `+ticketCols+` FROM tickets
		 WHERE conversation_id = ? AND status IN (?, ?)
		 ORDER BY created_at DESC LIMIT 1`,
		conversationID, store.TicketStatusPending, store.TicketStatusInProgress))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return ticket, err
}

func (s *TicketStore) AppendUpdate(ctx context.Context, id uuid.UUID, update store.TicketUpdate) error {
	if update.At.IsZero() {
		update.At = time.Now()
	}
	entry, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal ticket update: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET
			updates = json_insert(updates, '$[#]', json(?)),
			follow_up_count = follow_up_count + CASE WHEN ? = 'customer' AND ? <> '' THEN 1 ELSE 0 END,
			last_customer_message = CASE WHEN ? = 'customer' AND ? <> '' THEN ? ELSE last_customer_message END,
			last_customer_at = CASE WHEN ? = 'customer' AND ? <> '' THEN ? ELSE last_customer_at END,
			last_ai_message = CASE WHEN ? = 'ai' AND ? <> '' THEN ? ELSE last_ai_message END,
			last_ai_at = CASE WHEN ? = 'ai' AND ? <> '' THEN ? ELSE last_ai_at END,
			updated_at = ?
		 WHERE id = ?`,
		string(entry),
		update.From, update.Text,
		update.From, update.Text, update.Text,
		update.From, update.Text, update.At,
		update.From, update.Text, update.Text,
		update.From, update.Text, update.At,
		update.At, id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *TicketStore) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *TicketStore) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, limit int) ([]store.TicketData, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ticketCols+` FROM tickets
		 WHERE workspace_id = ? ORDER BY created_at DESC LIMIT ?`,
		workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []store.TicketData
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

func scanTicket(sc rowScanner) (*store.TicketData, error) {
	var t store.TicketData
	var reason, severity, lastCustomer, lastAI *string
	var updatesJSON string
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
	if updatesJSON != "" {
		if err := json.Unmarshal([]byte(updatesJSON), &t.Updates); err != nil {
			return nil, fmt.Errorf("unmarshal ticket updates: %w", err)
		}
	}
	return &t, nil
}
