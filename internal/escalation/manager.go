// Package escalation owns the ticket lifecycle: opening an episode that
// needs human attention, logging every turn against it, and resolving it.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxd/internal/metrics"
	"github.com/inboxpilot/inboxd/internal/store"
)

// Manager is the escalation ticket manager. Ticket writes propagate
// errors to the caller (escalation state depends on them); metric
// increments are fire-and-forget.
type Manager struct {
	tickets       store.TicketStore
	conversations store.ConversationStore
	tracker       *metrics.Tracker
	logger        *slog.Logger
}

func NewManager(tickets store.TicketStore, conversations store.ConversationStore, tracker *metrics.Tracker, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		tickets:       tickets,
		conversations: conversations,
		tracker:       tracker,
		logger:        logger.With("component", "escalation"),
	}
}

// GetActiveTicket returns the newest pending/in_progress ticket for the
// conversation, or nil.
func (m *Manager) GetActiveTicket(ctx context.Context, conversationID uuid.UUID) (*store.TicketData, error) {
	return m.tickets.GetActive(ctx, conversationID)
}

// CreateTicketParams describes a new escalation episode.
type CreateTicketParams struct {
	ConversationID  uuid.UUID
	WorkspaceID     uuid.UUID // resolved from the conversation when zero
	TopicSummary    string
	Reason          string
	CreatedBy       string
	CustomerMessage string
	Severity        string
}

// CreateTicket opens a ticket. The topic summary is truncated, the
// updates log is seeded with a customer entry when the triggering
// message is known, and the day's escalationsOpened counter (plus the
// reason-keyed counter) is bumped best-effort.
func (m *Manager) CreateTicket(ctx context.Context, params CreateTicketParams) (*store.TicketData, error) {
	workspaceID := params.WorkspaceID
	if workspaceID == uuid.Nil {
		conv, err := m.conversations.Get(ctx, params.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("resolve workspace: %w", err)
		}
		workspaceID = conv.WorkspaceID
	}

	now := time.Now()
	ticket := &store.TicketData{
		ConversationID: params.ConversationID,
		WorkspaceID:    workspaceID,
		TopicSummary:   store.TruncateTopic(params.TopicSummary),
		Reason:         params.Reason,
		Status:         store.TicketStatusPending,
		CreatedBy:      params.CreatedBy,
		Severity:       params.Severity,
		Updates:        []store.TicketUpdate{},
	}
	if params.CustomerMessage != "" {
		ticket.Updates = append(ticket.Updates, store.TicketUpdate{
			From: store.SenderCustomer,
			Text: params.CustomerMessage,
			At:   now,
		})
		ticket.LastCustomerMessage = params.CustomerMessage
		ticket.LastCustomerAt = &now
	}

	if err := m.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	inc := new(metrics.Increments).Add(store.MetricEscalationsOpened, 1)
	inc.AddKeyed(store.MetricMapEscalationReasonCounts, params.Reason, 1)
	m.tracker.TrackBestEffort(ctx, workspaceID, now, inc)

	return ticket, nil
}

// AddUpdate appends one entry to the ticket's update log. A customer
// entry with text bumps the follow-up count and the last-customer
// fields; an ai entry with text refreshes the last-ai fields. No other
// side effects.
func (m *Manager) AddUpdate(ctx context.Context, ticketID uuid.UUID, update store.TicketUpdate) error {
	if err := m.tickets.AppendUpdate(ctx, ticketID, update); err != nil {
		return fmt.Errorf("ticket update: %w", err)
	}
	return nil
}

// Resolve closes the ticket with the given status (resolved when empty)
// and bumps the day's escalationsClosed counter. The conversation's
// human-attention fields are cleared best-effort: the hold window is
// ticket-driven, so resolving the episode lifts it. Resolving a ticket
// that is already closed returns it unchanged.
func (m *Manager) Resolve(ctx context.Context, ticketID uuid.UUID, status string) (*store.TicketData, error) {
	if status == "" {
		status = store.TicketStatusResolved
	}
	ticket, err := m.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("load ticket: %w", err)
	}
	if !ticket.Active() {
		// Already closed: idempotent, no second escalationsClosed bump.
		return ticket, nil
	}

	if err := m.tickets.SetStatus(ctx, ticketID, status); err != nil {
		return nil, fmt.Errorf("resolve ticket: %w", err)
	}
	ticket.Status = status

	falseVal := false
	emptyReason := ""
	if err := m.conversations.Update(ctx, ticket.ConversationID, store.ConversationPatch{
		HumanRequired:       &falseVal,
		HumanRequiredReason: &emptyReason,
		ClearHumanHold:      true,
	}); err != nil {
		m.logger.Warn("clear human-required state failed",
			"conversation", ticket.ConversationID, "ticket", ticketID, "error", err)
	}

	inc := new(metrics.Increments).Add(store.MetricEscalationsClosed, 1)
	m.tracker.TrackBestEffort(ctx, ticket.WorkspaceID, time.Now(), inc)

	return ticket, nil
}

// ListWorkspaceTickets returns the workspace's most recent tickets,
// newest first, capped at 50.
func (m *Manager) ListWorkspaceTickets(ctx context.Context, workspaceID uuid.UUID) ([]store.TicketData, error) {
	return m.tickets.ListByWorkspace(ctx, workspaceID, 50)
}
