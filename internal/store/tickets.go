package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Ticket lifecycle states. A ticket in pending or in_progress is "active";
// at most one active ticket may exist per conversation.
const (
	TicketStatusPending    = "pending"
	TicketStatusInProgress = "in_progress"
	TicketStatusResolved   = "resolved"
	TicketStatusCancelled  = "cancelled"
)

// Ticket creator kinds.
const (
	TicketCreatedByAI     = "ai"
	TicketCreatedByHuman  = "human"
	TicketCreatedBySystem = "system"
)

// TopicSummaryMaxLen is the cap on ticket topic summaries.
const TopicSummaryMaxLen = 140

// TruncateTopic caps a topic summary at TopicSummaryMaxLen runes.
func TruncateTopic(topic string) string {
	r := []rune(topic)
	if len(r) <= TopicSummaryMaxLen {
		return topic
	}
	return string(r[:TopicSummaryMaxLen])
}

// TicketUpdate is one entry in a ticket's ordered update log.
type TicketUpdate struct {
	From      string    `json:"from"` // customer | ai | human
	Text      string    `json:"text,omitempty"`
	MessageID uuid.UUID `json:"messageId,omitempty"`
	At        time.Time `json:"at"`
}

// TicketData is one episode requiring human attention.
type TicketData struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversationId"`
	WorkspaceID    uuid.UUID  `json:"workspaceId"`
	CategoryID     *uuid.UUID `json:"categoryId,omitempty"`
	TopicSummary   string     `json:"topicSummary"`
	Reason         string     `json:"reason,omitempty"`
	Status         string     `json:"status"`
	CreatedBy      string     `json:"createdBy"`
	Severity       string     `json:"severity,omitempty"`
	FollowUpCount  int        `json:"followUpCount"`

	Updates []TicketUpdate `json:"updates"`

	LastCustomerMessage string     `json:"lastCustomerMessage,omitempty"`
	LastCustomerAt      *time.Time `json:"lastCustomerAt,omitempty"`
	LastAiMessage       string     `json:"lastAiMessage,omitempty"`
	LastAiAt            *time.Time `json:"lastAiAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Active reports whether the ticket still demands human attention.
func (t *TicketData) Active() bool {
	return t != nil && (t.Status == TicketStatusPending || t.Status == TicketStatusInProgress)
}

// TicketStore manages escalation ticket rows.
//
// GetActive returns the most recently created ticket in pending or
// in_progress for the conversation, or nil when none exists.
// AppendUpdate appends one entry to the update log and, in the same write,
// applies the denormalization rules: a customer update with text sets
// last_customer_message/_at and bumps follow_up_count; an ai update with
// text sets last_ai_message/_at.
type TicketStore interface {
	Create(ctx context.Context, ticket *TicketData) error
	Get(ctx context.Context, id uuid.UUID) (*TicketData, error)
	GetActive(ctx context.Context, conversationID uuid.UUID) (*TicketData, error)
	AppendUpdate(ctx context.Context, id uuid.UUID, update TicketUpdate) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, limit int) ([]TicketData, error)
}
