package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message direction and sender kinds.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	SenderCustomer = "customer"
	SenderAI       = "ai"
	SenderHuman    = "human"
)

// MessageData is one message in a conversation, inbound or outbound.
// PlatformMessageID is the external platform's id for delivered outbound
// messages; it is empty for inbound messages ingested via webhook payloads
// that lack one.
type MessageData struct {
	ID                uuid.UUID `json:"id"`
	ConversationID    uuid.UUID `json:"conversationId"`
	Direction         string    `json:"direction"`
	Sender            string    `json:"sender"`
	Text              string    `json:"text"`
	PlatformMessageID string    `json:"platformMessageId,omitempty"`
	SentAt            time.Time `json:"sentAt"`
}

// MessageStore manages message rows.
type MessageStore interface {
	Create(ctx context.Context, msg *MessageData) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]MessageData, error)
}
