package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConversationData holds one customer conversation. Identity fields
// (workspace, platform ids) are written at ingest time; the automation
// fields below are owned by the orchestrator.
type ConversationData struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID uuid.UUID `json:"workspaceId"`

	// Platform identifiers required for outbound delivery.
	PlatformUserID string `json:"platformUserId"` // recipient (e.g. IG-scoped user id)
	PlatformPageID string `json:"platformPageId"` // business page/account id

	LastMessage           string     `json:"lastMessage,omitempty"`
	LastMessageAt         *time.Time `json:"lastMessageAt,omitempty"`
	LastCustomerMessageAt *time.Time `json:"lastCustomerMessageAt,omitempty"`
	LastBusinessMessageAt *time.Time `json:"lastBusinessMessageAt,omitempty"`

	// Manual kill-switch: operators can turn auto-reply off per conversation.
	AutoReplyDisabled bool `json:"autoReplyDisabled,omitempty"`

	// Human-attention state. HumanHoldUntil is set only while HumanRequired
	// is true; resolving the ticket clears both.
	HumanRequired           bool       `json:"humanRequired,omitempty"`
	HumanRequiredReason     string     `json:"humanRequiredReason,omitempty"`
	HumanTriggeredAt        *time.Time `json:"humanTriggeredAt,omitempty"`
	HumanTriggeredByMessage uuid.UUID  `json:"humanTriggeredByMessageId,omitempty"`
	HumanHoldUntil          *time.Time `json:"humanHoldUntil,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Deliverable reports whether the conversation carries the platform
// identifiers outbound delivery needs.
func (c *ConversationData) Deliverable() bool {
	return c != nil && c.PlatformUserID != "" && c.PlatformPageID != ""
}

// HoldActive reports whether a human-hold window covers the given instant.
func (c *ConversationData) HoldActive(now time.Time) bool {
	return c.HumanHoldUntil != nil && c.HumanHoldUntil.After(now)
}

// ConversationPatch is a sparse field update. Nil pointers are left
// untouched; non-nil pointers overwrite (last writer wins at field level).
type ConversationPatch struct {
	LastMessage           *string
	LastMessageAt         *time.Time
	LastCustomerMessageAt *time.Time
	LastBusinessMessageAt *time.Time

	AutoReplyDisabled *bool

	HumanRequired           *bool
	HumanRequiredReason     *string
	HumanTriggeredAt        *time.Time
	HumanTriggeredByMessage *uuid.UUID
	HumanHoldUntil          *time.Time
	ClearHumanHold          bool // explicit: set human_hold_until to NULL
}

// ConversationStore manages conversation rows.
type ConversationStore interface {
	Create(ctx context.Context, conv *ConversationData) error
	Get(ctx context.Context, id uuid.UUID) (*ConversationData, error)
	Update(ctx context.Context, id uuid.UUID, patch ConversationPatch) error
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, limit int) ([]ConversationData, error)
}
