package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Automation session lifecycle states. Sessions are created and advanced
// by the automation engine; this layer only transitions active → paused.
const (
	SessionStatusActive    = "active"
	SessionStatusPaused    = "paused"
	SessionStatusCompleted = "completed"
	SessionStatusHandoff   = "handoff"
)

// PauseReasonHumanReply marks sessions paused because a human (or AI
// standing in for one) replied outside the script.
const PauseReasonHumanReply = "human_reply"

// AutomationSessionData is one running scripted-automation instance.
type AutomationSessionData struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversationId"`
	Status         string     `json:"status"`
	PausedAt       *time.Time `json:"pausedAt,omitempty"`
	PauseReason    string     `json:"pauseReason,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// AutomationSessionStore manages automation session rows.
//
// PauseActive transitions every active session on the conversation to
// paused in one statement and returns how many rows changed; zero is a
// normal outcome, not an error.
type AutomationSessionStore interface {
	Create(ctx context.Context, sess *AutomationSessionData) error
	Get(ctx context.Context, id uuid.UUID) (*AutomationSessionData, error)
	PauseActive(ctx context.Context, conversationID uuid.UUID, pausedAt time.Time, reason string) (int, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]AutomationSessionData, error)
}
