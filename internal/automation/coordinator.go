// Package automation pauses scripted-automation sessions the moment a
// message is sent outside of them. The automation engine itself is a
// collaborator; this layer only performs the active → paused transition.
package automation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxd/internal/store"
)

// Coordinator enforces the conversation-wide invariant that no automation
// session keeps advancing once a human (or AI standing in for one) has
// replied.
type Coordinator struct {
	sessions store.AutomationSessionStore
	logger   *slog.Logger
}

func NewCoordinator(sessions store.AutomationSessionStore, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{sessions: sessions, logger: logger.With("component", "automation")}
}

// PauseForReply pauses every active session on the conversation with
// reason human_reply. Idempotent: pausing when nothing is active is a
// no-op. A store failure is logged and swallowed; it must never fail
// the send that triggered it.
func (c *Coordinator) PauseForReply(ctx context.Context, conversationID uuid.UUID) {
	n, err := c.sessions.PauseActive(ctx, conversationID, time.Now(), store.PauseReasonHumanReply)
	if err != nil {
		c.logger.Warn("pause automation sessions failed",
			"conversation", conversationID, "error", err)
		return
	}
	if n > 0 {
		c.logger.Info("paused automation sessions",
			"conversation", conversationID, "count", n)
	}
}
