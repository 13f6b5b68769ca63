package store

import (
	"context"

	"github.com/google/uuid"
)

// Workspace escalation behavior: whether the assistant keeps replying
// after an escalation (ai_allowed) or goes silent for the hold window
// (ai_silent).
const (
	EscalationBehaviorAISilent  = "ai_silent"
	EscalationBehaviorAIAllowed = "ai_allowed"
)

// WorkspaceSettingsData is the per-workspace automation policy row.
type WorkspaceSettingsData struct {
	WorkspaceID            uuid.UUID `json:"workspaceId"`
	HumanEscalationBehavior string   `json:"humanEscalationBehavior"`
	HumanHoldMinutes        int      `json:"humanHoldMinutes"`
}

// WorkspaceStore manages workspace settings.
//
// Get returns defaults (ai_silent, 60 minutes) when no row exists, so
// callers never special-case an unconfigured workspace.
type WorkspaceStore interface {
	Get(ctx context.Context, workspaceID uuid.UUID) (*WorkspaceSettingsData, error)
	Upsert(ctx context.Context, settings *WorkspaceSettingsData) error
}
