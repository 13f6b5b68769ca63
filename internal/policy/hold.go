package policy

import (
	"time"

	"github.com/inboxpilot/inboxd/internal/store"
)

// Hold-window bounds, in minutes.
const (
	DefaultHoldMinutes = 60
	MinHoldMinutes     = 5
	MaxHoldMinutes     = 720
)

// ClampHoldMinutes normalizes a configured hold duration: unset falls
// back to the default, everything else is clamped to [5, 720].
func ClampHoldMinutes(minutes int) int {
	if minutes == 0 {
		return DefaultHoldMinutes
	}
	if minutes < MinHoldMinutes {
		return MinHoldMinutes
	}
	if minutes > MaxHoldMinutes {
		return MaxHoldMinutes
	}
	return minutes
}

// HoldUntil computes the hold-window end for an AI-initiated escalation.
// It returns nil unless the workspace requires AI silence after
// escalation; under ai_allowed the assistant keeps replying and no hold
// is set.
func HoldUntil(now time.Time, settings *store.WorkspaceSettingsData) *time.Time {
	if settings == nil || settings.HumanEscalationBehavior != store.EscalationBehaviorAISilent {
		return nil
	}
	until := now.Add(time.Duration(ClampHoldMinutes(settings.HumanHoldMinutes)) * time.Minute)
	return &until
}
