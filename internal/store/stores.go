package store

import (
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a row does not exist. Both backends
// translate their driver's no-rows error into this sentinel.
var ErrNotFound = errors.New("store: not found")

// Stores is the top-level container for all storage backends.
// Both the Postgres (managed) and SQLite (standalone) factories fill
// every field; nothing here is optional.
type Stores struct {
	Conversations ConversationStore
	Messages      MessageStore
	Tickets       TicketStore
	Automation    AutomationSessionStore
	Reports       ReportStore
	Workspaces    WorkspaceStore
}

// StoreConfig carries backend selection and connection settings.
type StoreConfig struct {
	PostgresDSN string // managed mode; from env only
	SQLitePath  string // standalone mode; file path or ":memory:"

	// Defaults returned by WorkspaceStore.Get for workspaces without a
	// settings row. Zero values fall back to ai_silent / 60 minutes.
	DefaultEscalationBehavior string
	DefaultHoldMinutes        int
}

// WorkspaceDefaults resolves the configured fallbacks.
func (c StoreConfig) WorkspaceDefaults() (behavior string, holdMinutes int) {
	behavior = c.DefaultEscalationBehavior
	if behavior == "" {
		behavior = EscalationBehaviorAISilent
	}
	holdMinutes = c.DefaultHoldMinutes
	if holdMinutes <= 0 {
		holdMinutes = 60
	}
	return behavior, holdMinutes
}

// GenNewID returns a new time-ordered UUID for database rows.
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
