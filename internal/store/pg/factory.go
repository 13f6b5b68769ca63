package pg

import (
	"fmt"

	"github.com/inboxpilot/inboxd/internal/store"
)

// NewPGStores creates all stores backed by Postgres (managed mode).
func NewPGStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	behavior, holdMins := cfg.WorkspaceDefaults()
	return &store.Stores{
		Conversations: NewPGConversationStore(db),
		Messages:      NewPGMessageStore(db),
		Tickets:       NewPGTicketStore(db),
		Automation:    NewPGAutomationSessionStore(db),
		Reports:       NewPGReportStore(db),
		Workspaces:    NewPGWorkspaceStore(db, behavior, holdMins),
	}, nil
}
