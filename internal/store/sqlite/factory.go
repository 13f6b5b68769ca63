package sqlite

import (
	"fmt"

	"github.com/inboxpilot/inboxd/internal/store"
)

// NewSQLiteStores creates all stores backed by a single SQLite file
// (standalone mode).
func NewSQLiteStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	behavior, holdMins := cfg.WorkspaceDefaults()
	return &store.Stores{
		Conversations: NewConversationStore(db),
		Messages:      NewMessageStore(db),
		Tickets:       NewTicketStore(db),
		Automation:    NewAutomationSessionStore(db),
		Reports:       NewReportStore(db),
		Workspaces:    NewWorkspaceStore(db, behavior, holdMins),
	}, nil
}
