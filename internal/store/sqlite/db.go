// Package sqlite is the standalone-mode storage backend. It mirrors the
// Postgres store interfaces over a single-file (or in-memory) SQLite
// database; tests and single-tenant deployments use it, managed
// deployments use the pg package.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// OpenDB opens (or creates) the SQLite database and applies the schema.
// Pass ":memory:" for an in-memory database (used by tests).
func OpenDB(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Single writer connection avoids "database is locked" under the
	// orchestrator's concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	platform_user_id TEXT NOT NULL DEFAULT '',
	platform_page_id TEXT NOT NULL DEFAULT '',
	last_message TEXT,
	last_message_at TIMESTAMP,
	last_customer_message_at TIMESTAMP,
	last_business_message_at TIMESTAMP,
	auto_reply_disabled INTEGER NOT NULL DEFAULT 0,
	human_required INTEGER NOT NULL DEFAULT 0,
	human_required_reason TEXT,
	human_triggered_at TIMESTAMP,
	human_triggered_by_message TEXT,
	human_hold_until TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_workspace ON conversations(workspace_id);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	direction TEXT NOT NULL,
	sender TEXT NOT NULL,
	text TEXT NOT NULL,
	platform_message_id TEXT,
	sent_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, sent_at);

CREATE TABLE IF NOT EXISTS tickets (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	category_id TEXT,
	topic_summary TEXT NOT NULL,
	reason TEXT,
	status TEXT NOT NULL,
	created_by TEXT NOT NULL,
	severity TEXT,
	follow_up_count INTEGER NOT NULL DEFAULT 0,
	updates TEXT NOT NULL DEFAULT '[]',
	last_customer_message TEXT,
	last_customer_at TIMESTAMP,
	last_ai_message TEXT,
	last_ai_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tickets_conversation_status ON tickets(conversation_id, status, created_at);
CREATE INDEX IF NOT EXISTS idx_tickets_workspace ON tickets(workspace_id, created_at);

CREATE TABLE IF NOT EXISTS automation_sessions (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	status TEXT NOT NULL,
	paused_at TIMESTAMP,
	pause_reason TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_automation_conversation ON automation_sessions(conversation_id, status);

CREATE TABLE IF NOT EXISTS daily_reports (
	workspace_id TEXT NOT NULL,
	day TEXT NOT NULL,
	inbound_messages INTEGER NOT NULL DEFAULT 0,
	outbound_messages INTEGER NOT NULL DEFAULT 0,
	ai_replies INTEGER NOT NULL DEFAULT 0,
	human_replies INTEGER NOT NULL DEFAULT 0,
	escalations_opened INTEGER NOT NULL DEFAULT 0,
	escalations_closed INTEGER NOT NULL DEFAULT 0,
	followups_sent INTEGER NOT NULL DEFAULT 0,
	kb_backed_replies INTEGER NOT NULL DEFAULT 0,
	first_response_time_sum_ms INTEGER NOT NULL DEFAULT 0,
	first_response_time_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (workspace_id, day)
);

CREATE TABLE IF NOT EXISTS daily_report_counts (
	workspace_id TEXT NOT NULL,
	day TEXT NOT NULL,
	field TEXT NOT NULL,
	key TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (workspace_id, day, field, key)
);

CREATE TABLE IF NOT EXISTS workspace_settings (
	workspace_id TEXT PRIMARY KEY,
	human_escalation_behavior TEXT NOT NULL,
	human_hold_minutes INTEGER NOT NULL
);
`
