// Package config loads the inboxd configuration: a JSON5 file plus
// environment overrides. Secrets (database DSN, platform token,
// generator API key) come from the environment only and are never
// written back to disk.
package config

// Config is the root configuration for the inboxd service.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Platform  PlatformConfig  `json:"platform"`
	Generator GeneratorConfig `json:"generator"`
	Delivery  DeliveryConfig  `json:"delivery,omitempty"`
	Workspace WorkspaceConfig `json:"workspace,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	AuthToken string `json:"-"` // from env INBOXD_AUTH_TOKEN only

	// WebhookRateLimitRPM bounds inbound webhook calls per source key.
	// 0 disables limiting.
	WebhookRateLimitRPM int `json:"webhook_rate_limit_rpm,omitempty"`
}

// DatabaseConfig selects the storage backend.
// PostgresDSN is NEVER read from the config file (secret), only from
// env INBOXD_POSTGRES_DSN. When it is set, mode is "managed"; otherwise
// the service runs standalone on SQLite.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	SQLitePath  string `json:"sqlite_path,omitempty"` // default ~/.inboxd/inboxd.db
	Mode        string `json:"mode,omitempty"`        // "standalone" (default) or "managed"
}

// IsManagedMode reports whether the service runs against Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// PlatformConfig configures the messaging platform client.
type PlatformConfig struct {
	APIBase     string `json:"api_base"`
	PageID      string `json:"page_id"`
	AccessToken string `json:"-"` // from env INBOXD_PLATFORM_TOKEN only
}

// GeneratorConfig configures the AI reply generator.
type GeneratorConfig struct {
	APIBase      string `json:"api_base,omitempty"`
	APIKey       string `json:"-"` // from env INBOXD_GENERATOR_API_KEY only
	Model        string `json:"model"`
	HistoryLimit int    `json:"history_limit,omitempty"`
}

// DeliveryConfig tunes the outbound pipeline.
type DeliveryConfig struct {
	// SendsPerSecond paces platform sends. 0 disables pacing.
	SendsPerSecond float64 `json:"sends_per_second,omitempty"`
}

// WorkspaceConfig holds defaults applied to workspaces without a
// settings row.
type WorkspaceConfig struct {
	EscalationBehavior string `json:"escalation_behavior,omitempty"` // ai_silent | ai_allowed
	HoldMinutes        int    `json:"hold_minutes,omitempty"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled      bool   `json:"enabled,omitempty"`
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"` // host:port, OTLP/HTTP
	ServiceName  string `json:"service_name,omitempty"`
}
