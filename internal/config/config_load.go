package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                18420,
			WebhookRateLimitRPM: 60,
		},
		Database: DatabaseConfig{
			Mode:       "standalone",
			SQLitePath: filepath.Join(home, ".inboxd", "inboxd.db"),
		},
		Platform: PlatformConfig{
			APIBase: "https://graph.facebook.com/v21.0",
		},
		Generator: GeneratorConfig{
			Model:        "gpt-4o-mini",
			HistoryLimit: 20,
		},
		Delivery: DeliveryConfig{
			SendsPerSecond: 5,
		},
		Workspace: WorkspaceConfig{
			EscalationBehavior: "ai_silent",
			HoldMinutes:        60,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "inboxd",
		},
	}
}

// Load reads the config file (JSON5), layers it over defaults, and
// applies environment overrides. A missing file is not an error: the
// defaults plus environment are a complete configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("INBOXD_CONFIG")
	}
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".inboxd", "config.json")
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fall through to env overrides
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Database.PostgresDSN != "" {
		cfg.Database.Mode = "managed"
	}
	return cfg, nil
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("INBOXD_POSTGRES_DSN"); v != "" {
		cfg.Database.PostgresDSN = v
	}
	if v := os.Getenv("INBOXD_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("INBOXD_AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := os.Getenv("INBOXD_PLATFORM_TOKEN"); v != "" {
		cfg.Platform.AccessToken = v
	}
	if v := os.Getenv("INBOXD_GENERATOR_API_KEY"); v != "" {
		cfg.Generator.APIKey = v
	}
	if v := os.Getenv("INBOXD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("INBOXD_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
		cfg.Telemetry.Enabled = true
	}
}
