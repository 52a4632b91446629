// Package config provides configuration loading for sitebuilderd.
//
// Configuration precedence (highest to lowest): environment variables,
// YAML config file, hardcoded defaults.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete sitebuilderd configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	GitHub   GitHubConfig   `koanf:"github"`
	Deploy   DeployConfig   `koanf:"deploy"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Index    IndexConfig    `koanf:"index"`
	Telegram TelegramConfig `koanf:"telegram"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// Secret is the shared secret build requests must present.
	Secret Secret `koanf:"secret"`
}

// GitHubConfig holds repository host configuration.
type GitHubConfig struct {
	Token Secret `koanf:"token"`
	// CommitMode selects how snapshots are published: "atomic" (git
	// data API, single commit) or "per_file" (contents API).
	CommitMode string `koanf:"commit_mode"`
	// RequestsPerSecond caps outbound API calls.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// DeployConfig holds readiness poller timing.
type DeployConfig struct {
	StartGrace      time.Duration `koanf:"start_grace"`
	PollInterval    time.Duration `koanf:"poll_interval"`
	PipelineTimeout time.Duration `koanf:"pipeline_timeout"`
	ProbeAttempts   int           `koanf:"probe_attempts"`
	ProbeInterval   time.Duration `koanf:"probe_interval"`
	ProbeTimeout    time.Duration `koanf:"probe_timeout"`
}

// DispatchConfig holds result delivery retry settings.
type DispatchConfig struct {
	MaxAttempts    int           `koanf:"max_attempts"`
	BaseDelay      time.Duration `koanf:"base_delay"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// IndexConfig selects the task index backend.
type IndexConfig struct {
	// Backend is "sqlite", "csv", or "memory".
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"`
}

// TelegramConfig holds the optional notification sink. Disabled when
// the token is empty.
type TelegramConfig struct {
	Token  Secret `koanf:"token"`
	ChatID int64  `koanf:"chat_id"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.GitHub.CommitMode == "" {
		cfg.GitHub.CommitMode = "atomic"
	}
	if cfg.GitHub.RequestsPerSecond == 0 {
		cfg.GitHub.RequestsPerSecond = 5
	}

	if cfg.Deploy.StartGrace == 0 {
		cfg.Deploy.StartGrace = 5 * time.Second
	}
	if cfg.Deploy.PollInterval == 0 {
		cfg.Deploy.PollInterval = 10 * time.Second
	}
	if cfg.Deploy.PipelineTimeout == 0 {
		cfg.Deploy.PipelineTimeout = 5 * time.Minute
	}
	if cfg.Deploy.ProbeAttempts == 0 {
		cfg.Deploy.ProbeAttempts = 30
	}
	if cfg.Deploy.ProbeInterval == 0 {
		cfg.Deploy.ProbeInterval = 10 * time.Second
	}
	if cfg.Deploy.ProbeTimeout == 0 {
		cfg.Deploy.ProbeTimeout = 10 * time.Second
	}

	if cfg.Dispatch.MaxAttempts == 0 {
		cfg.Dispatch.MaxAttempts = 5
	}
	if cfg.Dispatch.BaseDelay == 0 {
		cfg.Dispatch.BaseDelay = time.Second
	}
	if cfg.Dispatch.RequestTimeout == 0 {
		cfg.Dispatch.RequestTimeout = 30 * time.Second
	}

	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "sqlite"
	}
	if cfg.Index.Path == "" {
		switch cfg.Index.Backend {
		case "csv":
			cfg.Index.Path = "tasks.csv"
		default:
			cfg.Index.Path = "tasks.db"
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if !c.Server.Secret.IsSet() {
		return errors.New("server secret is required")
	}

	switch c.GitHub.CommitMode {
	case "atomic", "per_file":
	default:
		return fmt.Errorf("invalid commit mode %q (must be atomic or per_file)", c.GitHub.CommitMode)
	}
	if c.GitHub.RequestsPerSecond <= 0 {
		return errors.New("github requests_per_second must be positive")
	}

	if c.Deploy.PollInterval <= 0 || c.Deploy.PipelineTimeout <= 0 {
		return errors.New("deploy intervals must be positive")
	}
	if c.Deploy.ProbeAttempts < 1 {
		return errors.New("deploy probe_attempts must be at least 1")
	}

	if c.Dispatch.MaxAttempts < 1 {
		return errors.New("dispatch max_attempts must be at least 1")
	}
	if c.Dispatch.BaseDelay <= 0 {
		return errors.New("dispatch base_delay must be positive")
	}

	switch c.Index.Backend {
	case "sqlite", "csv", "memory":
	default:
		return fmt.Errorf("invalid index backend %q (must be sqlite, csv, or memory)", c.Index.Backend)
	}

	if c.Telegram.Token.IsSet() && c.Telegram.ChatID == 0 {
		return errors.New("telegram chat_id required when token is set")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format %q (must be json or console)", c.Logging.Format)
	}

	return nil
}
