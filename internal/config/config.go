// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Export       ExportConfig
	Instructions InstructionsConfig
	Audit        AuditConfig
	Rate         RateLimitConfig
	Security     SecurityConfig
	Logging      LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL selects the store: postgres://... uses pgx, sqlite://<path> uses
	// the embedded SQLite driver. Supports DATABASE_URL and DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ExportConfig holds spreadsheet export settings.
type ExportConfig struct {
	// Path is where the published spreadsheet lives. The lock file sits next to it.
	Path string `env:"EXPORT_XLSX_PATH" envAlt:"DATA_XLSX_PATH" default:"instance/study_export.xlsx"`

	// TempSweepSchedule is the cron schedule for removing orphaned temp files (default: @hourly)
	TempSweepSchedule string `env:"EXPORT_TEMP_SWEEP_SCHEDULE" default:"@hourly"`

	// TempMaxAge is how old a temp file must be before the sweeper removes it (default: 1h)
	TempMaxAge time.Duration `env:"EXPORT_TEMP_MAX_AGE" default:"1h"`
}

// InstructionsConfig holds settings for uploaded study instruction PDFs.
type InstructionsConfig struct {
	// MediaRoot is the upload root; PDFs live in its instructions/ directory (default: media)
	MediaRoot string `env:"MEDIA_ROOT" default:"media"`

	// MaxUploadBytes caps the size of one uploaded PDF (default: 20 MiB)
	MaxUploadBytes int64 `env:"INSTRUCTION_MAX_UPLOAD_BYTES" default:"20971520"`
}

// Dir is the directory uploaded instruction files are stored in.
func (c *InstructionsConfig) Dir() string {
	return filepath.Join(c.MediaRoot, "instructions")
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	// LogPath is the append-only audit log file written alongside the database trail.
	LogPath string `env:"AUDIT_LOG_PATH" default:"logs/audit.log"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects requests without a known X-API-Key (default: true)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"true"`

	// APIKeys is a comma-separated list of user:key or user:key:staff entries
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
