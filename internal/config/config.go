// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Relational RelationalConfig
	Document   DocumentConfig
	Import     ImportConfig
	Preview    PreviewConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing response (default: 10m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"10m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds ordinary API requests (default: 60s).
	// Preview and commit use Import.Timeout instead.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// RelationalConfig holds the SQL store connection settings. The store is
// disabled when URL is empty.
type RelationalConfig struct {
	// Driver selects the dialect: mysql, postgres or sqlite3 (default: sqlite3)
	Driver string `env:"DATABASE_DRIVER" default:"sqlite3"`

	// URL is the driver DSN. Supports both DATABASE_URL and DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of open connections (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MaxIdle is the maximum number of idle connections (default: 4)
	MaxIdle int `env:"DB_MAX_IDLE" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// BatchSize is the number of rows per insert transaction (default: 1000)
	BatchSize int `env:"RELATIONAL_BATCH_SIZE" default:"1000"`
}

// Enabled reports whether the relational store is configured.
func (c *RelationalConfig) Enabled() bool { return c.URL != "" }

// DocumentConfig holds the MongoDB connection settings. The store is
// disabled when URI is empty.
type DocumentConfig struct {
	// URI is the MongoDB connection string. Supports MONGO_URI and MONGODB_URI.
	URI string `env:"MONGO_URI" envAlt:"MONGODB_URI"`

	// Database is the database holding imported collections (default: sheetimport)
	Database string `env:"MONGO_DATABASE" default:"sheetimport"`

	// Timeout bounds connecting and the initial ping (default: 10s)
	Timeout time.Duration `env:"MONGO_TIMEOUT" default:"10s"`

	// MaxPoolSize is the maximum number of pooled connections (default: 100)
	MaxPoolSize uint64 `env:"MONGO_MAX_POOL_SIZE" default:"100"`

	// MinPoolSize is the minimum number of pooled connections (default: 0)
	MinPoolSize uint64 `env:"MONGO_MIN_POOL_SIZE" default:"0"`

	// BatchSize is the number of documents per InsertMany (default: 100)
	BatchSize int `env:"DOCUMENT_BATCH_SIZE" default:"100"`
}

// Enabled reports whether the document store is configured.
func (c *DocumentConfig) Enabled() bool { return c.URI != "" }

// ImportConfig holds preview and commit processing settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed upload in bytes (default: 100MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" envAlt:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// TempDir holds spooled uploads until commit or cancel (default: OS temp dir)
	TempDir string `env:"IMPORT_TEMP_DIR"`

	// MaxConcurrent is the maximum number of parallel previews and commits (default: 4)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single preview or commit request (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`

	// ImageKeywords replaces the header keywords that mark image columns
	ImageKeywords []string `env:"IMPORT_IMAGE_KEYWORDS"`
}

// PreviewConfig holds staged-session settings.
type PreviewConfig struct {
	// PageSize is the number of rows returned by a preview (default: 10)
	PageSize int `env:"PREVIEW_PAGE_SIZE" default:"10"`

	// MaxPageSize caps page sizes requested by clients (default: 500)
	MaxPageSize int `env:"PREVIEW_MAX_PAGE_SIZE" default:"500"`

	// SessionTTL is how long an uncommitted preview is kept (default: 30m)
	SessionTTL time.Duration `env:"PREVIEW_SESSION_TTL" default:"30m"`

	// ReapInterval is how often expired previews are evicted (default: 5m)
	ReapInterval time.Duration `env:"PREVIEW_REAP_INTERVAL" default:"5m"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for preview and commit (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" envAlt:"RATE_LIMIT_UPLOAD" default:"10"`

	// Burst is the number of requests allowed above the steady rate (default: 20)
	Burst int `env:"RATE_LIMIT_BURST" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key checks on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
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
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
