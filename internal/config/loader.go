package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := range t.NumField() {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := lookup(envName, field.Tag.Get("envAlt"))
		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// lookup returns the first non-empty value among the primary variable and
// its alternate.
func lookup(primary, alt string) string {
	if v := strings.TrimSpace(os.Getenv(primary)); v != "" {
		return v
	}
	if alt == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(alt))
}

var durationType = reflect.TypeOf(time.Duration(0))

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid unsigned integer: %w", err)
		}
		field.SetUint(u)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

var validDrivers = map[string]bool{
	"mysql": true, "postgres": true, "postgresql": true, "pgx": true, "sqlite3": true, "sqlite": true,
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if !c.Relational.Enabled() && !c.Document.Enabled() {
		errs = append(errs, "no store configured; set DATABASE_URL, MONGO_URI or both")
	}

	// Relational validation
	if c.Relational.Enabled() {
		if !validDrivers[strings.ToLower(c.Relational.Driver)] {
			errs = append(errs, fmt.Sprintf("DATABASE_DRIVER (%q) must be one of: mysql, postgres, sqlite3", c.Relational.Driver))
		}
		if c.Relational.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Relational.MaxIdle < 0 {
			errs = append(errs, "DB_MAX_IDLE must be non-negative")
		}
		if c.Relational.MaxIdle > c.Relational.MaxConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MAX_IDLE (%d)",
				c.Relational.MaxConns, c.Relational.MaxIdle))
		}
		if c.Relational.BatchSize <= 0 {
			errs = append(errs, "RELATIONAL_BATCH_SIZE must be positive")
		}
	}

	// Document validation
	if c.Document.Enabled() {
		if c.Document.Database == "" {
			errs = append(errs, "MONGO_DATABASE is required when MONGO_URI is set")
		}
		if c.Document.Timeout <= 0 {
			errs = append(errs, "MONGO_TIMEOUT must be positive")
		}
		if c.Document.MinPoolSize > c.Document.MaxPoolSize {
			errs = append(errs, fmt.Sprintf("MONGO_MAX_POOL_SIZE (%d) must be >= MONGO_MIN_POOL_SIZE (%d)",
				c.Document.MaxPoolSize, c.Document.MinPoolSize))
		}
		if c.Document.BatchSize <= 0 {
			errs = append(errs, "DOCUMENT_BATCH_SIZE must be positive")
		}
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Import validation
	if c.Import.MaxFileSize <= 0 {
		errs = append(errs, "IMPORT_MAX_FILE_SIZE must be positive")
	}
	if c.Import.MaxConcurrent <= 0 {
		errs = append(errs, "IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.MaxWaitTime <= 0 {
		errs = append(errs, "IMPORT_MAX_WAIT_TIME must be positive")
	}
	if c.Import.Timeout <= 0 {
		errs = append(errs, "IMPORT_TIMEOUT must be positive")
	}
	if c.Import.TempDir != "" {
		if fi, err := os.Stat(c.Import.TempDir); err != nil || !fi.IsDir() {
			errs = append(errs, fmt.Sprintf("IMPORT_TEMP_DIR (%q) must be an existing directory", c.Import.TempDir))
		}
	}

	// Preview validation
	if c.Preview.PageSize <= 0 {
		errs = append(errs, "PREVIEW_PAGE_SIZE must be positive")
	}
	if c.Preview.MaxPageSize < c.Preview.PageSize {
		errs = append(errs, fmt.Sprintf("PREVIEW_MAX_PAGE_SIZE (%d) must be >= PREVIEW_PAGE_SIZE (%d)",
			c.Preview.MaxPageSize, c.Preview.PageSize))
	}
	if c.Preview.SessionTTL <= 0 {
		errs = append(errs, "PREVIEW_SESSION_TTL must be positive")
	}
	if c.Preview.ReapInterval <= 0 {
		errs = append(errs, "PREVIEW_REAP_INTERVAL must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled {
		if c.Rate.RequestsPerMinute <= 0 {
			errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
		}
		if c.Rate.ImportLimit <= 0 {
			errs = append(errs, "RATE_LIMIT_IMPORT must be positive when rate limiting is enabled")
		}
		if c.Rate.Burst < 0 {
			errs = append(errs, "RATE_LIMIT_BURST must be non-negative")
		}
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// masked hides a connection string while still showing whether it is set.
func masked(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}

// String returns a safe string representation of the config for logging.
// Connection strings and API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Relational: {Driver: %q, URL: %s, MaxConns: %d, BatchSize: %d}, ",
		c.Relational.Driver, masked(c.Relational.URL), c.Relational.MaxConns, c.Relational.BatchSize)
	fmt.Fprintf(&b, "Document: {URI: %s, Database: %q, BatchSize: %d}, ",
		masked(c.Document.URI), c.Document.Database, c.Document.BatchSize)
	fmt.Fprintf(&b, "Import: {MaxFileSize: %d, MaxConcurrent: %d}, ",
		c.Import.MaxFileSize, c.Import.MaxConcurrent)
	fmt.Fprintf(&b, "Preview: {PageSize: %d, SessionTTL: %s}, ",
		c.Preview.PageSize, c.Preview.SessionTTL)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
