package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"momentum/internal/bucket"
	"momentum/internal/classify"
	"momentum/internal/metrics"
)

type Config struct {
	// HTTP Server
	Port string

	// Storage
	DataBackend  string
	SQLiteDBPath string

	// AMQP change fan-out; empty URL disables it
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Pipeline
	ClassifierScheme string
	ClassifierFile   string
	MetricsFormula   string
	Timezone         string

	// Auth
	AuthMode      string
	DefaultUserID string
	JWTSecret     string
	JWTIssuer     string

	// View cache
	CacheTTL  time.Duration
	CacheSize int

	// Export worker
	GoogleSpreadsheetID string
	ExportXLSXPath      string
	ExportOwnerID       string
	ExportPeriod        string
	ExportDisplayDays   int

	LogLevel string
}

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"

	AuthStatic = "static"
	AuthJWT    = "jwt"
)

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:  getEnv("DATA_BACKEND", BackendMemory),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/momentum.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "momentum.changes"),
		AMQPQueue:    getEnv("AMQP_QUEUE", ""),

		ClassifierScheme: getEnv("CLASSIFIER_SCHEME", classify.DefaultScheme),
		ClassifierFile:   getEnv("CLASSIFIER_FILE", ""),
		MetricsFormula:   getEnv("METRICS_FORMULA", metrics.Standard),
		Timezone:         getEnv("TIMEZONE", "UTC"),

		AuthMode:      getEnv("AUTH_MODE", AuthStatic),
		DefaultUserID: getEnv("DEFAULT_USER_ID", "local"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTIssuer:     getEnv("JWT_ISSUER", "momentum"),

		CacheTTL:  getEnvDuration("CACHE_TTL", 30*time.Second),
		CacheSize: getEnvInt("CACHE_SIZE", 256),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		ExportXLSXPath:      getEnv("EXPORT_XLSX_PATH", ""),
		ExportOwnerID:       getEnv("EXPORT_OWNER_ID", ""),
		ExportPeriod:        getEnv("EXPORT_PERIOD", string(bucket.Month)),
		ExportDisplayDays:   getEnvInt("EXPORT_DISPLAY_DAYS", 30),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks the server settings and returns every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendMemory, BackendSQLite}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if _, err := classify.Scheme(c.ClassifierScheme); err != nil && c.ClassifierFile == "" {
		errors = append(errors, fmt.Sprintf("unknown classifier scheme '%s': must be one of %v", c.ClassifierScheme, classify.SchemeNames()))
	}
	if c.ClassifierFile != "" {
		if _, err := os.Stat(c.ClassifierFile); err != nil {
			errors = append(errors, fmt.Sprintf("classifier file not readable: %s", c.ClassifierFile))
		}
	}
	if _, err := metrics.Lookup(c.MetricsFormula); err != nil && c.ClassifierFile == "" {
		errors = append(errors, fmt.Sprintf("unknown metrics formula '%s': must be one of %v", c.MetricsFormula, metrics.Names()))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	switch c.AuthMode {
	case AuthStatic:
		if strings.TrimSpace(c.DefaultUserID) == "" {
			errors = append(errors, "DEFAULT_USER_ID is required when AUTH_MODE is static")
		}
	case AuthJWT:
		if len(c.JWTSecret) < 32 {
			errors = append(errors, "JWT_SECRET must be at least 32 characters when AUTH_MODE is jwt")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid auth mode '%s': must be one of [static jwt]", c.AuthMode))
	}

	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}
	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateExport checks the export worker settings on top of Validate.
func (c *Config) ValidateExport() error {
	var errors []string
	if err := c.Validate(); err != nil {
		errors = append(errors, strings.TrimPrefix(err.Error(), "configuration validation failed:\n- "))
	}
	if c.GoogleSpreadsheetID == "" && c.ExportXLSXPath == "" {
		errors = append(errors, "at least one of GOOGLE_SPREADSHEET_ID or EXPORT_XLSX_PATH is required")
	}
	if c.ExportOwnerID == "" && c.AuthMode != AuthStatic {
		errors = append(errors, "EXPORT_OWNER_ID is required unless AUTH_MODE is static")
	}
	if _, err := bucket.ParseGranularity(c.ExportPeriod); err != nil {
		errors = append(errors, fmt.Sprintf("invalid export period '%s': must be day, week, month or year", c.ExportPeriod))
	}
	if c.ExportDisplayDays < 0 {
		errors = append(errors, fmt.Sprintf("invalid export display days %d: must not be negative", c.ExportDisplayDays))
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ExportOwner is the owner whose dashboard the export worker renders.
func (c *Config) ExportOwner() string {
	if c.ExportOwnerID != "" {
		return c.ExportOwnerID
	}
	return c.DefaultUserID
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
