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
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	TrustedProxies     []string
	ShutdownTimeout    time.Duration

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string
	DatabaseURL  string
	DBMaxConns   int
	// SeedFile loads the memory backend from a JSON fixture.
	SeedFile string

	// Cache in front of business lookups; memberships are always read live
	DirectoryCacheSize int
	DirectoryCacheTTL  time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Auth
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTLeeway   time.Duration

	// Dashboard
	DashboardTopCategories           int
	DashboardTimeout                 time.Duration
	DashboardTrendMonths             int
	IncomeBasis                      string
	DashboardIncludeBankTransactions bool

	// Receipt OCR
	OCREnabled                   bool
	GoogleApplicationCredentials string

	// Logging
	LogLevel  string
	LogFormat string

	// Worker
	AuditBatchSize int
}

var (
	validBackends   = []string{"memory", "sqlite", "postgres"}
	validBases      = []string{"cash", "accrual"}
	validLogLevels  = []string{"debug", "info", "warn", "warning", "error"}
	validLogFormats = []string{"text", "json"}
)

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		DataBackend: getEnv("DATA_BACKEND", "memory"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finlight.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DBMaxConns:   getEnvInt("DB_MAX_CONNS", 10),
		SeedFile:     getEnv("SEED_FILE", ""),

		DirectoryCacheSize: getEnvInt("DIRECTORY_CACHE_SIZE", 1000),
		DirectoryCacheTTL:  getEnvDuration("DIRECTORY_CACHE_TTL", time.Minute),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finlight"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "audit_events"),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", ""),
		JWTAudience: getEnv("JWT_AUDIENCE", ""),
		JWTLeeway:   getEnvDuration("JWT_LEEWAY", 30*time.Second),

		DashboardTopCategories:           getEnvInt("DASHBOARD_TOP_CATEGORIES", 5),
		DashboardTimeout:                 getEnvDuration("DASHBOARD_TIMEOUT", 5*time.Second),
		DashboardTrendMonths:             getEnvInt("DASHBOARD_TREND_MONTHS", 12),
		IncomeBasis:                      strings.ToLower(getEnv("INCOME_BASIS", "cash")),
		DashboardIncludeBankTransactions: getEnvBool("DASHBOARD_INCLUDE_BANK_TRANSACTIONS", true),

		OCREnabled:                   getEnvBool("OCR_ENABLED", false),
		GoogleApplicationCredentials: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		AuditBatchSize: getEnvInt("AUDIT_BATCH_SIZE", 10),
	}

	return cfg
}

// Validate checks everything the API server needs and returns every problem
// in one error.
func (c *Config) Validate() error {
	errors := c.validateCommon()

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.JWTSecret) == "" {
		errors = append(errors, "JWT_SECRET is required")
	} else if len(c.JWTSecret) < 16 {
		errors = append(errors, "JWT_SECRET must be at least 16 characters")
	}
	if c.JWTLeeway < 0 || c.JWTLeeway > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid JWT leeway %v: must be between 0 and 5 minutes", c.JWTLeeway))
	}

	if c.RateLimitPerMinute < 1 || c.RateLimitPerMinute > 10000 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be between 1 and 10000", c.RateLimitPerMinute))
	}
	if c.ShutdownTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	}

	if c.DashboardTopCategories < 1 || c.DashboardTopCategories > 50 {
		errors = append(errors, fmt.Sprintf("invalid dashboard top categories %d: must be between 1 and 50", c.DashboardTopCategories))
	}
	if c.DashboardTimeout < 100*time.Millisecond || c.DashboardTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid dashboard timeout %v: must be between 100ms and 1 minute", c.DashboardTimeout))
	}
	if c.DashboardTrendMonths < 1 || c.DashboardTrendMonths > 60 {
		errors = append(errors, fmt.Sprintf("invalid dashboard trend months %d: must be between 1 and 60", c.DashboardTrendMonths))
	}
	if !slices.Contains(validBases, c.IncomeBasis) {
		errors = append(errors, fmt.Sprintf("invalid income basis '%s': must be one of %v", c.IncomeBasis, validBases))
	}

	if c.DirectoryCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid directory cache size %d: must not be negative", c.DirectoryCacheSize))
	}
	if c.DirectoryCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid directory cache TTL %v: must not be negative", c.DirectoryCacheTTL))
	}

	// inline JSON keys are accepted as well as key file paths
	if creds := strings.TrimSpace(c.GoogleApplicationCredentials); c.OCREnabled && creds != "" && !strings.HasPrefix(creds, "{") {
		if _, err := os.Stat(c.GoogleApplicationCredentials); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleApplicationCredentials))
		}
	}

	return joinErrors(errors)
}

// ValidateWorker checks what the audit worker needs: a backend to write to
// and a queue to read from.
func (c *Config) ValidateWorker() error {
	errors := c.validateCommon()

	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the audit worker")
	}
	if c.DataBackend == "memory" {
		errors = append(errors, "the audit worker needs a persistent backend (sqlite or postgres)")
	}
	if c.AuditBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid audit batch size %d: must be at least 1", c.AuditBatchSize))
	} else if c.AuditBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid audit batch size %d: must be at most 1000", c.AuditBatchSize))
	}

	return joinErrors(errors)
}

func (c *Config) validateCommon() []string {
	var errors []string

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL: %v", err))
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
		}
		if c.DBMaxConns < 1 || c.DBMaxConns > 100 {
			errors = append(errors, fmt.Sprintf("invalid DB max connections %d: must be between 1 and 100", c.DBMaxConns))
		}
	case "memory":
		if c.SeedFile != "" {
			if _, err := os.Stat(c.SeedFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("seed file does not exist: %s", c.SeedFile))
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
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	return errors
}

func joinErrors(errors []string) error {
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
