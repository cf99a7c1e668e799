package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	DBDSN     string
	JWTSecret string

	LogLevel string

	SessionDays    int
	LoginRateLimit int

	AuditRetentionDays int

	// UnlinkedRowsVisible lets project-restricted members see rows that belong
	// to no project.
	UnlinkedRowsVisible bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("OD_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("OD_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("OD_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("OD_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("OD_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("OD_BASE_URL is required")
	}

	cfg.DBDSN = strings.TrimSpace(os.Getenv("OD_DB_DSN"))
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("OD_DB_DSN is required")
	}

	cfg.JWTSecret = os.Getenv("OD_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("OD_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("OD_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.LogLevel = getEnvOrDefault("OD_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("OD_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.SessionDays, err = getEnvIntOrDefault("OD_SESSION_DAYS", 7)
	if err != nil {
		return nil, err
	}
	if cfg.SessionDays <= 0 {
		return nil, fmt.Errorf("OD_SESSION_DAYS must be positive (got: %d)", cfg.SessionDays)
	}

	cfg.LoginRateLimit, err = getEnvIntOrDefault("OD_LOGIN_RATE_LIMIT", 10)
	if err != nil {
		return nil, err
	}
	if cfg.LoginRateLimit <= 0 {
		return nil, fmt.Errorf("OD_LOGIN_RATE_LIMIT must be positive (got: %d)", cfg.LoginRateLimit)
	}

	cfg.AuditRetentionDays, err = getEnvIntOrDefault("OD_AUDIT_RETENTION_DAYS", 180)
	if err != nil {
		return nil, err
	}
	if cfg.AuditRetentionDays <= 0 {
		return nil, fmt.Errorf("OD_AUDIT_RETENTION_DAYS must be positive (got: %d)", cfg.AuditRetentionDays)
	}

	cfg.UnlinkedRowsVisible, err = getEnvBoolOrDefault("OD_UNLINKED_ROWS_VISIBLE", true)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	return map[string]string{
		"OD_ENV":                   c.Env,
		"OD_HTTP_ADDR":             c.HTTPAddr,
		"OD_BASE_URL":              c.BaseURL,
		"OD_DB_DSN":                redactDSN(c.DBDSN),
		"OD_JWT_SECRET":            "[REDACTED]",
		"OD_LOG_LEVEL":             c.LogLevel,
		"OD_SESSION_DAYS":          strconv.Itoa(c.SessionDays),
		"OD_LOGIN_RATE_LIMIT":      strconv.Itoa(c.LoginRateLimit),
		"OD_AUDIT_RETENTION_DAYS":  strconv.Itoa(c.AuditRetentionDays),
		"OD_UNLINKED_ROWS_VISIBLE": strconv.FormatBool(c.UnlinkedRowsVisible),
	}
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}

func getEnvBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean (got: %q)", key, value)
	}
	return parsed, nil
}
