// Package config validates environment configuration at boot.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	DatabaseURI string
	AuthSecret  string

	// Optional variables with defaults
	Port         string
	CORSOrigin   string
	DatabaseName string
	LogLevel     string
	GoEnv        string

	// Optional Redis for shared rate-limit state
	RedisAddr     string
	RedisPassword string

	// Optional tracing
	TracingEnabled    bool
	OTelCollectorAddr string
}

// DevelopmentMode reports whether the process runs with the development profile.
func (c *Config) DevelopmentMode() bool {
	return c.GoEnv == "development"
}

// ValidateEnv validates all required environment variables and returns a Config.
// Returns an error listing every problem found, so an operator fixes the whole
// environment in one pass.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// Required: DATABASE_URI (MongoDB connection string)
	cfg.DatabaseURI = os.Getenv("DATABASE_URI")
	if cfg.DatabaseURI == "" {
		errs = append(errs, "DATABASE_URI is required")
	} else if !strings.HasPrefix(cfg.DatabaseURI, "mongodb://") && !strings.HasPrefix(cfg.DatabaseURI, "mongodb+srv://") {
		errs = append(errs, fmt.Sprintf("DATABASE_URI must be a mongodb:// or mongodb+srv:// URI (got '%s')", redactSecret(cfg.DatabaseURI)))
	}

	// Required: AUTH_SECRET (minimum 32 characters, signs bearer tokens)
	cfg.AuthSecret = os.Getenv("AUTH_SECRET")
	if cfg.AuthSecret == "" {
		errs = append(errs, "AUTH_SECRET is required")
	} else if len(cfg.AuthSecret) < 32 {
		errs = append(errs, fmt.Sprintf("AUTH_SECRET must be at least 32 characters (got %d)", len(cfg.AuthSecret)))
	}

	// Optional: PORT (defaults to 3001)
	cfg.Port = getEnvOrDefault("PORT", "3001")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// Optional: CORS_ORIGIN (defaults to wildcard)
	cfg.CORSOrigin = getEnvOrDefault("CORS_ORIGIN", "*")

	// Optional: DATABASE_NAME (defaults to "peercall")
	cfg.DatabaseName = getEnvOrDefault("DATABASE_NAME", "peercall")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of debug, info, warn, error (got '%s')", cfg.LogLevel))
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: REDIS_ADDR (rate limiter falls back to process memory without it)
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	if cfg.RedisAddr != "" && !isValidHostPort(cfg.RedisAddr) {
		errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
	}
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	// Optional: tracing
	cfg.TracingEnabled = os.Getenv("TRACING_ENABLED") == "true"
	if cfg.TracingEnabled {
		cfg.OTelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")
		if cfg.OTelCollectorAddr == "" {
			errs = append(errs, "OTEL_COLLECTOR_ADDR is required when TRACING_ENABLED=true")
		} else if !isValidHostPort(cfg.OTelCollectorAddr) {
			errs = append(errs, fmt.Sprintf("OTEL_COLLECTOR_ADDR must be in format 'host:port' (got '%s')", cfg.OTelCollectorAddr))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	return parts[0] != ""
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("Environment configuration validated",
		"port", cfg.Port,
		"cors_origin", cfg.CORSOrigin,
		"database_uri", redactSecret(cfg.DatabaseURI),
		"database_name", cfg.DatabaseName,
		"auth_secret", redactSecret(cfg.AuthSecret),
		"log_level", cfg.LogLevel,
		"go_env", cfg.GoEnv,
		"redis_addr", cfg.RedisAddr,
		"tracing_enabled", cfg.TracingEnabled,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
