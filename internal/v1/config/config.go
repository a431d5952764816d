package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration
type Config struct {
	// Chat session
	ResolveEndpoint string
	PingInterval    time.Duration
	InsecureChatTLS bool

	// Ops HTTP listener (metrics, probes, status)
	OpsEnabled     bool
	OpsPort        string
	AllowedOrigins string
	RateLimitOps   string

	// Redis fan-out
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Tracing (disabled when empty)
	OTelCollectorAddr string

	// Optional variables with defaults
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool
}

// ValidateEnv validates all environment variables and returns a Config object
// Returns an error if any variable is present but invalid
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Optional: RESOLVE_ENDPOINT (must be an absolute http(s) URL when set)
	cfg.ResolveEndpoint = os.Getenv("RESOLVE_ENDPOINT")
	if cfg.ResolveEndpoint != "" {
		u, err := url.Parse(cfg.ResolveEndpoint)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("RESOLVE_ENDPOINT must be an absolute http(s) URL (got '%s')", cfg.ResolveEndpoint))
		}
	}

	// Optional: CHAT_PING_INTERVAL in seconds (defaults to 60, the cadence the chat server expects)
	pingRaw := getEnvOrDefault("CHAT_PING_INTERVAL", "60")
	if secs, err := strconv.Atoi(pingRaw); err != nil || secs < 1 {
		errors = append(errors, fmt.Sprintf("CHAT_PING_INTERVAL must be a positive number of seconds (got '%s')", pingRaw))
	} else {
		cfg.PingInterval = time.Duration(secs) * time.Second
	}

	// Optional: CHAT_INSECURE_TLS disables peer verification on the chat socket
	cfg.InsecureChatTLS = os.Getenv("CHAT_INSECURE_TLS") == "true"
	if cfg.InsecureChatTLS {
		slog.Warn("⚠️  CHAT_INSECURE_TLS=true: chat endpoint certificate verification DISABLED - DO NOT USE IN PRODUCTION")
	}

	// Conditional: OPS_PORT (validated when the ops listener is enabled)
	cfg.OpsEnabled = os.Getenv("OPS_ENABLED") == "true"
	cfg.OpsPort = getEnvOrDefault("OPS_PORT", "8080")
	if cfg.OpsEnabled {
		port, err := strconv.Atoi(cfg.OpsPort)
		if err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("OPS_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.OpsPort))
		}
	}
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	// Rate Limits (Defaults: M = Minute, H = Hour)
	cfg.RateLimitOps = getEnvOrDefault("RATE_LIMIT_OPS", "120-M")

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			// Default to localhost:6379 if not specified
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errors = append(errors, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	// Optional: OTEL_COLLECTOR_ADDR enables tracing when set
	cfg.OTelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")
	if cfg.OTelCollectorAddr != "" && !isValidHostPort(cfg.OTelCollectorAddr) {
		errors = append(errors, fmt.Sprintf("OTEL_COLLECTOR_ADDR must be in format 'host:port' (got '%s')", cfg.OTelCollectorAddr))
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = os.Getenv("GO_ENV")
	if cfg.GoEnv == "" {
		cfg.GoEnv = "production"
	}

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration (with secrets redacted)
	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	// Validate port is a number
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	// Validate host is not empty
	if parts[0] == "" {
		return false
	}

	return true
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"resolve_endpoint", cfg.ResolveEndpoint,
		"ping_interval", cfg.PingInterval.String(),
		"insecure_chat_tls", cfg.InsecureChatTLS,
		"ops_enabled", cfg.OpsEnabled,
		"ops_port", cfg.OpsPort,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"redis_password", redactSecret(cfg.RedisPassword),
		"otel_collector_addr", cfg.OTelCollectorAddr,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"rate_limit_ops", cfg.RateLimitOps,
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
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
