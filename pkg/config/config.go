package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bubbleup/bubbleup/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Identity      IdentityConfig
	Observability ObservabilityConfig
	Reconciler    ReconcilerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds Postgres connection configuration
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// RedisConfig holds Redis configuration for rate limiting
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// IdentityConfig holds external identity provider configuration
type IdentityConfig struct {
	// OIDC issuer for bearer credential verification
	IssuerURL string
	ClientID  string

	// Management API for account lifecycle (invite, delete, recovery links)
	AdminAPIURL        string
	AdminClientID      string
	AdminClientSecret  string
	AdminTokenURL      string
	AdminAudience      string
	RecoveryRedirectTo string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// ReconcilerConfig holds the orphaned-account reconciler schedule
type ReconcilerConfig struct {
	Enabled  bool
	Schedule string // cron expression
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("BUBBLEUP_HOST", "0.0.0.0"),
			Port:            getEnv("BUBBLEUP_PORT", "8080"),
			ReadTimeout:     getEnvDuration("BUBBLEUP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("BUBBLEUP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("BUBBLEUP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("BUBBLEUP_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("BUBBLEUP_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:         getEnv("BUBBLEUP_POSTGRES_URL", ""),
			MaxConns:    getEnvInt("BUBBLEUP_POSTGRES_MAX_CONNS", 25),
			MinConns:    getEnvInt("BUBBLEUP_POSTGRES_MIN_CONNS", 5),
			Timeout:     getEnvDuration("BUBBLEUP_POSTGRES_TIMEOUT", 10*time.Second),
			MaxLifetime: getEnvDuration("BUBBLEUP_POSTGRES_MAX_LIFETIME", 30*time.Minute),
			MaxIdleTime: getEnvDuration("BUBBLEUP_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("BUBBLEUP_REDIS_URL", ""),
			Password: getEnv("BUBBLEUP_REDIS_PASSWORD", ""),
			DB:       getEnvInt("BUBBLEUP_REDIS_DB", 0),
		},
		Identity: IdentityConfig{
			IssuerURL:          getEnv("BUBBLEUP_IDP_ISSUER_URL", ""),
			ClientID:           getEnv("BUBBLEUP_IDP_CLIENT_ID", ""),
			AdminAPIURL:        getEnv("BUBBLEUP_IDP_ADMIN_API_URL", ""),
			AdminClientID:      getEnv("BUBBLEUP_IDP_ADMIN_CLIENT_ID", ""),
			AdminClientSecret:  getEnv("BUBBLEUP_IDP_ADMIN_CLIENT_SECRET", ""),
			AdminTokenURL:      getEnv("BUBBLEUP_IDP_ADMIN_TOKEN_URL", ""),
			AdminAudience:      getEnv("BUBBLEUP_IDP_ADMIN_AUDIENCE", ""),
			RecoveryRedirectTo: getEnv("BUBBLEUP_IDP_RECOVERY_REDIRECT", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:           parseLogLevel(getEnv("BUBBLEUP_LOG_LEVEL", "info")),
			MetricsEnabled:     getEnvBool("BUBBLEUP_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("BUBBLEUP_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("BUBBLEUP_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("BUBBLEUP_OTEL_SERVICE_NAME", "bubbleup-api"),
			OTelServiceVersion: getEnv("BUBBLEUP_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("BUBBLEUP_OTEL_INSECURE", true),
		},
		Reconciler: ReconcilerConfig{
			Enabled:  getEnvBool("BUBBLEUP_RECONCILER_ENABLED", true),
			Schedule: getEnv("BUBBLEUP_RECONCILER_SCHEDULE", "@every 15m"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Identity.IssuerURL == "" {
		return fmt.Errorf("identity provider issuer URL is required")
	}
	if c.Identity.ClientID == "" {
		return fmt.Errorf("identity provider client ID is required")
	}
	if c.Identity.AdminAPIURL != "" {
		if c.Identity.AdminClientID == "" || c.Identity.AdminClientSecret == "" || c.Identity.AdminTokenURL == "" {
			return fmt.Errorf("admin API credentials are required when admin API URL is set")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
