// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for the bearer-token middleware.
// This service is a resource server only: it verifies tokens issued elsewhere,
// it never mints them, so there is no refresh/verify/reset TTL surface here.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// MinIOConfig provides settings for the MinIO-backed artifact content sink.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketArtifacts() string
	IsMinIOEnabled() bool
}

// BillingConfig provides settings for the external BillingClient (C3).
type BillingConfig interface {
	GetBillingBaseURL() string
	GetBillingAPIKey() string
	GetBillingTimeout() time.Duration
	GetBillingRetryAttempts() int
}

// RetrySchedulerConfig provides the exponential-backoff parameters for the
// per-step retry scheduler (C10) and the billing-unavailable handler (C12).
type RetrySchedulerConfig interface {
	GetStepRetryBaseDelay() time.Duration
	GetBillingRetryBaseDelaySeconds() int
	GetBillingRetryMaxAttempts() int
}

// RetryWorkerConfig provides settings for the background retry worker (C11).
type RetryWorkerConfig interface {
	GetRetryPollInterval() time.Duration
}

// AgentConfig provides settings for the pluggable AgentExecutor (C4).
type AgentConfig interface {
	GetAgentExecutorKind() string
	GetMoonshotAPIKey() string
	GetAgentModel() string
}

// SchedulerConfig provides Redis/asynq settings for the background task
// dispatcher and the export/git-sync job queues (C14).
type SchedulerConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL string

	JWTAccessSecret string

	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	MinIOEndpoint        string
	MinIOAccessKey       string
	MinIOSecretKey       string
	MinIOUseSSL          bool
	MinIOMaxFileSize     int64
	MinioBucketArtifacts string

	BillingBaseURL      string
	BillingAPIKey       string
	BillingTimeout      time.Duration
	BillingRetryAttempts int

	StepRetryBaseDelay            time.Duration
	BillingRetryBaseDelaySeconds  int
	BillingRetryMaxAttempts       int
	RetryPollInterval             time.Duration

	AgentExecutorKind string
	MoonshotAPIKey    string
	AgentModel        string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

func (c *Config) GetMinIOEndpoint() string            { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string           { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string           { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool                { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64          { return c.MinIOMaxFileSize }
func (c *Config) GetMinioBucketArtifacts() string     { return c.MinioBucketArtifacts }
func (c *Config) IsMinIOEnabled() bool                { return c.MinIOEndpoint != "" }

func (c *Config) GetBillingBaseURL() string       { return c.BillingBaseURL }
func (c *Config) GetBillingAPIKey() string        { return c.BillingAPIKey }
func (c *Config) GetBillingTimeout() time.Duration { return c.BillingTimeout }
func (c *Config) GetBillingRetryAttempts() int     { return c.BillingRetryAttempts }

func (c *Config) GetStepRetryBaseDelay() time.Duration        { return c.StepRetryBaseDelay }
func (c *Config) GetBillingRetryBaseDelaySeconds() int        { return c.BillingRetryBaseDelaySeconds }
func (c *Config) GetBillingRetryMaxAttempts() int             { return c.BillingRetryMaxAttempts }

func (c *Config) GetRetryPollInterval() time.Duration { return c.RetryPollInterval }

func (c *Config) GetAgentExecutorKind() string { return c.AgentExecutorKind }
func (c *Config) GetMoonshotAPIKey() string    { return c.MoonshotAPIKey }
func (c *Config) GetAgentModel() string        { return c.AgentModel }

func (c *Config) GetRedisAddr() string     { return c.RedisAddr }
func (c *Config) GetRedisPassword() string { return c.RedisPassword }
func (c *Config) GetRedisDB() int          { return c.RedisDB }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),

		CORSAllowAll:   corsAllowAll,
		CORSOrigins:    corsOrigins,
		CORSAllowCreds: strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),

		MinIOEndpoint:        getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:       getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:       getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:          strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOMaxFileSize:     mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "104857600")),
		MinioBucketArtifacts: getEnv("MINIO_BUCKET_ARTIFACTS", "pipeline-artifacts"),

		BillingBaseURL:       getEnv("BILLING_BASE_URL", "http://localhost:9090"),
		BillingAPIKey:        getEnv("BILLING_API_KEY", ""),
		BillingTimeout:       mustDuration(getEnv("BILLING_TIMEOUT", "5s")),
		BillingRetryAttempts: mustInt(getEnv("BILLING_RETRY_ATTEMPTS", "3")),

		StepRetryBaseDelay:           mustDuration(getEnv("STEP_RETRY_BASE_DELAY", "1s")),
		BillingRetryBaseDelaySeconds: mustInt(getEnv("BILLING_RETRY_BASE_DELAY_SECONDS", "60")),
		BillingRetryMaxAttempts:      mustInt(getEnv("BILLING_RETRY_MAX_ATTEMPTS", "5")),
		RetryPollInterval:            mustDuration(getEnv("RETRY_POLL_INTERVAL", "5s")),

		AgentExecutorKind: getEnv("AGENT_EXECUTOR_KIND", "mock"),
		MoonshotAPIKey:    getEnv("MOONSHOT_API_KEY", ""),
		AgentModel:        getEnv("AGENT_MODEL", "moonshot-v1-8k"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       mustInt(getEnv("REDIS_DB", "0")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.AgentExecutorKind == "llm" && cfg.MoonshotAPIKey == "" {
		return nil, fmt.Errorf("MOONSHOT_API_KEY is required when AGENT_EXECUTOR_KIND=llm")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
