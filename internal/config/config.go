// Package config loads application configuration from environment variables.
//
// Every value has a safe default. Malformed or negative values clamp to the
// default instead of failing startup: a bad timeout must never keep the
// control plane from serving.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64

	// Identity settings.
	JWTSecret     string // HS256 signing secret for bearer tokens.
	JWTExpiration time.Duration
	APIKeyHashes  string // Comma-separated Argon2id hashes; empty accepts any key.

	// Provider endpoints and deadlines.
	TraderURL            string
	LiveEngineURL        string
	DataBridgeURL        string
	LiveEngineTimeout    time.Duration // From LIVE_ENGINE_TIMEOUT_SECONDS.
	TraderDataTimeout    time.Duration // From TRADER_DATA_TIMEOUT_SECONDS.
	MarketContextTTL     time.Duration // From PLATFORM_MARKET_CONTEXT_CACHE_TTL_SECONDS.

	// Reconciliation settings.
	ReconcileMinInterval time.Duration // Floor between passes per (tenant, resourceType).
	ReconcileCadence     time.Duration // Background scheduler period; 0 disables.

	// Risk policy.
	RiskPolicyPath string // JSON policy document; empty uses the built-in default.

	// Research budget for the Trader provider, USD per tenant. Zero disables
	// the budget check.
	ResearchBudgetUSD float64

	// Command endpoint rate limiting, per tenant. Zero rate disables limiting.
	CommandRateLimit float64 // Tokens per second.
	CommandRateBurst int

	// Idempotency cache TTLs.
	IdempotencyCompletedTTL  time.Duration
	IdempotencyInProgressTTL time.Duration

	// Durable audit archive (sqlite). Empty path disables archiving.
	AuditDBPath string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                int(envInt("LONA_PORT", 8080)),
		ReadTimeout:         envDuration("LONA_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("LONA_WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBodyBytes: envInt("LONA_MAX_REQUEST_BODY_BYTES", 1*1024*1024),

		JWTSecret:     envStr("PLATFORM_AUTH_JWT_HS256_SECRET", ""),
		JWTExpiration: envDuration("LONA_JWT_EXPIRATION", 24*time.Hour),
		APIKeyHashes:  envStr("PLATFORM_API_KEY_HASHES", ""),

		TraderURL:         envStr("TRADER_URL", ""),
		LiveEngineURL:     envStr("LIVE_ENGINE_URL", ""),
		DataBridgeURL:     envStr("DATA_BRIDGE_URL", ""),
		LiveEngineTimeout: envSeconds("LIVE_ENGINE_TIMEOUT_SECONDS", 8.0),
		TraderDataTimeout: envSeconds("TRADER_DATA_TIMEOUT_SECONDS", 8.0),
		MarketContextTTL:  envSeconds("PLATFORM_MARKET_CONTEXT_CACHE_TTL_SECONDS", 120.0),

		ReconcileMinInterval: envDuration("LONA_RECONCILE_MIN_INTERVAL", 10*time.Second),
		ReconcileCadence:     envDuration("LONA_RECONCILE_CADENCE", time.Minute),

		RiskPolicyPath: envStr("LONA_RISK_POLICY_PATH", ""),

		ResearchBudgetUSD: envFloat("TRADER_RESEARCH_BUDGET_USD", 25.0),

		CommandRateLimit: envFloat("LONA_COMMAND_RATE_LIMIT", 5.0),
		CommandRateBurst: int(envInt("LONA_COMMAND_RATE_BURST", 10)),

		IdempotencyCompletedTTL:  envDuration("LONA_IDEMPOTENCY_COMPLETED_TTL", 24*time.Hour),
		IdempotencyInProgressTTL: envDuration("LONA_IDEMPOTENCY_IN_PROGRESS_TTL", time.Minute),

		AuditDBPath: envStr("LONA_AUDIT_DB_PATH", ""),

		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure: envStr("OTEL_EXPORTER_OTLP_INSECURE", "") == "true",
		ServiceName:  envStr("OTEL_SERVICE_NAME", "lona"),

		LogLevel: envStr("LONA_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: PLATFORM_AUTH_JWT_HS256_SECRET is required")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: LONA_MAX_REQUEST_BODY_BYTES must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return f
		}
	}
	return defaultVal
}

// envSeconds parses a float seconds value. Malformed or negative values clamp
// to the default rather than rejecting startup.
func envSeconds(key string, defaultVal float64) time.Duration {
	secs := defaultVal
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			secs = f
		}
	}
	return time.Duration(secs * float64(time.Second))
}
