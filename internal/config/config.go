package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string
	LogLevel  string
	Database  DatabaseConfig
	Redis     RedisConfig
	Webhook   WebhookConfig
	Reconcile ReconcileConfig
	Outbox    OutboxConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string // postgres | sqlite
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Path     string // sqlite file, only used when Driver == "sqlite"
	LogSQL   bool   // log every statement, not only warnings and slow queries
}

// Embedded reports whether Connect should start its own postgres:
// localhost without a password
func (d DatabaseConfig) Embedded() bool {
	return d.Driver != "sqlite" && d.Host == "localhost" && d.Password == ""
}

// RedisConfig holds the optional redis connection used for caching and locks
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// Enabled reports whether a redis address was configured
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

// WebhookConfig holds the shared secret for delivery-status webhooks
type WebhookConfig struct {
	Secret          string
	SignatureHeader string
	MaxBodyBytes    int64
}

// ReconcileConfig tunes cross-ledger matching and notification dedup
type ReconcileConfig struct {
	MatchWindow      time.Duration
	LegacyIDFallback bool
	DedupWindow      time.Duration
	BackfillLockTTL  time.Duration
}

// OutboxConfig tunes the reconciliation task dispatcher
type OutboxConfig struct {
	Enabled        bool
	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	webhookSecret := os.Getenv("WEBHOOK_SECRET")
	if webhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required")
	}

	return &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3210"),
		JWTSecret: jwtSecret,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "orderledger"),
			Path:     getEnv("SQLITE_PATH", "orderledger.db"),
			LogSQL:   getBoolEnv("DB_LOG_SQL", false),
		},
		Redis: RedisConfig{
			Address:  os.Getenv("REDIS_ADDRESS"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Webhook: WebhookConfig{
			Secret:          webhookSecret,
			SignatureHeader: getEnv("WEBHOOK_SIGNATURE_HEADER", "X-Webhook-Signature"),
			MaxBodyBytes:    int64(getIntEnv("WEBHOOK_MAX_BODY_BYTES", 64*1024)),
		},
		Reconcile: ReconcileConfig{
			MatchWindow:      getDurationEnv("MATCH_WINDOW", 5*time.Minute),
			LegacyIDFallback: getBoolEnv("MATCH_LEGACY_ID_FALLBACK", true),
			DedupWindow:      getDurationEnv("NOTIFICATION_DEDUP_WINDOW", 30*time.Second),
			BackfillLockTTL:  getDurationEnv("BACKFILL_LOCK_TTL", 10*time.Minute),
		},
		Outbox: OutboxConfig{
			Enabled:        getBoolEnv("OUTBOX_ENABLED", true),
			BatchSize:      getIntEnv("OUTBOX_BATCH_SIZE", 50),
			PollInterval:   getDurationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second),
			LockTimeout:    getDurationEnv("OUTBOX_LOCK_TIMEOUT", 30*time.Second),
			MaxAttempts:    getIntEnv("OUTBOX_MAX_ATTEMPTS", 10),
			InitialBackoff: getDurationEnv("OUTBOX_INITIAL_BACKOFF", 5*time.Second),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("90s") or plain seconds ("90")
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	var seconds int
	if _, err := fmt.Sscanf(value, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
