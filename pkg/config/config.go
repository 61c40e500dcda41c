package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NATS      NATSConfig
	JWT       JWTConfig
	Ledger    LedgerConfig
	GiftCards GiftCardConfig
	Tracing   TracingConfig
	Sentry    SentryConfig
	Secrets   SecretsConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           string
	Environment    string
	ServiceName    string
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout int
	CORSOrigins    string // Comma-separated list of allowed origins
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MaxConns      int
	MinConns      int
	MigrateOnBoot bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL        string
	StreamName string
	MaxDeliver int
}

// JWTConfig holds JWT configuration for admin endpoints
type JWTConfig struct {
	Secret string
}

// LedgerConfig configures the remote gift card ledger
type LedgerConfig struct {
	BaseURL string
	APIKey  string
	// APIKeySecret names a secret holding the API key. Used when APIKey is empty.
	APIKeySecret     string
	Currency         string
	TimeoutSeconds   int
	MaxRetries       int
	BreakerEnabled   bool
	BreakerFailures  int
	BreakerTimeout   int
	BreakerInterval  int
	BreakerSuccesses int
}

// GiftCardConfig holds checkout behaviour knobs
type GiftCardConfig struct {
	SessionTTL time.Duration
	// NoteLanguage selects the language of order audit notes.
	NoteLanguage string
	// RefundTotalIncludesGiftCards raises the order total by the gift card amount while the
	// host refund is created, for hosts that reject refunds above the paid total.
	RefundTotalIncludesGiftCards bool
	MigrationBatchSize           int
	MigrationBatchDelay          time.Duration
}

// TracingConfig configures OpenTelemetry export
type TracingConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRatio  float64
}

// SentryConfig configures error reporting
type SentryConfig struct {
	DSN              string
	TracesSampleRate float64
}

// SecretsConfig selects the secret backend
type SecretsConfig struct {
	Provider   string
	VaultAddr  string
	VaultToken string
	VaultMount string
	AWSRegion  string
	AWSPrefix  string
	CacheTTL   time.Duration
}

// RateLimitConfig configures the Redis token buckets guarding gift code lookups
type RateLimitConfig struct {
	Enabled           bool
	WindowSeconds     int
	DefaultLimit      int
	DefaultBurst      int
	AnonymousLimit    int
	AnonymousBurst    int
	RedisPrefix       string
	EndpointOverrides map[string]EndpointRateLimitConfig
}

// EndpointRateLimitConfig overrides the default rule for one route
type EndpointRateLimitConfig struct {
	AuthenticatedLimit int
	AuthenticatedBurst int
	AnonymousLimit     int
	AnonymousBurst     int
	WindowSeconds      int
}

// Window returns the refill window, one minute when unset
func (c RateLimitConfig) Window() time.Duration {
	if c.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.WindowSeconds) * time.Second
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			ServiceName:    serviceName,
			ReadTimeout:    getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout:   getEnvAsInt("WRITE_TIMEOUT", 10),
			RequestTimeout: getEnvAsInt("REQUEST_TIMEOUT", 30),
			CORSOrigins:    getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			User:          getEnv("DB_USER", "postgres"),
			Password:      getEnv("DB_PASSWORD", "postgres"),
			DBName:        getEnv("DB_NAME", "giftcards"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MaxConns:      getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:      getEnvAsInt("DB_MIN_CONNS", 5),
			MigrateOnBoot: getEnvAsBool("DB_MIGRATE_ON_BOOT", true),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:        getEnv("NATS_URL", "nats://localhost:4222"),
			StreamName: getEnv("NATS_STREAM", "GIFTCARDS"),
			MaxDeliver: getEnvAsInt("NATS_MAX_DELIVER", 10),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		Ledger: LedgerConfig{
			BaseURL:          getEnv("LEDGER_BASE_URL", "https://api.giftcards.example.com"),
			APIKey:           getEnv("LEDGER_API_KEY", ""),
			APIKeySecret:     getEnv("LEDGER_API_KEY_SECRET", "giftcards/ledger-api-key"),
			Currency:         strings.ToUpper(getEnv("LEDGER_CURRENCY", "EUR")),
			TimeoutSeconds:   getEnvAsInt("LEDGER_TIMEOUT", 10),
			MaxRetries:       getEnvAsInt("LEDGER_MAX_RETRIES", 3),
			BreakerEnabled:   getEnvAsBool("LEDGER_BREAKER_ENABLED", true),
			BreakerFailures:  getEnvAsInt("LEDGER_BREAKER_FAILURES", 5),
			BreakerTimeout:   getEnvAsInt("LEDGER_BREAKER_TIMEOUT", 30),
			BreakerInterval:  getEnvAsInt("LEDGER_BREAKER_INTERVAL", 60),
			BreakerSuccesses: getEnvAsInt("LEDGER_BREAKER_SUCCESSES", 1),
		},
		GiftCards: GiftCardConfig{
			SessionTTL:                   getEnvAsDuration("GIFTCARD_SESSION_TTL", 48*time.Hour),
			NoteLanguage:                 getEnv("GIFTCARD_NOTE_LANGUAGE", "en"),
			RefundTotalIncludesGiftCards: getEnvAsBool("GIFTCARD_REFUND_TOTAL_INCLUDES_CARDS", true),
			MigrationBatchSize:           getEnvAsInt("GIFTCARD_MIGRATION_BATCH_SIZE", 75),
			MigrationBatchDelay:          getEnvAsDuration("GIFTCARD_MIGRATION_BATCH_DELAY", 10*time.Second),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvAsBool("TRACING_ENABLED", false),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio:  getEnvAsFloat("TRACING_SAMPLE_RATIO", 0.1),
		},
		Sentry: SentryConfig{
			DSN:              getEnv("SENTRY_DSN", ""),
			TracesSampleRate: getEnvAsFloat("SENTRY_TRACES_SAMPLE_RATE", 0.1),
		},
		Secrets: SecretsConfig{
			Provider:   getEnv("SECRETS_PROVIDER", "env"),
			VaultAddr:  getEnv("VAULT_ADDR", "http://localhost:8200"),
			VaultToken: getEnv("VAULT_TOKEN", ""),
			VaultMount: getEnv("VAULT_MOUNT", "secret"),
			AWSRegion:  getEnv("AWS_REGION", "eu-west-1"),
			AWSPrefix:  getEnv("AWS_SECRETS_PREFIX", ""),
			CacheTTL:   getEnvAsDuration("SECRETS_CACHE_TTL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvAsBool("RATE_LIMIT_ENABLED", true),
			WindowSeconds:  getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			DefaultLimit:   getEnvAsInt("RATE_LIMIT_DEFAULT_LIMIT", 120),
			DefaultBurst:   getEnvAsInt("RATE_LIMIT_DEFAULT_BURST", 20),
			AnonymousLimit: getEnvAsInt("RATE_LIMIT_ANON_LIMIT", 60),
			AnonymousBurst: getEnvAsInt("RATE_LIMIT_ANON_BURST", 10),
			RedisPrefix:    getEnv("RATE_LIMIT_REDIS_PREFIX", "giftcards:rl"),
		},
	}

	codeRule := EndpointRateLimitConfig{
		AuthenticatedLimit: getEnvAsInt("RATE_LIMIT_GIFTCODE_LIMIT", 10),
		AuthenticatedBurst: 0,
		AnonymousLimit:     getEnvAsInt("RATE_LIMIT_GIFTCODE_LIMIT", 10),
		AnonymousBurst:     0,
		WindowSeconds:      getEnvAsInt("RATE_LIMIT_GIFTCODE_WINDOW_SECONDS", 300),
	}
	cfg.RateLimit.EndpointOverrides = map[string]EndpointRateLimitConfig{
		"/api/v1/cart/gift-cards":          codeRule,
		"/api/v1/gift-cards/:code/balance": codeRule,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values that have no safe default
func (c *Config) Validate() error {
	if c.Ledger.BaseURL == "" {
		return fmt.Errorf("LEDGER_BASE_URL is required")
	}
	if len(c.Ledger.Currency) != 3 {
		return fmt.Errorf("LEDGER_CURRENCY must be an ISO 4217 code, got %q", c.Ledger.Currency)
	}
	if c.GiftCards.MigrationBatchSize <= 0 {
		return fmt.Errorf("GIFTCARD_MIGRATION_BATCH_SIZE must be positive")
	}
	if c.Server.Environment == "production" && c.JWT.Secret == "your-secret-key-change-in-production" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL returns the database connection string in URL form, as golang-migrate expects
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
