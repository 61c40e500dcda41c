package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("giftcards")
	require.NoError(t, err)

	assert.Equal(t, "giftcards", cfg.Server.ServiceName)
	assert.Equal(t, "EUR", cfg.Ledger.Currency)
	assert.Equal(t, 75, cfg.GiftCards.MigrationBatchSize)
	assert.Equal(t, 48*time.Hour, cfg.GiftCards.SessionTTL)
	assert.True(t, cfg.GiftCards.RefundTotalIncludesGiftCards)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("LEDGER_CURRENCY", "usd")
	t.Setenv("LEDGER_TIMEOUT", "3")
	t.Setenv("GIFTCARD_SESSION_TTL", "30m")
	t.Setenv("GIFTCARD_REFUND_TOTAL_INCLUDES_CARDS", "false")
	t.Setenv("TRACING_SAMPLE_RATIO", "0.5")

	cfg, err := Load("giftcards")
	require.NoError(t, err)

	assert.Equal(t, "USD", cfg.Ledger.Currency)
	assert.Equal(t, 3, cfg.Ledger.TimeoutSeconds)
	assert.Equal(t, 30*time.Minute, cfg.GiftCards.SessionTTL)
	assert.False(t, cfg.GiftCards.RefundTotalIncludesGiftCards)
	assert.InDelta(t, 0.5, cfg.Tracing.SampleRatio, 0.0001)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("LEDGER_MAX_RETRIES", "many")
	t.Setenv("GIFTCARD_SESSION_TTL", "forever")

	cfg, err := Load("giftcards")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Ledger.MaxRetries)
	assert.Equal(t, 48*time.Hour, cfg.GiftCards.SessionTTL)
}

func TestLoad_RateLimitOverrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_GIFTCODE_LIMIT", "5")

	cfg, err := Load("giftcards")
	require.NoError(t, err)

	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window())
	for _, route := range []string{"/api/v1/cart/gift-cards", "/api/v1/gift-cards/:code/balance"} {
		override, ok := cfg.RateLimit.EndpointOverrides[route]
		require.True(t, ok, route)
		assert.Equal(t, 5, override.AnonymousLimit)
		assert.Equal(t, 300, override.WindowSeconds)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad currency", func(c *Config) { c.Ledger.Currency = "EURO" }, "LEDGER_CURRENCY"},
		{"zero batch", func(c *Config) { c.GiftCards.MigrationBatchSize = 0 }, "BATCH_SIZE"},
		{"default jwt secret in production", func(c *Config) {
			c.Server.Environment = "production"
		}, "JWT_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("giftcards")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_URL(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "giftcards", SSLMode: "disable"}

	assert.Equal(t, "postgres://u:p@db:5432/giftcards?sslmode=disable", db.URL())
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=giftcards sslmode=disable", db.DSN())
}
