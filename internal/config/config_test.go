package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		cfg, err := Load("orders", "8081")
		require.NoError(t, err)

		assert.Equal(t, "orders", cfg.ServiceName)
		assert.Equal(t, "8081", cfg.Port)
		assert.Equal(t, "ecomarket", cfg.DBSchema)
		assert.Equal(t, "ecomarket.events", cfg.EventsTopic)
		assert.Equal(t, 5, cfg.LowStockThreshold)
		assert.True(t, cfg.StrictTransitions)
		assert.False(t, cfg.TrustIdentityHeaders)
		assert.Empty(t, cfg.KafkaBrokers)
	})

	t.Run("reads environment overrides", func(t *testing.T) {
		t.Setenv("PORT", "9000")
		t.Setenv("POSTGRES_URL", "postgres://localhost/shop")
		t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
		t.Setenv("LOW_STOCK_THRESHOLD", "2")
		t.Setenv("ORDERS_STRICT_TRANSITIONS", "false")
		t.Setenv("GATEWAY_TRUST_IDENTITY_HEADERS", "true")

		cfg, err := Load("orders", "8081")
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.Port)
		assert.Equal(t, "postgres://localhost/shop", cfg.PostgresURL)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
		assert.Equal(t, 2, cfg.LowStockThreshold)
		assert.False(t, cfg.StrictTransitions)
		assert.True(t, cfg.TrustIdentityHeaders)
	})

	t.Run("rejects negative threshold", func(t *testing.T) {
		t.Setenv("LOW_STOCK_THRESHOLD", "-1")
		_, err := Load("orders", "")
		assert.Error(t, err)
	})
}

func TestConfig_Require(t *testing.T) {
	cfg := &Config{PostgresURL: "postgres://localhost/shop"}

	assert.NoError(t, cfg.Require("POSTGRES_URL"))
	assert.EqualError(t, cfg.Require("POSTGRES_URL", "KAFKA_BROKERS"), "KAFKA_BROKERS environment variable is required")
	assert.Error(t, cfg.Require("NOPE"))
}
