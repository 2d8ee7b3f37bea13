package config

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("TRUSTED_PROXIES", "")

	cfg, err := load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.App.Port)
	assert.Equal(t, EnvDevelopment, cfg.App.Env)
	assert.Equal(t, StorageDriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, defaultJWTSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Auth.CookieSecure)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.App.TrustedProxies)
	assert.Equal(t, int32(10), cfg.Postgres.MaxConns)
}

func TestLoad_TrustedProxies(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.7 ,fd00::/8")

	cfg, err := load()
	require.NoError(t, err)

	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.7/32"),
		netip.MustParsePrefix("fd00::/8"),
	}, cfg.App.TrustedProxies)
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := load()
	assert.ErrorIs(t, err, ErrMissingJWTSecret)
}

func TestLoad_ProductionSecureCookie(t *testing.T) {
	t.Setenv("APP_ENV", "Production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("JWT_TTL", "2h")

	cfg, err := load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.Auth.CookieSecure)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "storage driver", key: "STORAGE_DRIVER", value: "sqlite"},
		{name: "max conns", key: "DB_MAX_CONNS", value: "many"},
		{name: "token ttl", key: "JWT_TTL", value: "7 days"},
		{name: "redis db", key: "REDIS_DB", value: "x"},
		{name: "trusted proxy", key: "TRUSTED_PROXIES", value: "10.0.0.0/33"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_ENV", "")
			t.Setenv(tt.key, tt.value)

			_, err := load()
			assert.Error(t, err)
		})
	}
}
