package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "5001", cfg.HTTPPort)
	assert.Equal(t, "50051", cfg.GRPCHealthPort)
	assert.Equal(t, BackendMongo, cfg.StoreBackend)
	assert.Equal(t, "client_portal", cfg.MongoDatabase)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 60, cfg.RateLimitRPM)
	assert.True(t, cfg.Development())
	assert.False(t, cfg.TLSEnabled())
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadParsesKeysAndBrokers(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("JWT_KEYS", "k1:one, k2:two")
	t.Setenv("JWT_ACTIVE_KID", "k2")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"k1": "one", "k2": "two"}, cfg.JWTKeys)
	assert.Equal(t, "k2", cfg.JWTActiveKid)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing uri", map[string]string{"JWT_SECRET": "s", "MONGODB_URI": ""}},
		{"missing secret", map[string]string{"STORE_BACKEND": "memory", "JWT_SECRET": "", "JWT_KEYS": ""}},
		{"bad keys", map[string]string{"STORE_BACKEND": "memory", "JWT_KEYS": "nokid"}},
		{"bad backend", map[string]string{"STORE_BACKEND": "sqlite", "JWT_SECRET": "s"}},
		{"tls required", map[string]string{"STORE_BACKEND": "memory", "JWT_SECRET": "s", "REQUIRE_TLS": "true", "TLS_CERT": ""}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := load(viper.New())
			assert.Error(t, err)
		})
	}
}
