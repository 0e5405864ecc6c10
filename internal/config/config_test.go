package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"APP_ENV":               "test",
		"APP_PORT":              "8080",
		"DB_USER":               "tickets",
		"DB_HOST":               "127.0.0.1",
		"DB_PORT":               "3306",
		"DB_NAME":               "tickets",
		"JWT_SECRET":            "jwt",
		"PAYMENT_PROOF_SECRET":  "proof",
		"TICKET_SIGNING_SECRET": "ticket",
	} {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.PaymentProofTTL)
	assert.False(t, cfg.PaymentSimulation)
	assert.Equal(t, "local", cfg.LockBackend)
	assert.Equal(t, "none", cfg.EventBroker)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "logs", cfg.AuditLogDir)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PAYMENT_PROOF_TTL", "2m")
	t.Setenv("PAYMENT_SIMULATION_ENABLED", "yes")
	t.Setenv("LOCK_BACKEND", "Redis")
	t.Setenv("EVENT_BROKER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg := Load()
	assert.Equal(t, 2*time.Minute, cfg.PaymentProofTTL)
	assert.True(t, cfg.PaymentSimulation)
	assert.Equal(t, "redis", cfg.LockBackend)
	assert.Equal(t, "kafka", cfg.EventBroker)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_WRITE_BURST", "0")
	t.Setenv("RATE_LIMIT_READ_BURST", "30")
	t.Setenv("RATE_LIMIT_READ_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 1, cfg.Write.Capacity)
	assert.Equal(t, 2*time.Second, cfg.Write.RefillEvery)
	assert.Equal(t, Bucket{Capacity: 30, RefillEvery: 2 * time.Second}, cfg.Read)
	assert.Equal(t, time.Minute, cfg.TTL)
}

func TestCacheConfig(t *testing.T) {
	cfg := LoadCacheConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 5*time.Second, cfg.TTL)
	assert.Equal(t, "seatmap", cfg.Prefix)

	t.Setenv("CACHE_TTL", "0s")
	assert.False(t, LoadCacheConfig().Enabled)
}

func TestRedisConfigPrefersHostAndPort(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6379")
	assert.Equal(t, "cache:6379", LoadRedisConfig().Addr)

	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_TLS", "true")
	cfg := LoadRedisConfig()
	assert.Equal(t, "redis.internal:6380", cfg.Addr)
	assert.True(t, cfg.TLS)
}
