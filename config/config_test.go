package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CALLBACK_ALLOWED_ORIGINS", "")
	t.Setenv("IDEMPOTENCY_RETENTION", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, defaultCallbackOrigins, cfg.Callback.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.Retention)
	assert.Equal(t, 3, cfg.Callback.MaxAttempts)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CALLBACK_ALLOWED_ORIGINS", "10.0.0.0/8, 127.0.0.1,")
	t.Setenv("IDEMPOTENCY_BACKEND", "postgres")
	t.Setenv("IDEMPOTENCY_INFLIGHT_TTL", "90s")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.Callback.AllowedOrigins)
	assert.Equal(t, "postgres", cfg.Idempotency.Backend)
	assert.Equal(t, 90*time.Second, cfg.Idempotency.InFlightTTL)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 0, cfg.Redis.DB)
}
