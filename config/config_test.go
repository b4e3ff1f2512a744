package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CALL_COLLECT_WINDOW", "")
	cfg := Load()
	assert.Equal(t, 15*time.Minute, cfg.Calls.CollectWindow)
	assert.Equal(t, "00:00", cfg.Calls.NightStart)
	assert.Equal(t, 70, cfg.Calls.DefaultBackRatio)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CALL_COLLECT_WINDOW", "20m")
	t.Setenv("CALL_NIGHT_FUND", "5000")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example")
	cfg := Load()
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 20*time.Minute, cfg.Calls.CollectWindow)
	assert.Equal(t, int64(5000), cfg.Calls.NightFund)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowOrigins)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("JWT_ACCESS_EXPIRY", "soon")
	cfg := Load()
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, 24*time.Hour, cfg.JWT.AccessExpiry)
}

func TestCallsLocationFallback(t *testing.T) {
	c := CallsConfig{TimeZone: "Not/AZone"}
	assert.Equal(t, time.UTC, c.Location())
}
