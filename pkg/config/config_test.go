package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.DefaultDuration)
	assert.Equal(t, 50.0, cfg.Sessions.DefaultRadius)
	assert.Equal(t, 30*time.Second, cfg.Sessions.SweepInterval)
	assert.Equal(t, 5, cfg.Sessions.CodeAttempts)
	assert.Equal(t, "admin@college.edu", cfg.Admin.Email)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SESSION_DEFAULT_DURATION", "10m")
	t.Setenv("SESSION_DEFAULT_RADIUS", "120")
	t.Setenv("SESSION_SWEEP_INTERVAL", "0s")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("REDIS_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Sessions.DefaultDuration)
	assert.Equal(t, 120.0, cfg.Sessions.DefaultRadius)
	assert.Equal(t, time.Duration(0), cfg.Sessions.SweepInterval)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Redis.Enabled)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Hour, parseDuration("", time.Hour))
	assert.Equal(t, time.Hour, parseDuration("soon", time.Hour))
	assert.Equal(t, 2*time.Second, parseDuration("2s", time.Hour))
}

func TestDatabaseDSN(t *testing.T) {
	dsn := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}.DSN()
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", dsn)
}
