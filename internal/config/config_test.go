package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:3001", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.Equal(t, "analytics.db", cfg.Database.Path)
	assert.Equal(t, []string{"*"}, cfg.Security.CORSOrigins)
	assert.Equal(t, 100, cfg.Security.RateLimitReqs)
	assert.False(t, cfg.Security.RateLimitDisabled)
	assert.Equal(t, 30, cfg.Retention.Days)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("DB_PATH", "/tmp/events.db")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("DISABLE_RATE_LIMIT", "true")
	t.Setenv("RETENTION_DAYS", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/tmp/events.db", cfg.Database.Path)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Security.CORSOrigins)
	assert.True(t, cfg.Security.RateLimitDisabled)
	assert.Equal(t, 7, cfg.Retention.Days)
}

func TestLoadFileLayerAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := []byte("server:\n  port: 4000\nretention:\n  days: 14\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o644))
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, 14, cfg.Retention.Days)

	// Environment beats the file.
	t.Setenv("HTTP_PORT", "5000")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 14, cfg.Retention.Days)
}

func TestLoadUnmappedEnvVarsAreDropped(t *testing.T) {
	t.Setenv("PATH_INFO", "should-not-leak")
	t.Setenv("SERVER_PORT", "9999") // only HTTP_PORT is recognized

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3001, cfg.Server.Port)
}

func TestLoadValidation(t *testing.T) {
	t.Run("bad port", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "0")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad retention", func(t *testing.T) {
		t.Setenv("RETENTION_DAYS", "0")
		_, err := Load()
		assert.Error(t, err)
	})
}
