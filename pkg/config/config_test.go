package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://open.tiktokapis.com", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, 30, cfg.API.MaxSpanDays)
	assert.Equal(t, 100, cfg.API.PageSize)
	assert.Equal(t, 1000, cfg.API.CommentsMax)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
api:
  client_key: file-key
  client_secret: file-secret
  max_span_days: 15
output:
  base_directory: /tmp/research
  format: csv
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.API.ClientKey)
	assert.Equal(t, 15, cfg.API.MaxSpanDays)
	assert.Equal(t, "/tmp/research", cfg.Output.BaseDirectory)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched values keep their defaults
	assert.Equal(t, 100, cfg.API.PageSize)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  client_key: file-key\n"), 0644))

	t.Setenv("TIKTOK_CLIENT_KEY", "env-key")
	t.Setenv("TIKTOK_CLIENT_SECRET", "env-secret")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.API.ClientKey)
	assert.Equal(t, "env-secret", cfg.API.ClientSecret)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("TIKTOK_CLIENT_KEY", "env-key")

	cfg, err := Load("", map[string]interface{}{
		"client-key":  "flag-key",
		"output":      "./out",
		"rate-limit":  30,
		"max-retries": 5,
	})
	require.NoError(t, err)

	assert.Equal(t, "flag-key", cfg.API.ClientKey)
	assert.Equal(t, "./out", cfg.Output.BaseDirectory)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.API.BaseURL = "" }},
		{"zero timeout", func(c *Config) { c.API.RequestTimeout = 0 }},
		{"zero span", func(c *Config) { c.API.MaxSpanDays = 0 }},
		{"oversized page", func(c *Config) { c.API.PageSize = 500 }},
		{"zero retries", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"bad format", func(c *Config) { c.Output.Format = "parquet" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestHasCredentials(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.HasCredentials())

	cfg.API.ClientKey = "key"
	assert.False(t, cfg.HasCredentials())

	cfg.API.ClientSecret = "secret"
	assert.True(t, cfg.HasCredentials())
}
