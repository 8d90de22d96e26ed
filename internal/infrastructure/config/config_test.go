package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, uint16(80), cfg.Terminal.DefaultCols)
	assert.Equal(t, uint16(24), cfg.Terminal.DefaultRows)
	assert.Equal(t, "zstd", cfg.Remote.Compression)
	assert.False(t, cfg.Remote.IsGuest())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.RateLimit.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                   "9000",
		"HOST":                   "0.0.0.0",
		"TERMINAL_SETTINGS_FILE": "/etc/termd/terminal.toml",
		"TERMINAL_WORKTREES":     "/src/app,/src/lib",
		"REMOTE_ADDR":            "host:7000",
		"REMOTE_PROJECT_ID":      "42",
		"REMOTE_COMPRESSION":     "",
		"REMOTE_CALL_TIMEOUT":    "3s",
		"LOG_LEVEL":              "debug",
		"LOG_DEV":                "true",
		"RATE_LIMIT_ENABLED":     "false",
		"CORS_ORIGINS":           "http://a,http://b",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "/etc/termd/terminal.toml", cfg.Terminal.SettingsFile)
	assert.Equal(t, []string{"/src/app", "/src/lib"}, cfg.Terminal.Worktrees)
	assert.True(t, cfg.Remote.IsGuest())
	assert.Equal(t, uint64(42), cfg.Remote.ProjectID)
	assert.Equal(t, "", cfg.Remote.Compression)
	assert.Equal(t, 3*time.Second, cfg.Remote.CallTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.CORS.Origins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"guest without project id", func(c *Config) { c.Remote.Address = "h:1" }, true},
		{"guest with project id", func(c *Config) { c.Remote.Address = "h:1"; c.Remote.ProjectID = 1 }, false},
		{"guest and host", func(c *Config) {
			c.Remote.Address = "h:1"
			c.Remote.ProjectID = 1
			c.Remote.Listen = ":7000"
		}, true},
		{"unknown compression", func(c *Config) { c.Remote.Compression = "brotli" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProcessSkipsValidation(t *testing.T) {
	t.Setenv("REMOTE_ADDR", "host:7000")
	t.Setenv("REMOTE_PROJECT_ID", "")

	_, err := Load()
	assert.Error(t, err)

	cfg, err := Process()
	require.NoError(t, err)
	assert.True(t, cfg.Remote.IsGuest())
}
