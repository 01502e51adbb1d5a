package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, ":9980", cfg.App.HTTPAddr)
	assert.Equal(t, "binance", cfg.Data.Provider)
	assert.Equal(t, 480, cfg.Data.RateLimitPerMin)
	assert.Equal(t, 3, cfg.Sandbox.MaxConcurrent)
	assert.Equal(t, 60, cfg.Sandbox.TimeoutSeconds)
	assert.Equal(t, "data/runs.db", cfg.Store.RunsDB)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  http_addr: ":8100"
  log_level: debug
data:
  provider: synthetic
sandbox:
  max_concurrent: 5
  timeout_seconds: 120
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8100", cfg.App.HTTPAddr)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "synthetic", cfg.Data.Provider)
	assert.Equal(t, 5, cfg.Sandbox.MaxConcurrent)
	assert.Equal(t, 120, cfg.Sandbox.TimeoutSeconds)
	// 未覆盖的字段保持默认
	assert.Equal(t, "data/candles", cfg.Data.Dir)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad provider", "data:\n  provider: kraken\n"},
		{"bad log level", "app:\n  log_level: trace\n"},
		{"concurrency too high", "sandbox:\n  max_concurrent: 100\n"},
		{"timeout too high", "sandbox:\n  timeout_seconds: 900\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
