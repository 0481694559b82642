package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "./data/launchpad.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10*time.Minute, cfg.Orchestrator.StrategyTimeout)
	assert.Equal(t, 2*time.Second, cfg.Orchestrator.RetryBackoff)
	assert.Equal(t, 300*time.Millisecond, cfg.Orchestrator.SimulatedStepDelay)
	assert.Equal(t, 5*time.Second, cfg.Dispatcher.Interval)
	assert.Equal(t, 3, cfg.Dispatcher.MaxConcurrent)
	assert.True(t, cfg.Rotator.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Rotator.Interval)
	assert.Empty(t, cfg.Vault.MasterSecret)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  read_timeout: 60s
  shutdown_timeout: 15s

database:
  dsn: "/tmp/test.db"

log:
  level: "debug"
  format: "text"

orchestrator:
  strategy_timeout: 5m
  retry_backoff: 1s

dispatcher:
  interval: 10s
  max_concurrent: 8
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 5*time.Minute, cfg.Orchestrator.StrategyTimeout)
	assert.Equal(t, time.Second, cfg.Orchestrator.RetryBackoff)
	assert.Equal(t, 10*time.Second, cfg.Dispatcher.Interval)
	assert.Equal(t, 8, cfg.Dispatcher.MaxConcurrent)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("LAUNCHPAD_SERVER_HOST", "192.168.1.1")
	t.Setenv("LAUNCHPAD_SERVER_PORT", "3000")
	t.Setenv("LAUNCHPAD_DATABASE_DSN", "/custom/path.db")
	t.Setenv("LAUNCHPAD_LOG_LEVEL", "warn")
	t.Setenv("LAUNCHPAD_VAULT_MASTER_SECRET", "test-master-secret")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "test-master-secret", cfg.Vault.MasterSecret)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err) // Should not error, just use defaults

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		cfg := &Config{
			Log: LogConfig{Level: "info", Format: format},
		}
		assert.NotNil(t, SetupLogger(cfg))
	}
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{Level: "invalid", Format: "json"},
	}

	// Should fall back to info level, not panic
	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
}

func TestSetupLogger_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := &Config{
			Log: LogConfig{Level: level, Format: "json"},
		}
		assert.NotNil(t, SetupLogger(cfg))
	}
}

// =============================================================================
// Config Validation Tests
// =============================================================================

func TestConfig_Address(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}

	assert.Equal(t, "localhost:8080", cfg.Server.Address())
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"LAUNCHPAD_SERVER_HOST",
		"LAUNCHPAD_SERVER_PORT",
		"LAUNCHPAD_DATABASE_DSN",
		"LAUNCHPAD_LOG_LEVEL",
		"LAUNCHPAD_LOG_FORMAT",
		"LAUNCHPAD_VAULT_MASTER_SECRET",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
