package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Log          LogConfig          `mapstructure:"log"`
	Vault        VaultConfig        `mapstructure:"vault"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Dispatcher   DispatcherConfig   `mapstructure:"dispatcher"`
	Rotator      RotatorConfig      `mapstructure:"rotator"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// VaultConfig holds credential encryption configuration.
type VaultConfig struct {
	// MasterSecret is the key-derivation secret for credential
	// envelopes. Set via LAUNCHPAD_VAULT_MASTER_SECRET; never put it
	// in a config file that gets committed.
	MasterSecret string `mapstructure:"master_secret"`
}

// OrchestratorConfig holds deployment run configuration.
type OrchestratorConfig struct {
	// StrategyTimeout bounds a single provider strategy attempt.
	StrategyTimeout time.Duration `mapstructure:"strategy_timeout"`

	// RetryBackoff is the pause before retrying a transient provider error.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`

	// SimulatedStepDelay is the fixed latency of each simulated deploy step.
	SimulatedStepDelay time.Duration `mapstructure:"simulated_step_delay"`
}

// DispatcherConfig holds queued-deployment dispatcher configuration.
type DispatcherConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

// RotatorConfig holds credential rotation configuration.
type RotatorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "./data/launchpad.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("vault.master_secret", "")
	v.SetDefault("orchestrator.strategy_timeout", "10m")
	v.SetDefault("orchestrator.retry_backoff", "2s")
	v.SetDefault("orchestrator.simulated_step_delay", "300ms")
	v.SetDefault("dispatcher.interval", "5s")
	v.SetDefault("dispatcher.max_concurrent", 3)
	v.SetDefault("rotator.enabled", true)
	v.SetDefault("rotator.interval", "24h")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("LAUNCHPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
