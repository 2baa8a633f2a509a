// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN for tokens, sessions and access logs.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// AuthDuration is the session lease returned in X-AuthDuration (e.g. "180s").
	// The streaming server re-checks the token roughly every AuthDuration.
	AuthDuration string `mapstructure:"AUTH_DURATION"`
	// SweepInterval is how often the expiry sweeper scans for dead sessions (e.g. "60s").
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`
	// DecisionBudget bounds one authorization decision. The streaming server
	// hard-fails the request after 3s, so this must stay well under that.
	DecisionBudget string `mapstructure:"DECISION_BUDGET"`
	// DefaultMaxSessions applies when a token does not carry its own cap. 0 = unlimited.
	DefaultMaxSessions int `mapstructure:"DEFAULT_MAX_SESSIONS"`
	// EnableAccessLogs toggles persisting one access-log entry per decision.
	EnableAccessLogs bool `mapstructure:"ENABLE_ACCESS_LOGS"`
	// APIKey gates the management API when non-empty. The /auth decision
	// endpoint is never gated; the streaming server cannot authenticate itself.
	APIKey string `mapstructure:"API_KEY"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AUTH_DURATION", "180s")
	v.SetDefault("SWEEP_INTERVAL", "60s")
	v.SetDefault("DECISION_BUDGET", "2.5s")
	v.SetDefault("DEFAULT_MAX_SESSIONS", 5)
	v.SetDefault("ENABLE_ACCESS_LOGS", true)
	v.SetDefault("API_KEY", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.DefaultMaxSessions < 0 {
		return nil, errors.New("config: DEFAULT_MAX_SESSIONS must not be negative")
	}
	if d := cfg.AuthDurationTTL(); d < 30*time.Second || d > time.Hour {
		return nil, fmt.Errorf("config: AUTH_DURATION %s out of range [30s, 1h]", d)
	}
	if d := cfg.SweepIntervalDur(); d < 10*time.Second || d > 10*time.Minute {
		return nil, fmt.Errorf("config: SWEEP_INTERVAL %s out of range [10s, 10m]", d)
	}
	if d := cfg.DecisionBudgetDur(); d <= 0 || d >= 3*time.Second {
		return nil, fmt.Errorf("config: DECISION_BUDGET %s must be within (0, 3s)", d)
	}

	return &cfg, nil
}

// AuthDurationTTL parses AuthDuration as a time.Duration. Returns 180s if unset or invalid.
func (c *Config) AuthDurationTTL() time.Duration {
	d, err := time.ParseDuration(c.AuthDuration)
	if err != nil || d <= 0 {
		return 180 * time.Second
	}
	return d
}

// SweepIntervalDur parses SweepInterval as a time.Duration. Returns 60s if unset or invalid.
func (c *Config) SweepIntervalDur() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// DecisionBudgetDur parses DecisionBudget as a time.Duration. Returns 2.5s if unset or invalid.
func (c *Config) DecisionBudgetDur() time.Duration {
	d, err := time.ParseDuration(c.DecisionBudget)
	if err != nil || d <= 0 {
		return 2500 * time.Millisecond
	}
	return d
}
