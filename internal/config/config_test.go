package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if got := cfg.AuthDurationTTL(); got != 180*time.Second {
		t.Errorf("AuthDurationTTL = %s, want 180s", got)
	}
	if got := cfg.SweepIntervalDur(); got != 60*time.Second {
		t.Errorf("SweepIntervalDur = %s, want 60s", got)
	}
	if got := cfg.DecisionBudgetDur(); got != 2500*time.Millisecond {
		t.Errorf("DecisionBudgetDur = %s, want 2.5s", got)
	}
	if cfg.DefaultMaxSessions != 5 {
		t.Errorf("DefaultMaxSessions = %d, want 5", cfg.DefaultMaxSessions)
	}
	if !cfg.EnableAccessLogs {
		t.Error("EnableAccessLogs should default to true")
	}
	if cfg.APIKey != "" {
		t.Errorf("APIKey = %q, want empty", cfg.APIKey)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("AUTH_DURATION", "300s")
	os.Setenv("ENABLE_ACCESS_LOGS", "false")
	os.Setenv("API_KEY", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if got := cfg.AuthDurationTTL(); got != 300*time.Second {
		t.Errorf("AuthDurationTTL = %s, want 300s", got)
	}
	if cfg.EnableAccessLogs {
		t.Error("EnableAccessLogs should be false")
	}
	if cfg.APIKey != "secret" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "secret")
	}
}

func TestLoad_RejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"auth duration too short", "AUTH_DURATION", "5s"},
		{"auth duration too long", "AUTH_DURATION", "2h"},
		{"sweep interval too short", "SWEEP_INTERVAL", "1s"},
		{"decision budget over caller timeout", "DECISION_BUDGET", "4s"},
		{"negative session cap", "DEFAULT_MAX_SESSIONS", "-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load accepted %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{AuthDuration: "garbage", SweepInterval: "", DecisionBudget: "-1s"}
	if got := cfg.AuthDurationTTL(); got != 180*time.Second {
		t.Errorf("AuthDurationTTL fallback = %s, want 180s", got)
	}
	if got := cfg.SweepIntervalDur(); got != 60*time.Second {
		t.Errorf("SweepIntervalDur fallback = %s, want 60s", got)
	}
	if got := cfg.DecisionBudgetDur(); got != 2500*time.Millisecond {
		t.Errorf("DecisionBudgetDur fallback = %s, want 2.5s", got)
	}
}
