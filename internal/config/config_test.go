package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TWITCH_USERNAME", "viewer")

	cfg := Load()
	if cfg.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d, want 4", cfg.MaxWorkers)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %s, want 30s", cfg.PollInterval)
	}
	if cfg.RetryDelay != 60*time.Second {
		t.Errorf("RetryDelay = %s, want 60s", cfg.RetryDelay)
	}
	if cfg.StatsInterval != 300*time.Second {
		t.Errorf("StatsInterval = %s, want 300s", cfg.StatsInterval)
	}
	if cfg.StatsTimeout != 10*time.Second {
		t.Errorf("StatsTimeout = %s, want 10s", cfg.StatsTimeout)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MAX_WORKERS", "2")
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("RETRY_DELAY", "90")
	t.Setenv("PRIMARY_CHANNEL", "MixWell")
	t.Setenv("CLAIM_REWARD", "75.5")

	cfg := Load()
	if cfg.MaxWorkers != 2 {
		t.Errorf("MaxWorkers = %d, want 2", cfg.MaxWorkers)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %s, want 5s", cfg.PollInterval)
	}
	if cfg.RetryDelay != 90*time.Second {
		t.Errorf("RetryDelay = %s, want 90s (bare seconds)", cfg.RetryDelay)
	}
	if cfg.PrimaryChannel != "mixwell" {
		t.Errorf("PrimaryChannel = %q, want lowercased", cfg.PrimaryChannel)
	}
	if cfg.ClaimReward != 75.5 {
		t.Errorf("ClaimReward = %v, want 75.5", cfg.ClaimReward)
	}
}

func TestLoad_InvalidFallsBack(t *testing.T) {
	t.Setenv("MAX_WORKERS", "many")
	t.Setenv("POLL_INTERVAL", "-3s")

	cfg := Load()
	if cfg.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d, want fallback 4", cfg.MaxWorkers)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %s, want fallback 30s", cfg.PollInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"missing username", func(c *Config) { c.Username = "" }, true},
		{"empty primary", func(c *Config) { c.PrimaryChannel = "" }, true},
		{"malformed primary", func(c *Config) { c.PrimaryChannel = "not/a/channel" }, true},
		{"zero workers", func(c *Config) { c.MaxWorkers = 0 }, true},
		{"bad session mode", func(c *Config) { c.SessionMode = "pooled" }, true},
		{"shared session mode", func(c *Config) { c.SessionMode = "shared" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TWITCH_USERNAME", "viewer")
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
