package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server address", func(c *Config) { c.Server.Address = "" }},
		{"zero ping interval", func(c *Config) { c.Signal.PingInterval = 0 }},
		{"zero reconnect delay", func(c *Config) { c.Chat.ReconnectDelay = 0 }},
		{"zero negotiation timeout", func(c *Config) { c.Chat.NegotiationTimeout = 0 }},
		{"empty jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"redis enabled without address", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Address = ""
		}},
		{"tracing sample rate out of range", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 1.5
		}},
		{"rate limiting enabled with zero rps", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.HTTP.RequestsPerSecond = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Signal.PingInterval.Std() != 30*time.Second {
		t.Errorf("ping interval = %v, want 30s", cfg.Signal.PingInterval)
	}
}

func TestLoad_ReadsYAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  address: ":9000"
chat:
  reconnect_delay: 2s
auth:
  jwt_secret: "file-secret"
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CAMPUSCHAT_JWT_SECRET", "env-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":9000" {
		t.Errorf("server address = %q, want :9000", cfg.Server.Address)
	}
	if cfg.Chat.ReconnectDelay.Std() != 2*time.Second {
		t.Errorf("reconnect delay = %v, want 2s", cfg.Chat.ReconnectDelay)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("jwt secret = %q, env override should win", cfg.Auth.JWTSecret)
	}
}

func TestICEServerURLs_FallsBackToSTUN(t *testing.T) {
	cfg := DefaultConfig()
	urls := cfg.ICEServerURLs()
	if len(urls) != 1 || urls[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("unexpected fallback urls: %v", urls)
	}
}
