package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Session.Lifetime.Std() != 30*24*time.Hour {
		t.Errorf("session lifetime = %v, want 720h", cfg.Session.Lifetime.Std())
	}
	if cfg.Session.AccessTokenTTL.Std() != time.Hour {
		t.Errorf("access token TTL = %v, want 1h", cfg.Session.AccessTokenTTL.Std())
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taqa-bff.yaml")
	data := `
listen_addr: ":9090"
log_level: debug
allowed_origins:
  - https://taqa.example
backend:
  base_url: https://api.taqa.example
  timeout: 10s
session:
  cookie_name: sid
  lifetime: 720h
  access_token_ttl: 30m
redis:
  addr: localhost:6379
rate_limit:
  requests_per_second: 5
  burst: 10
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.ListenAddr)
	}
	if cfg.Backend.BaseURL != "https://api.taqa.example" {
		t.Errorf("backend url = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout.Std() != 10*time.Second {
		t.Errorf("timeout = %v", cfg.Backend.Timeout.Std())
	}
	if cfg.Session.CookieName != "sid" {
		t.Errorf("cookie name = %q", cfg.Session.CookieName)
	}
	if cfg.Session.AccessTokenTTL.Std() != 30*time.Minute {
		t.Errorf("access token ttl = %v", cfg.Session.AccessTokenTTL.Std())
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.RateLimit.RequestsPerSecond != 5 || cfg.RateLimit.Burst != 10 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("backend:\n  timeout: soon\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() should reject an unparseable duration")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TAQA_BACKEND_URL", "https://staging-api.taqa.example")
	t.Setenv("TAQA_LISTEN_ADDR", ":7070")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Backend.BaseURL != "https://staging-api.taqa.example" {
		t.Errorf("backend url = %q", cfg.Backend.BaseURL)
	}
	if cfg.ListenAddr != ":7070" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
}

func TestValidateRequiresBackendURL(t *testing.T) {
	cfg := Default()
	cfg.Backend.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should require backend.base_url")
	}
}
