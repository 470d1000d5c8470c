// Package config loads the BFF service configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// BackendConfig configures the upstream commerce API.
type BackendConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// SessionConfig configures session persistence and token rotation.
type SessionConfig struct {
	CookieName     string   `yaml:"cookie_name"`
	Lifetime       Duration `yaml:"lifetime"`
	AccessTokenTTL Duration `yaml:"access_token_ttl"`
	SweepInterval  Duration `yaml:"sweep_interval"`
}

// RedisConfig configures the optional Redis session store. An empty Addr
// selects the in-memory store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RateLimitConfig configures per-client request throttling.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Config is the root service configuration.
type Config struct {
	ListenAddr     string          `yaml:"listen_addr"`
	LogLevel       string          `yaml:"log_level"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	Backend        BackendConfig   `yaml:"backend"`
	Session        SessionConfig   `yaml:"session"`
	Redis          RedisConfig     `yaml:"redis"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		ListenAddr:     ":8080",
		LogLevel:       "info",
		AllowedOrigins: []string{"*"},
		Backend: BackendConfig{
			BaseURL: "http://localhost:9000",
			Timeout: Duration(30 * time.Second),
		},
		Session: SessionConfig{
			CookieName:     "taqa_session",
			Lifetime:       Duration(30 * 24 * time.Hour),
			AccessTokenTTL: Duration(time.Hour),
			SweepInterval:  Duration(10 * time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}

// Load reads configuration from path, applies environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads config from path if it exists, otherwise returns the
// default configuration with environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		cfg := Default()
		cfg.applyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TAQA_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("TAQA_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("TAQA_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("TAQA_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks required fields and limits.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = Duration(30 * time.Second)
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "taqa_session"
	}
	if c.Session.Lifetime <= 0 {
		return fmt.Errorf("session.lifetime must be positive")
	}
	if c.Session.AccessTokenTTL <= 0 {
		return fmt.Errorf("session.access_token_ttl must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		c.Session.SweepInterval = Duration(10 * time.Minute)
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 20
	}
	if c.RateLimit.Burst < c.RateLimit.RequestsPerSecond {
		c.RateLimit.Burst = c.RateLimit.RequestsPerSecond * 2
	}
	return nil
}
