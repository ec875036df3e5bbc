package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
	Links     LinksConfig     `yaml:"links"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SMTPConfig configures the smarthost the dispatcher relays through.
type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	StartTLS bool          `yaml:"starttls"`
	Hostname string        `yaml:"hostname"` // HELO name
	Timeout  time.Duration `yaml:"timeout"`  // per-send timeout
}

// DispatchConfig holds defaults applied to new campaigns.
type DispatchConfig struct {
	DefaultBatchSize       int `yaml:"default_batch_size"`
	DefaultBatchIntervalMs int `yaml:"default_batch_interval_ms"`
}

// RateLimitConfig caps outbound sends per recipient domain.
type RateLimitConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Path            string `yaml:"path"` // bbolt counter database
	MessagesPerHour int    `yaml:"messages_per_hour"`
	MessagesPerDay  int    `yaml:"messages_per_day"`
}

type AuthConfig struct {
	// APIKeys authorize management requests. An empty list disables auth
	// (local development only).
	APIKeys []string `yaml:"api_keys"`

	// UnsubscribeSecret signs unsubscribe links embedded in outgoing mail.
	UnsubscribeSecret string `yaml:"unsubscribe_secret"`
}

// LinksConfig controls URLs embedded in rendered messages.
type LinksConfig struct {
	BaseURL string `yaml:"base_url"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8085"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/campaigner/app.db"
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.Hostname == "" {
		cfg.SMTP.Hostname = "localhost"
	}
	if cfg.SMTP.Timeout == 0 {
		cfg.SMTP.Timeout = 30 * time.Second
	}
	if cfg.Dispatch.DefaultBatchSize == 0 {
		cfg.Dispatch.DefaultBatchSize = 10
	}
	if cfg.Dispatch.DefaultBatchIntervalMs == 0 {
		cfg.Dispatch.DefaultBatchIntervalMs = 300000
	}
	if cfg.RateLimit.Path == "" {
		cfg.RateLimit.Path = "/var/lib/campaigner/ratelimit.db"
	}
	if cfg.Links.BaseURL == "" {
		cfg.Links.BaseURL = "http://localhost:8085"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required")
	}
	if cfg.Auth.UnsubscribeSecret == "" {
		return fmt.Errorf("auth.unsubscribe_secret is required")
	}
	if len(cfg.Auth.UnsubscribeSecret) < 32 {
		return fmt.Errorf("auth.unsubscribe_secret must be at least 32 characters")
	}
	if cfg.Dispatch.DefaultBatchSize < 1 {
		return fmt.Errorf("dispatch.default_batch_size must be positive")
	}
	if cfg.Dispatch.DefaultBatchIntervalMs < 0 {
		return fmt.Errorf("dispatch.default_batch_interval_ms must not be negative")
	}
	return nil
}
