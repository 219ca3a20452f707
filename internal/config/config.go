package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type GatewayConfig struct {
	BaseURL       string `yaml:"base_url"`
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	SuccessURL    string `yaml:"success_url"`
	CancelURL     string `yaml:"cancel_url"`
}

type TokensConfig struct {
	// FallbackPerUnit converts a paid amount into tokens when session
	// metadata carries no explicit tokenAmount.
	FallbackPerUnit float64 `yaml:"fallback_per_unit"`
	// DeductCost is the flat rate charged per feature action.
	DeductCost int64 `yaml:"deduct_cost"`
	// MonthlyGrant is the amount credited to each premium user per month.
	MonthlyGrant int64 `yaml:"monthly_grant"`
}

type WebConfig struct {
	Port        int           `yaml:"port"`
	AdminSecret string        `yaml:"admin_secret"` // HMAC key for operator session tokens
	AdminTTL    time.Duration `yaml:"admin_ttl"`
}

type WorkersConfig struct {
	GrantInterval  time.Duration `yaml:"grant_interval"`
	ResyncInterval time.Duration `yaml:"resync_interval"`
	ResyncAfter    time.Duration `yaml:"resync_after"` // how old a degraded row must be to retry
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Tokens   TokensConfig   `yaml:"tokens"`
	Web      WebConfig      `yaml:"web"`
	Workers  WorkersConfig  `yaml:"workers"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.Tokens.FallbackPerUnit <= 0 {
		cfg.Tokens.FallbackPerUnit = 10
	}
	if cfg.Tokens.DeductCost <= 0 {
		cfg.Tokens.DeductCost = 1
	}
	if cfg.Tokens.MonthlyGrant <= 0 {
		cfg.Tokens.MonthlyGrant = 100
	}
	if cfg.Web.Port <= 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Web.AdminTTL <= 0 {
		cfg.Web.AdminTTL = 30 * time.Minute
	}
	if cfg.Workers.GrantInterval <= 0 {
		cfg.Workers.GrantInterval = time.Hour
	}
	if cfg.Workers.ResyncInterval <= 0 {
		cfg.Workers.ResyncInterval = 5 * time.Minute
	}
	if cfg.Workers.ResyncAfter <= 0 {
		cfg.Workers.ResyncAfter = 10 * time.Minute
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Gateway.SecretKey == "" {
		return nil, errors.New("gateway.secret_key is required")
	}
	if cfg.Gateway.WebhookSecret == "" {
		return nil, errors.New("gateway.webhook_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
