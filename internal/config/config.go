// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultVersion is reported by /health when APP_VERSION is unset.
const DefaultVersion = "dev"

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host    string `envconfig:"RAGEVAL_HOST" yaml:"host"`
	Port    int    `envconfig:"RAGEVAL_PORT" yaml:"port"`
	Version string `envconfig:"APP_VERSION" yaml:"version"`

	// Evaluation configuration
	Eval EvalConfig `yaml:"eval"`

	// Judgments store configuration
	Judgments JudgmentsConfig `yaml:"judgments"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Chapters generator configuration
	Chapters ChaptersConfig `yaml:"chapters"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// EvalConfig holds metric cutoffs.
type EvalConfig struct {
	Ks       []int `envconfig:"RAGEVAL_EVAL_KS" yaml:"ks"`
	DefaultK int   `envconfig:"RAGEVAL_DEFAULT_K" yaml:"default_k"`
}

// JudgmentsConfig selects the ground-truth backend.
type JudgmentsConfig struct {
	Type       string `envconfig:"RAGEVAL_JUDGMENTS_TYPE" yaml:"type"`
	RedisURL   string `envconfig:"RAGEVAL_REDIS_URL" yaml:"redis_url"`
	KeyPrefix  string `envconfig:"RAGEVAL_REDIS_KEY_PREFIX" yaml:"key_prefix"`
	SQLitePath string `envconfig:"RAGEVAL_SQLITE_PATH" yaml:"sqlite_path"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"RAGEVAL_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"RAGEVAL_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"RAGEVAL_KAFKA_GROUP" yaml:"kafka_group"`
}

// ChaptersConfig holds the course chapter generator paths.
type ChaptersConfig struct {
	PlanPath string `envconfig:"RAGEVAL_CHAPTERS_PLAN" yaml:"plan"`
	OutDir   string `envconfig:"RAGEVAL_CHAPTERS_OUT" yaml:"out"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"RAGEVAL_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"RAGEVAL_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	RateLimit int `envconfig:"RAGEVAL_RATE_LIMIT" yaml:"rate_limit"` // requests/s per IP, 0 = disabled
	RateBurst int `envconfig:"RAGEVAL_RATE_BURST" yaml:"rate_burst"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	MetricsEnabled bool   `envconfig:"RAGEVAL_METRICS_ENABLED" yaml:"metrics_enabled"`
	MetricsPath    string `envconfig:"RAGEVAL_METRICS_PATH" yaml:"metrics_path"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8000
	cfg.Version = DefaultVersion

	cfg.Eval = EvalConfig{
		Ks:       []int{1, 3, 5, 10},
		DefaultK: 5,
	}

	cfg.Judgments = JudgmentsConfig{
		Type:       "memory",
		RedisURL:   "redis://localhost:6379",
		KeyPrefix:  "rageval:judgments:",
		SQLitePath: "./data/judgments.db",
	}

	cfg.Bus = BusConfig{
		Type:       "memory",
		KafkaGroup: "rageval",
	}

	cfg.Chapters = ChaptersConfig{
		PlanPath: "LEARNING_PLAN.md",
		OutDir:   "docs/chapters",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit: 0,
		RateBurst: 20,
	}

	cfg.Observability = ObservabilityConfig{
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	// Eval validation
	if len(c.Eval.Ks) == 0 {
		errs = append(errs, "eval.ks must not be empty")
	}
	for _, k := range c.Eval.Ks {
		if k < 1 {
			errs = append(errs, fmt.Sprintf("eval.ks values must be positive, got %d", k))
			break
		}
	}
	if c.Eval.DefaultK < 1 {
		errs = append(errs, "eval.default_k must be positive")
	}

	// Judgments validation
	switch c.Judgments.Type {
	case "memory":
	case "redis":
		if c.Judgments.RedisURL == "" {
			errs = append(errs, "judgments.redis_url is required for the redis store")
		}
	case "sqlite":
		if c.Judgments.SQLitePath == "" {
			errs = append(errs, "judgments.sqlite_path is required for the sqlite store")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid judgments type: %s (must be memory, redis, or sqlite)", c.Judgments.Type))
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && strings.TrimSpace(c.Bus.KafkaBrokers) == "" {
		errs = append(errs, "bus.kafka_brokers is required for the kafka bus")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	// Security validation
	if c.Security.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}
	if c.Security.RateLimit > 0 && c.Security.RateBurst < 1 {
		errs = append(errs, "rate_burst must be positive when rate limiting is enabled")
	}

	if c.Observability.MetricsEnabled && !strings.HasPrefix(c.Observability.MetricsPath, "/") {
		errs = append(errs, "metrics_path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
