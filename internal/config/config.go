// Package config provides YAML-based configuration loading for IntelliFactory.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the top-level IntelliFactory configuration, loaded from intellifactory.yaml.
// Any field carrying an env tag can be overridden from the environment.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Model     ModelConfig     `yaml:"model"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Hub       HubConfig       `yaml:"hub"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig holds connection settings for the state database.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"IFY_DB_DRIVER"` // "sqlite" or "mysql"
	Path     string `yaml:"path" env:"IFY_DB_PATH"`     // sqlite file path
	Host     string `yaml:"host" env:"IFY_DB_HOST"`
	Port     int    `yaml:"port" env:"IFY_DB_PORT"`
	Name     string `yaml:"name" env:"IFY_DB_NAME"`
	User     string `yaml:"user" env:"IFY_DB_USER"`
	Password string `yaml:"password" env:"IFY_DB_PASSWORD"`
}

// ModelConfig selects and configures the advisor backend.
type ModelConfig struct {
	Provider    string  `yaml:"provider" env:"IFY_MODEL_PROVIDER"` // "openai" or "anthropic"
	BaseURL     string  `yaml:"base_url" env:"IFY_MODEL_BASE_URL"`
	APIKey      string  `yaml:"api_key" env:"IFY_MODEL_API_KEY"`
	Name        string  `yaml:"name" env:"IFY_MODEL"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

// PipelineConfig bounds how long and how often an advisor is asked.
type PipelineConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout" env:"IFY_ATTEMPT_TIMEOUT"`
}

// HubConfig sizes per-subscriber event buffers.
type HubConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// DashboardConfig holds HTTP server settings.
type DashboardConfig struct {
	Port int `yaml:"port" env:"IFY_DASHBOARD_PORT"`
}

// ScheduleConfig enables periodic run-all cycles. Empty Cron disables them.
type ScheduleConfig struct {
	Cron string `yaml:"cron" env:"IFY_SCHEDULE_CRON"`
}

// NotifyConfig configures chat notifications for decision and state events.
type NotifyConfig struct {
	SlackWebhookURL  string `yaml:"slack_webhook_url" env:"IFY_SLACK_WEBHOOK_URL"`
	DiscordToken     string `yaml:"discord_token" env:"IFY_DISCORD_TOKEN"`
	DiscordChannelID string `yaml:"discord_channel_id" env:"IFY_DISCORD_CHANNEL_ID"`
	FallbackOnly     bool   `yaml:"fallback_only"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `yaml:"level" env:"IFY_LOG_LEVEL"`
	Format string `yaml:"format"` // "text" or "json"
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes, applies environment overrides and returns a
// validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "intellifactory.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "intellifactory"
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}

	if c.Model.Provider == "" {
		c.Model.Provider = "openai"
	}
	if c.Model.Temperature == 0 {
		c.Model.Temperature = 0.1
	}
	if c.Model.MaxTokens == 0 {
		c.Model.MaxTokens = 1024
	}

	if c.Pipeline.MaxAttempts == 0 {
		c.Pipeline.MaxAttempts = 3
	}
	if c.Pipeline.AttemptTimeout == 0 {
		c.Pipeline.AttemptTimeout = 30 * time.Second
	}
	if c.Hub.BufferSize == 0 {
		c.Hub.BufferSize = 64
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Sprintf("model.provider %q must be openai or anthropic", c.Model.Provider))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errs = append(errs, "model.temperature must be within [0, 2]")
	}
	if c.Pipeline.MaxAttempts < 1 {
		errs = append(errs, "pipeline.max_attempts must be at least 1")
	}
	if c.Pipeline.AttemptTimeout < 0 {
		errs = append(errs, "pipeline.attempt_timeout must be positive")
	}
	if c.Hub.BufferSize < 1 {
		errs = append(errs, "hub.buffer_size must be at least 1")
	}
	if c.Dashboard.Port < 1 || c.Dashboard.Port > 65535 {
		errs = append(errs, fmt.Sprintf("dashboard.port %d out of range", c.Dashboard.Port))
	}
	if (c.Notify.DiscordToken == "") != (c.Notify.DiscordChannelID == "") {
		errs = append(errs, "notify.discord_token and notify.discord_channel_id must be set together")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
