// Package config provides YAML-based configuration loading for Bullpen.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Evolution may be configured stricter than these, never looser.
const (
	minEvolutionFeedback = 3
	minEvolutionCooldown = time.Hour
)

// Config is the top-level Bullpen configuration, loaded from bullpen.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Models    ModelsConfig    `yaml:"models"`
	Pricing   []PriceConfig   `yaml:"pricing"`
	Evolution EvolutionConfig `yaml:"evolution"`
	Reaper    ReaperConfig    `yaml:"reaper"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
	Starters  []StarterConfig `yaml:"starters"`
}

// DatabaseConfig selects and addresses the relational store. The mysql
// driver speaks to MySQL or Dolt; sqlite keeps everything in one local file.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ModelsConfig configures model resolution. DefaultModel is the system
// default used when neither the agent nor the user names a model.
type ModelsConfig struct {
	DefaultModel string           `yaml:"default_model"`
	Providers    []ProviderConfig `yaml:"providers"`
}

// ProviderConfig registers one model provider. Model IDs are written as
// "<name>:<model>", e.g. "google:gemini-2.5-flash".
type ProviderConfig struct {
	Name      string `yaml:"name"`
	Backend   string `yaml:"backend"` // gemini or vertex
	APIKeyEnv string `yaml:"api_key_env"`
	Project   string `yaml:"project"`
	Location  string `yaml:"location"`
}

// PriceConfig is the per-million-token price of one model, in cents.
type PriceConfig struct {
	Model             string  `yaml:"model"`
	InputCentsPerMil  float64 `yaml:"input_cents_per_million"`
	OutputCentsPerMil float64 `yaml:"output_cents_per_million"`
}

// EvolutionConfig tunes the prompt evolution gate.
type EvolutionConfig struct {
	Enabled       *bool         `yaml:"enabled"`
	MinFeedback   int           `yaml:"min_feedback"`
	Cooldown      time.Duration `yaml:"cooldown"`
	TruncateChars int           `yaml:"truncate_chars"`
	Model         string        `yaml:"model"`
}

// ReaperConfig schedules the sweep that fails abandoned executions.
type ReaperConfig struct {
	Schedule   string        `yaml:"schedule"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// NotifyConfig enables chat notifications for finished dispatches.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack bot credentials.
type SlackConfig struct {
	BotTokenEnv string `yaml:"bot_token_env"`
	Channel     string `yaml:"channel"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotTokenEnv string `yaml:"bot_token_env"`
	ChannelID   string `yaml:"channel_id"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// StarterConfig is a specialist template seeded for every new user.
type StarterConfig struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	SystemPrompt string `yaml:"system_prompt"`
	Model        string `yaml:"model"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EvolutionEnabled reports whether feedback should trigger evolution.
func (c *Config) EvolutionEnabled() bool {
	return c.Evolution.Enabled == nil || *c.Evolution.Enabled
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	switch c.Database.Driver {
	case "mysql":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "bullpen"
		}
	case "sqlite":
		if c.Database.Path == "" {
			c.Database.Path = "bullpen.db"
		}
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	for i := range c.Models.Providers {
		if c.Models.Providers[i].Backend == "" {
			c.Models.Providers[i].Backend = "gemini"
		}
	}
	if c.Evolution.MinFeedback == 0 {
		c.Evolution.MinFeedback = minEvolutionFeedback
	}
	if c.Evolution.Cooldown == 0 {
		c.Evolution.Cooldown = minEvolutionCooldown
	}
	if c.Evolution.TruncateChars == 0 {
		c.Evolution.TruncateChars = 500
	}
	if c.Reaper.Schedule == "" {
		c.Reaper.Schedule = "*/10 * * * *"
	}
	if c.Reaper.StaleAfter == 0 {
		c.Reaper.StaleAfter = 30 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (mysql, sqlite)", c.Database.Driver))
	}
	if c.Models.DefaultModel == "" {
		errs = append(errs, "models.default_model is required")
	} else if !strings.Contains(c.Models.DefaultModel, ":") {
		errs = append(errs, fmt.Sprintf("models.default_model %q must be written as provider:model", c.Models.DefaultModel))
	}
	if len(c.Models.Providers) == 0 {
		errs = append(errs, "at least one models.providers entry is required")
	}
	for i, p := range c.Models.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("models.providers[%d].name is required", i))
		}
		switch p.Backend {
		case "gemini":
			if p.APIKeyEnv == "" {
				errs = append(errs, fmt.Sprintf("models.providers[%d].api_key_env is required for the gemini backend", i))
			}
		case "vertex":
			if p.Project == "" {
				errs = append(errs, fmt.Sprintf("models.providers[%d].project is required for the vertex backend", i))
			}
		default:
			errs = append(errs, fmt.Sprintf("models.providers[%d].backend %q is not supported (gemini, vertex)", i, p.Backend))
		}
	}
	for i, p := range c.Pricing {
		if p.Model == "" {
			errs = append(errs, fmt.Sprintf("pricing[%d].model is required", i))
		}
		if p.InputCentsPerMil < 0 || p.OutputCentsPerMil < 0 {
			errs = append(errs, fmt.Sprintf("pricing[%d] prices must not be negative", i))
		}
	}
	if c.Evolution.MinFeedback < minEvolutionFeedback {
		errs = append(errs, fmt.Sprintf("evolution.min_feedback must be at least %d", minEvolutionFeedback))
	}
	if c.Evolution.Cooldown < minEvolutionCooldown {
		errs = append(errs, fmt.Sprintf("evolution.cooldown must be at least %s", minEvolutionCooldown))
	}
	if c.Notify.Slack.BotTokenEnv != "" && c.Notify.Slack.Channel == "" {
		errs = append(errs, "notify.slack.channel is required when a bot token is configured")
	}
	if c.Notify.Discord.BotTokenEnv != "" && c.Notify.Discord.ChannelID == "" {
		errs = append(errs, "notify.discord.channel_id is required when a bot token is configured")
	}
	for i, s := range c.Starters {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("starters[%d].name is required", i))
		}
		if s.SystemPrompt == "" {
			errs = append(errs, fmt.Sprintf("starters[%d].system_prompt is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
