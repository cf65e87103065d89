// Package config loads runtime configuration from an optional YAML file and
// COURSEBOT_* environment variables, environment taking precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Context  ContextConfig  `mapstructure:"context"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Database DatabaseConfig `mapstructure:"database"`
	Debug    bool           `mapstructure:"debug"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LLMConfig struct {
	APIKey         string            `mapstructure:"api_key"`
	BaseURL        string            `mapstructure:"base_url"`
	Model          string            `mapstructure:"model"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	TrustThreshold float64           `mapstructure:"trust_threshold"`
	MaxRetries     int               `mapstructure:"max_retries"`
	Headers        map[string]string `mapstructure:"headers"`
}

// Timeout returns the per-call model timeout.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

type ContextConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
	MaxUsers   int `mapstructure:"max_users"`
}

// TTL returns the pending-context lifetime.
func (c ContextConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type RulesConfig struct {
	// File points at a YAML rule set; empty keeps the compiled-in rules.
	File string `mapstructure:"file"`
}

type DatabaseConfig struct {
	// URL is a pgx connection string; empty selects the in-memory store.
	URL string `mapstructure:"url"`
}

// Load reads configuration. path names an explicit config file; when empty a
// coursebot.yaml in the working directory is used if present. Missing files
// are not an error, the defaults plus environment carry the day.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COURSEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default (empty counts): AutomaticEnv only surfaces
	// COURSEBOT_* values during Unmarshal for keys viper already knows.
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout_seconds", 10)
	v.SetDefault("llm.trust_threshold", 0.8)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("context.ttl_seconds", 300)
	v.SetDefault("context.max_users", 10000)
	v.SetDefault("rules.file", "")
	v.SetDefault("database.url", "")
	v.SetDefault("debug", false)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("coursebot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.LLM.TrustThreshold < 0 || c.LLM.TrustThreshold > 1 {
		return fmt.Errorf("config: llm.trust_threshold %.2f out of [0,1]", c.LLM.TrustThreshold)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("config: llm.max_retries must not be negative")
	}
	if c.Context.TTLSeconds <= 0 {
		return fmt.Errorf("config: context.ttl_seconds must be positive")
	}
	return nil
}
