// Package config loads the service configuration from YAML with environment
// fallbacks for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/logoforge-dev/logoforge/agent"
)

// Config is the application configuration.
type Config struct {
	// API keys
	OpenAIKey string `yaml:"openai_key"`

	// Model configuration
	DefaultModel      string  `yaml:"default_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Per-agent definitions, keyed by agent ID. Optional; agents without an
	// entry run with defaults.
	Agents map[string]agent.Def `yaml:"agents"`

	// PlanPath names a YAML execution plan overriding the built-in one.
	PlanPath string `yaml:"plan_path"`

	Retry  RetryConfig  `yaml:"retry"`
	Redis  RedisConfig  `yaml:"redis"`
	Server ServerConfig `yaml:"server"`

	Debug bool `yaml:"debug"`
}

// RetryConfig controls agent retry behavior.
type RetryConfig struct {
	Enabled        bool `yaml:"enabled"`
	MaxRetries     int  `yaml:"max_retries"`
	InitialDelayMS int  `yaml:"initial_delay_ms"`
}

// InitialDelay returns the configured backoff as a duration.
func (r RetryConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMS) * time.Millisecond
}

// RedisConfig controls the result cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLHours int    `yaml:"ttl_hours"`
}

// TTL returns the cache lifetime as a duration.
func (r RedisConfig) TTL() time.Duration {
	return time.Duration(r.TTLHours) * time.Hour
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port                int `yaml:"port"`
	MetricsPort         int `yaml:"metrics_port"`
	HeartbeatIntervalMS int `yaml:"heartbeat_interval_ms"`
}

// HeartbeatInterval returns the stream heartbeat cadence.
func (s ServerConfig) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalMS) * time.Millisecond
}

// FileReader abstracts file access so tests can load config from memory.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// OSFileReader reads from the real filesystem.
type OSFileReader struct{}

func (OSFileReader) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// Load reads configuration from a YAML file on disk.
func Load(path string) (*Config, error) {
	return LoadWith(OSFileReader{}, path)
}

// LoadWith reads configuration through the given reader.
func LoadWith(fr FileReader, path string) (*Config, error) {
	data, err := fr.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a usable configuration without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.OpenAIKey == "" {
		c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 2
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.Enabled = true
		c.Retry.MaxRetries = 2
	}
	if c.Retry.InitialDelayMS == 0 {
		c.Retry.InitialDelayMS = 500
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if c.Redis.TTLHours == 0 {
		c.Redis.TTLHours = 24
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	if c.Server.HeartbeatIntervalMS == 0 {
		c.Server.HeartbeatIntervalMS = 5000
	}
}

// Validate checks constraints the loader cannot default away.
func (c *Config) Validate() error {
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis enabled but no addr configured")
	}
	if c.Server.Port == c.Server.MetricsPort {
		return fmt.Errorf("server and metrics ports collide (%d)", c.Server.Port)
	}
	return nil
}
