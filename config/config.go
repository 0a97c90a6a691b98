// Package config provides configuration loading and management for agrichat.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete agrichat configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	NATS     NATSConfig     `yaml:"nats"`
	CropSim  CropSimConfig  `yaml:"crop_sim"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address (default: ":8080").
	Addr string `yaml:"addr"`
	// ShutdownTimeout bounds graceful shutdown on SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StageConfig configures one upstream reasoning service.
type StageConfig struct {
	// URL is the service base URL (empty = not configured).
	URL string `yaml:"url"`
	// Timeout is the overall deadline for one logical call, retries included.
	Timeout time.Duration `yaml:"timeout"`
	// MaxAttempts is the number of attempts before the stage is failed.
	MaxAttempts int `yaml:"max_attempts"`
}

// UpstreamConfig configures the three reasoning services.
type UpstreamConfig struct {
	Planner  StageConfig `yaml:"planner"`
	Decision StageConfig `yaml:"decision"`
	Answerer StageConfig `yaml:"answerer"`
	// BackoffBase is the first retry delay; it doubles on each retry.
	BackoffBase time.Duration `yaml:"backoff_base"`
}

// NATSConfig configures the NATS connection used for persistence.
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server).
	URL string `yaml:"url"`
	// Embedded indicates whether to run an in-process NATS server.
	Embedded bool `yaml:"embedded"`
}

// CropSimConfig configures the crop simulation engine.
type CropSimConfig struct {
	// PatternFile is an optional yaml pattern table for the event detector.
	// Empty means the built-in table is used.
	PatternFile string `yaml:"pattern_file"`
	// WatchPatterns reloads the pattern table when the file changes.
	WatchPatterns bool `yaml:"watch_patterns"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Upstream: UpstreamConfig{
			Planner: StageConfig{
				URL:         "http://localhost:8001",
				Timeout:     30 * time.Second,
				MaxAttempts: 2,
			},
			Decision: StageConfig{
				URL:         "http://localhost:8000",
				Timeout:     25 * time.Second,
				MaxAttempts: 2,
			},
			Answerer: StageConfig{
				URL:         "http://localhost:8002",
				Timeout:     30 * time.Second,
				MaxAttempts: 3,
			},
			BackoffBase: 1 * time.Second,
		},
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		CropSim: CropSimConfig{
			PatternFile:   "",
			WatchPatterns: false,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Upstream.Planner.URL == "" {
		return fmt.Errorf("upstream.planner.url is required")
	}
	if c.Upstream.Answerer.URL == "" {
		return fmt.Errorf("upstream.answerer.url is required")
	}
	for _, s := range []struct {
		name  string
		stage StageConfig
	}{
		{"planner", c.Upstream.Planner},
		{"decision", c.Upstream.Decision},
		{"answerer", c.Upstream.Answerer},
	} {
		if s.stage.MaxAttempts < 1 {
			return fmt.Errorf("upstream.%s.max_attempts must be at least 1", s.name)
		}
		if s.stage.Timeout <= 0 {
			return fmt.Errorf("upstream.%s.timeout must be positive", s.name)
		}
	}
	if c.Upstream.BackoffBase <= 0 {
		return fmt.Errorf("upstream.backoff_base must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// An explicit NATS URL points at an external server, as in Merge.
	if config.NATS.URL != "" {
		config.NATS.Embedded = false
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}

	mergeStage(&c.Upstream.Planner, other.Upstream.Planner)
	mergeStage(&c.Upstream.Decision, other.Upstream.Decision)
	mergeStage(&c.Upstream.Answerer, other.Upstream.Answerer)
	if other.Upstream.BackoffBase != 0 {
		c.Upstream.BackoffBase = other.Upstream.BackoffBase
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}

	if other.CropSim.PatternFile != "" {
		c.CropSim.PatternFile = other.CropSim.PatternFile
	}
	if other.CropSim.WatchPatterns {
		c.CropSim.WatchPatterns = true
	}
}

func mergeStage(dst *StageConfig, src StageConfig) {
	if src.URL != "" {
		dst.URL = src.URL
	}
	if src.Timeout != 0 {
		dst.Timeout = src.Timeout
	}
	if src.MaxAttempts != 0 {
		dst.MaxAttempts = src.MaxAttempts
	}
}
