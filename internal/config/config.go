// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Feeds configures both data-source adapters and the reconnect policy.
type Feeds struct {
	StreamBaseURL       string `yaml:"stream_base_url"`
	ProviderBaseURL     string `yaml:"provider_base_url"`
	PollIntervalMs      int    `yaml:"poll_interval_ms"`
	RetryMax            int    `yaml:"retry_max"`
	RetryInitialDelayMs int    `yaml:"retry_initial_delay_ms"`
	RetryMaxDelayMs     int    `yaml:"retry_max_delay_ms"`
}

// Holding is one configured position for the valuation loop.
type Holding struct {
	Symbol string  `yaml:"symbol"`
	Amount float64 `yaml:"amount"`
}

// Portfolio configures the valuation loop.
type Portfolio struct {
	Holdings            []Holding `yaml:"holdings"`
	ValuationIntervalMs int       `yaml:"valuation_interval_ms"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Symbols   []string  `yaml:"symbols"`
	Feeds     Feeds     `yaml:"feeds"`
	Portfolio Portfolio `yaml:"portfolio"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
