package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk YAML layout. Durations are written in
// time.Duration string form so that files stay readable and load back
// through viper.
type fileConfig struct {
	BaseURL           string           `yaml:"base_url"`
	UserAgent         string           `yaml:"user_agent"`
	JQL               string           `yaml:"jql"`
	Projects          []string         `yaml:"projects,omitempty"`
	PageSize          int              `yaml:"page_size"`
	Cap               int              `yaml:"cap"`
	Workers           int              `yaml:"workers"`
	Timeout           string           `yaml:"timeout"`
	MaxAttempts       int              `yaml:"max_attempts"`
	RateLimitWait     string           `yaml:"rate_limit_wait"`
	ServerErrorWait   string           `yaml:"server_error_wait"`
	RequestsPerSecond float64          `yaml:"requests_per_second"`
	Burst             int              `yaml:"burst"`
	Output            string           `yaml:"output"`
	Checkpoint        CheckpointConfig `yaml:"checkpoint"`
	MetricsAddr       string           `yaml:"metrics_addr,omitempty"`
	LogLevel          string           `yaml:"log_level"`
	LogPretty         bool             `yaml:"log_pretty"`
}

// MarshalYAML implements yaml.Marshaler.
func (c Config) MarshalYAML() (any, error) {
	return fileConfig{
		BaseURL:           c.BaseURL,
		UserAgent:         c.UserAgent,
		JQL:               c.JQL,
		Projects:          c.Projects,
		PageSize:          c.PageSize,
		Cap:               c.Cap,
		Workers:           c.Workers,
		Timeout:           c.Timeout.String(),
		MaxAttempts:       c.MaxAttempts,
		RateLimitWait:     c.RateLimitWait.String(),
		ServerErrorWait:   c.ServerErrorWait.String(),
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		Output:            c.Output,
		Checkpoint:        c.Checkpoint,
		MetricsAddr:       c.MetricsAddr,
		LogLevel:          c.LogLevel,
		LogPretty:         c.LogPretty,
	}, nil
}

// Marshal renders the config in the YAML layout Load reads.
func Marshal(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshalling config: %w", err)
	}
	return data, nil
}

// Save writes the config as YAML to path, creating its directory.
func Save(cfg Config, path string) error {
	if path == "" {
		path = DefaultFileName
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
