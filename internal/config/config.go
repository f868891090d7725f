// Package config loads scraper settings from a YAML file, JIRA_SCRAPER_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/jira-scraper/pkg/client"
	"github.com/Sternrassler/jira-scraper/pkg/logging"
	"github.com/Sternrassler/jira-scraper/pkg/pagination"
	"github.com/Sternrassler/jira-scraper/pkg/ratelimit"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. JIRA_SCRAPER_PAGE_SIZE.
const EnvPrefix = "JIRA_SCRAPER"

// DefaultFileName is looked up in the working directory when no config
// file is given.
const DefaultFileName = "jira-scraper.yaml"

// Checkpoint backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Defaults.
const (
	DefaultBaseURL        = "https://issues.apache.org/jira"
	DefaultUserAgent      = "jira-scraper/1.0 (+https://github.com/Sternrassler/jira-scraper)"
	DefaultCheckpointPath = "output/jira_checkpoint.json"
	DefaultOutput         = "output/apache_jira_issues"
)

// CheckpointConfig selects where progress is persisted.
type CheckpointConfig struct {
	Backend   string `yaml:"backend"    mapstructure:"backend"`
	Path      string `yaml:"path"       mapstructure:"path"`
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"   mapstructure:"redis_db"`
	RedisKey  string `yaml:"redis_key"  mapstructure:"redis_key"`
}

// Config holds all scraper settings.
type Config struct {
	BaseURL   string   `mapstructure:"base_url"`
	UserAgent string   `mapstructure:"user_agent"`
	JQL       string   `mapstructure:"jql"`
	Projects  []string `mapstructure:"projects"`

	PageSize int `mapstructure:"page_size"`
	Cap      int `mapstructure:"cap"`
	Workers  int `mapstructure:"workers"`

	Timeout         time.Duration `mapstructure:"timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RateLimitWait   time.Duration `mapstructure:"rate_limit_wait"`
	ServerErrorWait time.Duration `mapstructure:"server_error_wait"`

	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`

	Output     string           `mapstructure:"output"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`

	MetricsAddr string `mapstructure:"metrics_addr"`
	LogLevel    string `mapstructure:"log_level"`
	LogPretty   bool   `mapstructure:"log_pretty"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"base-url":           "base_url",
	"user-agent":         "user_agent",
	"jql":                "jql",
	"project":            "projects",
	"max-results":        "page_size",
	"cap":                "cap",
	"workers":            "workers",
	"timeout":            "timeout",
	"max-attempts":       "max_attempts",
	"rps":                "requests_per_second",
	"output":             "output",
	"checkpoint":         "checkpoint.path",
	"checkpoint-backend": "checkpoint.backend",
	"redis-addr":         "checkpoint.redis_addr",
	"metrics-addr":       "metrics_addr",
	"log-level":          "log_level",
	"log-pretty":         "log_pretty",
}

func setDefaults(v *viper.Viper) {
	retry := client.DefaultRetryConfig()

	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("user_agent", DefaultUserAgent)
	v.SetDefault("jql", client.DefaultJQL)
	v.SetDefault("projects", []string{})
	v.SetDefault("page_size", pagination.DefaultPageSize)
	v.SetDefault("cap", pagination.DefaultCap)
	v.SetDefault("workers", 1)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("max_attempts", retry.MaxAttempts)
	v.SetDefault("rate_limit_wait", retry.RateLimitWait)
	v.SetDefault("server_error_wait", retry.ServerErrorWait)
	v.SetDefault("requests_per_second", 0.0)
	v.SetDefault("burst", 1)
	v.SetDefault("output", DefaultOutput)
	v.SetDefault("checkpoint.backend", BackendFile)
	v.SetDefault("checkpoint.path", DefaultCheckpointPath)
	v.SetDefault("checkpoint.redis_addr", "localhost:6379")
	v.SetDefault("checkpoint.redis_db", 0)
	v.SetDefault("checkpoint.redis_key", "jira-scraper:checkpoint")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log_level", string(logging.LevelInfo))
	v.SetDefault("log_pretty", false)
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults alone always decode.
		panic(err)
	}
	return cfg
}

// Load reads configuration. configPath may be empty, in which case
// DefaultFileName in the working directory is used when present. Flags that
// were set on the command line override file and environment values.
func Load(configPath string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, filepath.Ext(DefaultFileName)))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case configPath != "" && errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("config file %s not found", configPath)
		default:
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("binding flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error

	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	} else if u, err := url.ParseRequestURI(c.BaseURL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q is not an absolute URL", c.BaseURL))
	}
	if c.UserAgent == "" {
		errs = append(errs, errors.New("user_agent is required"))
	}
	if !strings.Contains(c.JQL, "%s") {
		errs = append(errs, fmt.Errorf("jql %q must contain %%s for the project key", c.JQL))
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page_size must be > 0 (got %d)", c.PageSize))
	}
	if c.Cap <= 0 {
		errs = append(errs, fmt.Errorf("cap must be > 0 (got %d)", c.Cap))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1 (got %d)", c.Workers))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be > 0 (got %s)", c.Timeout))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be >= 1 (got %d)", c.MaxAttempts))
	}
	if c.RateLimitWait < 0 || c.ServerErrorWait < 0 {
		errs = append(errs, errors.New("retry waits must not be negative"))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests_per_second must not be negative (got %g)", c.RequestsPerSecond))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output is required"))
	}

	switch c.Checkpoint.Backend {
	case BackendFile:
		if c.Checkpoint.Path == "" {
			errs = append(errs, errors.New("checkpoint.path is required for the file backend"))
		}
	case BackendRedis:
		if c.Checkpoint.RedisAddr == "" {
			errs = append(errs, errors.New("checkpoint.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("checkpoint.backend must be %q or %q (got %q)", BackendFile, BackendRedis, c.Checkpoint.Backend))
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ClientConfig returns the search client configuration.
func (c Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.BaseURL, c.UserAgent)
	cfg.JQL = c.JQL
	cfg.Timeout = c.Timeout
	cfg.Retry = client.RetryConfig{
		MaxAttempts:     c.MaxAttempts,
		RateLimitWait:   c.RateLimitWait,
		ServerErrorWait: c.ServerErrorWait,
	}
	return cfg
}

// RunnerConfig returns the pagination configuration.
func (c Config) RunnerConfig() pagination.Config {
	return pagination.Config{PageSize: c.PageSize, Cap: c.Cap}
}

// PacerConfig returns the request pacing configuration.
func (c Config) PacerConfig() ratelimit.Config {
	return ratelimit.Config{RequestsPerSecond: c.RequestsPerSecond, Burst: c.Burst}
}

// LoggingConfig returns the logger configuration.
func (c Config) LoggingConfig() logging.Config {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		level = logging.LevelInfo
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Pretty = c.LogPretty
	return cfg
}
