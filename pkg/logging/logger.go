// Package logging configures zerolog for the scraper.
//
// Every component logs through a child of the global logger tagged with a
// "component" field. Scrape-scoped loggers additionally carry "run_id", and
// partition-scoped ones carry "partition":
//
//	logger := logging.WithRunID(logging.NewLogger(logging.ComponentRunner), runID)
//	plog := logging.ForPartition(logger, "HADOOP")
//
// Levels: Debug for every page, commit and pacer wait; Info for partition
// start/finish, progress every 20 pages and the run summary; Warn for
// retries, cooldowns, shrinking totals and aborted partitions; Error for
// terminal fetch failures, unreadable checkpoints and output rollbacks.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a level name as accepted by --log-level and log_level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Component names used in the "component" field.
const (
	ComponentCLI        = "cli"
	ComponentClient     = "jira-client"
	ComponentPacer      = "pacer"
	ComponentCheckpoint = "checkpoint"
	ComponentRunner     = "partition-runner"
	ComponentOutput     = "output"
	ComponentScraper    = "scraper"
	ComponentMetrics    = "metrics"
)

// Field names shared across components.
const (
	FieldRunID     = "run_id"
	FieldPartition = "partition"
)

// Config holds logger configuration.
type Config struct {
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console format.
	Pretty bool

	// Output defaults to os.Stderr so stdout stays free for command output.
	Output io.Writer
}

// DefaultConfig returns JSON logs at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup installs the global logger and level and returns the logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.zerolog())

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

// ParseLevel validates a level name from flags or configuration. An empty
// name means info.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
}

// zerolog maps the level; unknown names fall back to info.
func (l LogLevel) zerolog() zerolog.Level {
	parsed, err := ParseLevel(string(l))
	if err != nil {
		return zerolog.InfoLevel
	}
	switch parsed {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger returns a child of the global logger for component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithRunID tags every event of logger with the scrape run ID.
func WithRunID(logger zerolog.Logger, runID string) zerolog.Logger {
	return logger.With().Str(FieldRunID, runID).Logger()
}

// ForPartition tags every event of logger with a project key.
func ForPartition(logger zerolog.Logger, partition string) zerolog.Logger {
	return logger.With().Str(FieldPartition, partition).Logger()
}
