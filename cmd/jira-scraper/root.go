package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/Sternrassler/jira-scraper/internal/config"
	"github.com/Sternrassler/jira-scraper/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// app carries state shared by subcommands once the root pre-run has loaded
// configuration.
type app struct {
	cfgFile string
	envFile string
	cfg     config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "jira-scraper",
		Short: "Resumable Jira issue scraper",
		Long: `jira-scraper walks the Jira search API page by page for one or more
projects and writes normalized issues as JSON lines. Progress is
checkpointed after every page, so an interrupted run resumes where it
stopped.

Examples:
  jira-scraper scrape -p HADOOP -p SPARK
  jira-scraper scrape -p KAFKA --workers 2 --metrics-addr :9090
  jira-scraper checkpoint show
  jira-scraper checkpoint reset HADOOP
  jira-scraper config save --log-level debug`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./"+config.DefaultFileName+" when present)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file with JIRA_SCRAPER_* variables")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human-readable console logs")
	flags.StringP("checkpoint", "c", config.DefaultCheckpointPath, "checkpoint file")
	flags.String("checkpoint-backend", config.BackendFile, "checkpoint backend (file, redis)")
	flags.String("redis-addr", "localhost:6379", "redis address for the redis checkpoint backend")

	root.AddCommand(newScrapeCmd(a))
	root.AddCommand(newCheckpointCmd(a))
	root.AddCommand(newConfigCmd(a))

	return root
}

// load reads .env, configuration and sets up logging.
func (a *app) load(cmd *cobra.Command) error {
	if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", a.envFile, err)
	}

	cfg, err := config.Load(a.cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	logCfg := cfg.LoggingConfig()
	logCfg.Output = cmd.ErrOrStderr()
	logging.Setup(logCfg)

	return nil
}
