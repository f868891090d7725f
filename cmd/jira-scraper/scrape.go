package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Sternrassler/jira-scraper/internal/config"
	"github.com/Sternrassler/jira-scraper/pkg/client"
	"github.com/Sternrassler/jira-scraper/pkg/logging"
	"github.com/Sternrassler/jira-scraper/pkg/metrics"
	"github.com/Sternrassler/jira-scraper/pkg/output"
	"github.com/Sternrassler/jira-scraper/pkg/pagination"
	"github.com/Sternrassler/jira-scraper/pkg/ratelimit"
	"github.com/Sternrassler/jira-scraper/pkg/scraper"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// errAllAborted makes the process exit non-zero when no partition produced
// anything. The summary has already been reported.
var errAllAborted = errors.New("every project aborted without output")

func newScrapeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [PROJECT...]",
		Short: "Fetch issues for one or more projects",
		Long: `Fetch all issues of the given projects, page by page, into
{output}_{PROJECT}.jsonl and {output}_combined_{timestamp}.jsonl.

Projects can be given with -p, as arguments, or in the config file. The
command exits non-zero only if every project aborted without output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.scrape(cmd, args)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceP("project", "p", nil, "Jira project key (repeatable)")
	flags.StringP("output", "o", config.DefaultOutput, "output path prefix")
	flags.IntP("max-results", "m", pagination.DefaultPageSize, "issues per page")
	flags.Int("workers", 1, "projects scraped concurrently")
	flags.Int("cap", pagination.DefaultCap, "maximum issues per project across runs")
	flags.Int("max-attempts", client.DefaultRetryConfig().MaxAttempts, "attempts per page before a project aborts")
	flags.Duration("timeout", 30*time.Second, "per-request timeout")
	flags.Float64("rps", 0, "request rate limit across projects (0 = unlimited)")
	flags.String("base-url", config.DefaultBaseURL, "Jira base URL")
	flags.String("user-agent", config.DefaultUserAgent, "User-Agent sent with every request")
	flags.String("jql", client.DefaultJQL, "search query; %s is replaced by the project key")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")

	return cmd
}

func (a *app) scrape(cmd *cobra.Command, args []string) error {
	cfg := a.cfg
	projects := scraper.NormalizeKeys(append(append([]string{}, cfg.Projects...), args...))
	if len(projects) == 0 {
		return errors.New("at least one project is required (-p KEY)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	scraperLogger := logging.NewLogger(logging.ComponentScraper)
	logger := logging.WithRunID(scraperLogger, runID)
	started := time.Now()

	if cfg.MetricsAddr != "" {
		srv, err := metrics.Start(cfg.MetricsAddr, logging.NewLogger(logging.ComponentMetrics))
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	pacer := ratelimit.NewPacer(cfg.PacerConfig(), logging.WithRunID(logging.NewLogger(logging.ComponentPacer), runID))

	clientCfg := cfg.ClientConfig()
	clientCfg.Pacer = pacer
	jira, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("creating jira client: %w", err)
	}

	writer, err := output.NewWriter(cfg.Output, started, logging.WithRunID(logging.NewLogger(logging.ComponentOutput), runID))
	if err != nil {
		return err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error().Err(err).Msg("Closing output files failed")
		}
	}()

	runner := pagination.NewRunner(jira, writer, store, cfg.RunnerConfig(),
		logging.WithRunID(logging.NewLogger(logging.ComponentRunner), runID))
	orchestrator := scraper.New(runner, scraper.Config{Workers: cfg.Workers, RunID: runID}, scraperLogger)

	summary := orchestrator.Run(ctx, projects)
	summary.Log(logger)
	printSummary(cmd.OutOrStdout(), summary, writer)

	if summary.AllAbortedEmpty() {
		return errAllAborted
	}
	return nil
}

func printSummary(w io.Writer, summary scraper.Summary, writer *output.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tOUTCOME\tFETCHED\tCOMMITTED\tERROR")
	for _, o := range summary.Partitions {
		errMsg := ""
		if o.Err != nil {
			errMsg = o.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", o.Partition, o.String(), o.Fetched, o.Committed, errMsg)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nRun %s: %d issues fetched in %s\n", summary.RunID, summary.TotalFetched, summary.Duration().Round(time.Millisecond))
	if summary.TotalFetched > 0 {
		fmt.Fprintf(w, "Combined output: %s\n", writer.CombinedPath())
	}
	if incomplete := summary.Incomplete(); len(incomplete) > 0 {
		fmt.Fprintf(w, "Not naturally exhausted: %d project(s); re-run to resume aborted ones\n", len(incomplete))
	}
}
