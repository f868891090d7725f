// Package scraper runs a set of partitions through the pagination runner
// and reports a per-run summary. A partition that aborts never stops the
// others.
package scraper

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/jira-scraper/pkg/logging"
	"github.com/Sternrassler/jira-scraper/pkg/pagination"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PartitionRunner runs one partition to a terminal state.
// pagination.Runner implements it.
type PartitionRunner interface {
	Run(ctx context.Context, partition string) pagination.Outcome
}

// Config holds orchestrator configuration.
type Config struct {
	// Workers bounds how many partitions run concurrently. With 1 (the
	// default) partitions run one after another in input order.
	Workers int

	// RunID identifies the run in logs. Generated when empty.
	RunID string
}

// Orchestrator runs partitions.
type Orchestrator struct {
	runner PartitionRunner
	config Config
	logger zerolog.Logger
}

// New creates a new orchestrator.
func New(runner PartitionRunner, config Config, logger zerolog.Logger) *Orchestrator {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RunID == "" {
		config.RunID = uuid.NewString()
	}

	return &Orchestrator{
		runner: runner,
		config: config,
		logger: logging.WithRunID(logger, config.RunID),
	}
}

// RunID returns the identifier of this orchestrator's run.
func (o *Orchestrator) RunID() string {
	return o.config.RunID
}

// NormalizeKeys upper-cases and trims keys and drops blanks and duplicates,
// keeping first-seen order.
func NormalizeKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// Run runs every partition and returns the summary. Outcomes are reported
// in input order regardless of the number of workers.
func (o *Orchestrator) Run(ctx context.Context, keys []string) Summary {
	keys = NormalizeKeys(keys)
	summary := Summary{
		RunID:      o.config.RunID,
		Started:    time.Now(),
		Partitions: make([]pagination.Outcome, len(keys)),
	}

	workers := min(o.config.Workers, len(keys))

	o.logger.Info().
		Strs("partitions", keys).
		Int("workers", workers).
		Msg("Starting scrape")

	queue := make(chan int, len(keys))
	for i := range keys {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go o.worker(ctx, keys, queue, summary.Partitions, &wg, i)
	}
	wg.Wait()

	summary.Finished = time.Now()
	for _, outcome := range summary.Partitions {
		summary.TotalFetched += outcome.Fetched
	}

	return summary
}

// worker runs partitions from the queue. Each index is written by exactly
// one worker.
func (o *Orchestrator) worker(ctx context.Context, keys []string, queue <-chan int, outcomes []pagination.Outcome, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for i := range queue {
		outcomes[i] = o.runner.Run(ctx, keys[i])
		processed++
	}

	o.logger.Debug().
		Int("worker_id", workerID).
		Int("partitions_processed", processed).
		Msg("Worker completed")
}
