package pagination

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/jira-scraper/pkg/checkpoint"
	"github.com/Sternrassler/jira-scraper/pkg/client"
	"github.com/Sternrassler/jira-scraper/pkg/logging"
	"github.com/Sternrassler/jira-scraper/pkg/record"
	"github.com/rs/zerolog"
)

const (
	// DefaultPageSize is the number of issues requested per page.
	DefaultPageSize = 50

	// DefaultCap is the maximum number of items fetched per partition,
	// counted across runs.
	DefaultCap = 10000
)

// Config holds runner configuration.
type Config struct {
	PageSize int
	Cap      int
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		PageSize: DefaultPageSize,
		Cap:      DefaultCap,
	}
}

// PageFetcher fetches one page. client.Client implements it; any returned
// error ends the partition.
type PageFetcher interface {
	FetchPage(ctx context.Context, req client.PageRequest) (*client.Page, error)
}

// Sink durably appends one page of records. A page must be written in full
// or not at all.
type Sink interface {
	WritePage(ctx context.Context, partition string, records []record.Record) error
}

// Runner runs partitions. One Runner may run several partitions
// concurrently; all shared state lives in the Store and the Sink.
type Runner struct {
	fetcher PageFetcher
	sink    Sink
	store   *checkpoint.Store
	config  Config
	logger  zerolog.Logger
}

// NewRunner creates a new partition runner.
func NewRunner(fetcher PageFetcher, sink Sink, store *checkpoint.Store, config Config, logger zerolog.Logger) *Runner {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.Cap <= 0 {
		config.Cap = DefaultCap
	}

	return &Runner{
		fetcher: fetcher,
		sink:    sink,
		store:   store,
		config:  config,
		logger:  logger,
	}
}

// partitionRun is the mutable state of one Run call.
type partitionRun struct {
	partition string
	logger    zerolog.Logger

	offset    int
	committed int

	total      int
	totalKnown bool

	issues  []record.RawIssue
	records []record.Record

	outcome Outcome
}

// Run drives one partition to a terminal state. It never panics on remote
// or storage failures; they are reported in the Outcome.
func (r *Runner) Run(ctx context.Context, partition string) Outcome {
	start := time.Now()
	progress := r.store.Get(partition)

	run := &partitionRun{
		partition: partition,
		logger:    logging.ForPartition(r.logger, partition),
		offset:    progress.StartAt,
		committed: progress.ItemsFetched,
		outcome: Outcome{
			Partition:   partition,
			StartOffset: progress.StartAt,
		},
	}

	run.logger.Info().
		Int("start_at", run.offset).
		Int("items_fetched", run.committed).
		Int("cap", r.config.Cap).
		Msg("Starting partition")

	state := StateFetching
	if run.committed >= r.config.Cap {
		state = r.exhaust(run, ReasonCapped)
	}

	for !state.Terminal() {
		switch state {
		case StateFetching:
			state = r.fetch(ctx, run)
		case StateMapping:
			state = r.mapPage(run)
		case StateWriting:
			state = r.write(ctx, run)
		}
	}

	run.outcome.State = state
	run.outcome.Offset = run.offset
	run.outcome.Committed = run.committed
	run.outcome.Duration = time.Since(start)
	partitionOutcomes.WithLabelValues(string(state), string(run.outcome.Reason)).Inc()

	event := run.logger.Info()
	if state == StateAborted {
		event = run.logger.Warn().Err(run.outcome.Err)
	}
	event.
		Str("outcome", run.outcome.String()).
		Int("fetched", run.outcome.Fetched).
		Int("committed", run.committed).
		Int("pages", run.outcome.Pages).
		Dur("duration", run.outcome.Duration).
		Msg("Partition finished")

	return run.outcome
}

// fetch requests the next page.
func (r *Runner) fetch(ctx context.Context, run *partitionRun) State {
	if err := ctx.Err(); err != nil {
		return r.abort(run, ReasonCancelled, err)
	}

	size := min(r.config.PageSize, r.config.Cap-run.committed)
	page, err := r.fetcher.FetchPage(ctx, client.PageRequest{
		Partition: run.partition,
		Offset:    run.offset,
		PageSize:  size,
	})
	if err != nil {
		if errors.Is(err, client.ErrContextCancelled) || ctx.Err() != nil {
			return r.abort(run, ReasonCancelled, err)
		}
		return r.abort(run, ReasonFetch, err)
	}

	r.observeTotal(run, page)

	if len(page.Issues) == 0 {
		return r.exhaust(run, ReasonNatural)
	}

	issues := page.Issues
	if remaining := r.config.Cap - run.committed; len(issues) > remaining {
		run.logger.Warn().
			Int("requested", size).
			Int("received", len(issues)).
			Msg("Server returned more issues than requested, truncating to cap")
		issues = issues[:remaining]
	}
	run.issues = issues

	return StateMapping
}

// observeTotal records the server-reported total. A total that shrinks
// between pages replaces the earlier one, so the partition ends instead of
// polling for items that no longer exist.
func (r *Runner) observeTotal(run *partitionRun, page *client.Page) {
	if !page.TotalKnown {
		return
	}

	if run.totalKnown && page.Total < run.total {
		run.logger.Warn().
			Int("previous_total", run.total).
			Int("total", page.Total).
			Msg("Total decreased between pages, using lower value")
	}
	run.total = page.Total
	run.totalKnown = true
}

func (r *Runner) mapPage(run *partitionRun) State {
	run.records = record.MapPage(run.partition, run.issues)
	run.issues = nil
	return StateWriting
}

// write appends the page and commits the new offset, in that order.
func (r *Runner) write(ctx context.Context, run *partitionRun) State {
	n := len(run.records)

	if err := r.sink.WritePage(ctx, run.partition, run.records); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return r.abort(run, ReasonCancelled, err)
		}
		return r.abort(run, ReasonWrite, err)
	}
	run.records = nil

	// The page is on disk: commit even if ctx was cancelled meanwhile.
	next := checkpoint.Progress{
		StartAt:      run.offset + n,
		ItemsFetched: run.committed + n,
	}
	if err := r.store.Commit(context.WithoutCancel(ctx), run.partition, next); err != nil {
		return r.abort(run, ReasonCheckpoint, err)
	}

	run.offset = next.StartAt
	run.committed = next.ItemsFetched
	run.outcome.Fetched += n
	run.outcome.Pages++

	pagesCommitted.WithLabelValues(run.partition).Inc()
	recordsCommitted.WithLabelValues(run.partition).Add(float64(n))

	event := run.logger.Debug()
	if run.outcome.Pages%20 == 0 {
		event = run.logger.Info()
	}
	event.
		Int("offset", run.offset).
		Int("committed", run.committed).
		Int("total", run.total).
		Bool("total_known", run.totalKnown).
		Msg("Page committed")

	// The total is checked first: a dataset that ends exactly at the cap
	// ran out naturally.
	switch {
	case run.totalKnown && run.offset >= run.total:
		return r.exhaust(run, ReasonNatural)
	case run.committed >= r.config.Cap:
		return r.exhaust(run, ReasonCapped)
	default:
		return StateFetching
	}
}

func (r *Runner) exhaust(run *partitionRun, reason Reason) State {
	run.outcome.Reason = reason
	return StateExhausted
}

func (r *Runner) abort(run *partitionRun, reason Reason, err error) State {
	run.outcome.Reason = reason
	run.outcome.Err = err
	return StateAborted
}
