package scraper

import (
	"time"

	"github.com/Sternrassler/jira-scraper/pkg/pagination"
	"github.com/rs/zerolog"
)

// Summary is the result of one orchestrator run.
type Summary struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	// Partitions holds one outcome per partition, in input order.
	Partitions []pagination.Outcome

	// TotalFetched counts records committed by this run across partitions.
	TotalFetched int
}

// Duration returns how long the run took.
func (s Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

// Incomplete returns the partitions that did not reach natural exhaustion,
// capped and aborted alike.
func (s Summary) Incomplete() []pagination.Outcome {
	var out []pagination.Outcome
	for _, o := range s.Partitions {
		if !o.Natural() {
			out = append(out, o)
		}
	}
	return out
}

// Aborted returns the partitions that stopped on an error.
func (s Summary) Aborted() []pagination.Outcome {
	var out []pagination.Outcome
	for _, o := range s.Partitions {
		if o.Aborted() {
			out = append(out, o)
		}
	}
	return out
}

// AllAbortedEmpty reports whether every partition aborted without
// committing a single record in this run. A run with no partitions is not
// considered failed.
func (s Summary) AllAbortedEmpty() bool {
	if len(s.Partitions) == 0 {
		return false
	}
	for _, o := range s.Partitions {
		if !o.Aborted() || o.Fetched > 0 {
			return false
		}
	}
	return true
}

// Log writes one line per partition and a closing total.
func (s Summary) Log(logger zerolog.Logger) {
	for _, o := range s.Partitions {
		event := logger.Info()
		if o.Aborted() {
			event = logger.Warn().Err(o.Err)
		}
		event.
			Str("partition", o.Partition).
			Str("outcome", o.String()).
			Int("fetched", o.Fetched).
			Int("committed", o.Committed).
			Int("offset", o.Offset).
			Msg("Partition summary")
	}

	incomplete := make([]string, 0)
	for _, o := range s.Incomplete() {
		incomplete = append(incomplete, o.Partition)
	}

	logger.Info().
		Int("partitions", len(s.Partitions)).
		Int("total_fetched", s.TotalFetched).
		Strs("incomplete", incomplete).
		Dur("duration", s.Duration()).
		Msg("Scrape finished")
}
