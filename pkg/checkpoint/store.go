package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Store is the in-process view of the checkpoint. It is loaded once and
// persisted in full after every commit. Commits are serialized, so partition
// runners in different goroutines may share one Store.
type Store struct {
	backend Backend
	logger  zerolog.Logger
	now     func() time.Time

	mu    sync.Mutex
	state Checkpoint
}

// Open loads the checkpoint from backend. Load failures, including corrupt
// data, are logged and replaced by an empty checkpoint: re-fetching some
// pages is preferred over refusing to run.
func Open(ctx context.Context, backend Backend, logger zerolog.Logger) *Store {
	state, err := backend.Load(ctx)
	if err != nil {
		CheckpointErrors.WithLabelValues("load").Inc()
		CheckpointResets.Inc()
		logger.Error().Err(err).Msg("Checkpoint unreadable, starting all partitions from zero")
		state = Checkpoint{}
	}
	if state == nil {
		state = Checkpoint{}
	}

	logger.Debug().Int("partitions", len(state)).Msg("Checkpoint loaded")

	return &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
		state:   state,
	}
}

// Get returns the committed progress for a partition, or the zero value.
func (s *Store) Get(partition string) Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state[partition]
}

// Snapshot returns a copy of all committed progress.
func (s *Store) Snapshot() Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Commit records progress for one partition and persists it before
// returning. Only that partition is written to the backend. If persisting
// fails the in-memory value is left unchanged, so Get never reports progress
// that is not durable.
func (s *Store) Commit(ctx context.Context, partition string, p Progress) error {
	if p.StartAt < 0 || p.ItemsFetched < 0 {
		return fmt.Errorf("invalid progress for %s: startAt=%d itemsFetched=%d", partition, p.StartAt, p.ItemsFetched)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Put(ctx, partition, p); err != nil {
		CheckpointErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("commit checkpoint for %s: %w", partition, err)
	}
	s.state[partition] = p

	CheckpointCommits.Inc()
	s.logger.Debug().
		Str("partition", partition).
		Int("start_at", p.StartAt).
		Int("items_fetched", p.ItemsFetched).
		Msg("Checkpoint committed")

	return nil
}

// Reset removes the given partitions from the checkpoint, or every
// partition when none are given, and persists the result.
func (s *Store) Reset(ctx context.Context, partitions ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx, partitions...); err != nil {
		CheckpointErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("reset checkpoint: %w", err)
	}

	if len(partitions) == 0 {
		s.state = Checkpoint{}
	}
	for _, partition := range partitions {
		delete(s.state, partition)
	}

	s.logger.Info().Strs("partitions", partitions).Msg("Checkpoint reset")
	return nil
}
