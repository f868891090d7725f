package main

import (
	"context"
	"fmt"

	"github.com/Sternrassler/jira-scraper/internal/config"
	"github.com/Sternrassler/jira-scraper/pkg/checkpoint"
	"github.com/Sternrassler/jira-scraper/pkg/logging"
	"github.com/redis/go-redis/v9"
)

// openStore opens the configured checkpoint backend and loads the store.
// The returned close function releases backend resources.
func openStore(ctx context.Context, cfg config.Config) (*checkpoint.Store, func() error, error) {
	logger := logging.NewLogger(logging.ComponentCheckpoint)

	switch cfg.Checkpoint.Backend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Checkpoint.RedisAddr,
			DB:   cfg.Checkpoint.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Checkpoint.RedisAddr, err)
		}
		logger.Info().
			Str("addr", cfg.Checkpoint.RedisAddr).
			Str("key", cfg.Checkpoint.RedisKey).
			Msg("Using redis checkpoint")

		backend := checkpoint.NewRedisBackend(rdb, cfg.Checkpoint.RedisKey)
		return checkpoint.Open(ctx, backend, logger), rdb.Close, nil

	default:
		backend := checkpoint.NewFileBackend(cfg.Checkpoint.Path)
		logger.Debug().Str("path", backend.Path()).Msg("Using file checkpoint")
		return checkpoint.Open(ctx, backend, logger), func() error { return nil }, nil
	}
}
