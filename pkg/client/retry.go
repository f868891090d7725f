package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// RateLimitWait is used for 429 responses without a usable Retry-After header.
	RateLimitWait time.Duration

	// ServerErrorWait is used for 5xx responses and timeouts.
	ServerErrorWait time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     5,
		RateLimitWait:   60 * time.Second,
		ServerErrorWait: 5 * time.Second,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepContext is the default Sleeper.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// attemptResult is what a single attempt reports back to retryWithPolicy.
type attemptResult struct {
	decision   Decision
	statusCode int
	err        error
}

// retryWithPolicy runs attempt until it succeeds, is terminal, or the
// attempt ceiling is reached. Recoverable attempts sleep for the delay the
// classification chose; there is no exponential growth because the server
// tells us how long to wait. It returns the number of attempts made.
func retryWithPolicy(ctx context.Context, cfg RetryConfig, sleep Sleeper, logger zerolog.Logger, attempt func(n int) attemptResult) (int, attemptResult, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last attemptResult
	for n := 1; n <= maxAttempts; n++ {
		last = attempt(n)

		switch last.decision.Kind {
		case KindSuccess:
			if n > 1 {
				logger.Info().
					Int("attempt", n).
					Msg("Request succeeded after retry")
			}
			return n, last, nil
		case KindTerminal:
			return n, last, last.err
		}

		class := string(last.decision.Class)
		if n >= maxAttempts {
			break
		}

		delay := last.decision.Delay
		retriesTotal.WithLabelValues(class).Inc()
		retryBackoffSeconds.WithLabelValues(class).Observe(delay.Seconds())

		logger.Warn().
			Err(last.err).
			Str("error_class", class).
			Int("status", last.statusCode).
			Int("attempt", n).
			Dur("delay", delay).
			Bool("retry_after", last.decision.FromRetryAfter).
			Msg("Retrying request after delay")

		if err := sleep(ctx, delay); err != nil {
			logger.Warn().
				Str("error_class", class).
				Int("attempt", n).
				Msg("Context cancelled during retry delay")
			return n, last, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	retryExhaustedTotal.WithLabelValues(string(last.decision.Class)).Inc()
	logger.Warn().
		Str("error_class", string(last.decision.Class)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return maxAttempts, last, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, last.err)
}
