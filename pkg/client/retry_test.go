package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// recordingSleeper records requested delays without sleeping.
type recordingSleeper struct {
	delays []time.Duration
	err    error
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return s.err
}

func recoverable(class ErrorClass, delay time.Duration) attemptResult {
	return attemptResult{
		decision: Decision{Kind: KindRecoverable, Class: class, Delay: delay},
		err:      &TransientError{ErrorClass: class, Delay: delay},
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxAttempts != 5 {
		t.Errorf("Expected MaxAttempts 5, got %d", cfg.MaxAttempts)
	}
	if cfg.RateLimitWait != 60*time.Second {
		t.Errorf("Expected RateLimitWait 60s, got %v", cfg.RateLimitWait)
	}
	if cfg.ServerErrorWait != 5*time.Second {
		t.Errorf("Expected ServerErrorWait 5s, got %v", cfg.ServerErrorWait)
	}
}

func TestRetryWithPolicy_Success(t *testing.T) {
	sleeper := &recordingSleeper{}
	calls := 0

	attempts, _, err := retryWithPolicy(context.Background(), DefaultRetryConfig(), sleeper.sleep, zerolog.Nop(), func(n int) attemptResult {
		calls++
		return attemptResult{decision: Decision{Kind: KindSuccess}}
	})

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("Expected 1 attempt, got attempts=%d calls=%d", attempts, calls)
	}
	if len(sleeper.delays) != 0 {
		t.Errorf("Expected no sleeps, got %v", sleeper.delays)
	}
}

func TestRetryWithPolicy_SleepsClassifiedDelay(t *testing.T) {
	sleeper := &recordingSleeper{}
	script := []attemptResult{
		recoverable(ErrorClassRateLimit, 2*time.Second),
		recoverable(ErrorClassServer, 5*time.Second),
		{decision: Decision{Kind: KindSuccess}},
	}

	attempts, _, err := retryWithPolicy(context.Background(), DefaultRetryConfig(), sleeper.sleep, zerolog.Nop(), func(n int) attemptResult {
		return script[n-1]
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	expected := []time.Duration{2 * time.Second, 5 * time.Second}
	if len(sleeper.delays) != len(expected) {
		t.Fatalf("Expected delays %v, got %v", expected, sleeper.delays)
	}
	for i := range expected {
		if sleeper.delays[i] != expected[i] {
			t.Errorf("delay[%d] = %v, want %v", i, sleeper.delays[i], expected[i])
		}
	}
}

func TestRetryWithPolicy_Exhausted(t *testing.T) {
	sleeper := &recordingSleeper{}
	cfg := RetryConfig{MaxAttempts: 3, ServerErrorWait: time.Second}
	calls := 0

	attempts, last, err := retryWithPolicy(context.Background(), cfg, sleeper.sleep, zerolog.Nop(), func(n int) attemptResult {
		calls++
		return recoverable(ErrorClassServer, time.Second)
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Expected ErrRetryExhausted, got %v", err)
	}
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Error("Expected last TransientError to be wrapped")
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("Expected 3 attempts, got attempts=%d calls=%d", attempts, calls)
	}
	// No sleep after the final attempt.
	if len(sleeper.delays) != 2 {
		t.Errorf("Expected 2 sleeps, got %d", len(sleeper.delays))
	}
	if last.decision.Class != ErrorClassServer {
		t.Errorf("Expected last class server, got %q", last.decision.Class)
	}
}

func TestRetryWithPolicy_TerminalNoRetry(t *testing.T) {
	sleeper := &recordingSleeper{}
	terminalErr := errors.New("404 Not Found")
	calls := 0

	attempts, _, err := retryWithPolicy(context.Background(), DefaultRetryConfig(), sleeper.sleep, zerolog.Nop(), func(n int) attemptResult {
		calls++
		return attemptResult{decision: Decision{Kind: KindTerminal, Class: ErrorClassClient}, statusCode: 404, err: terminalErr}
	})

	if !errors.Is(err, terminalErr) {
		t.Errorf("Expected terminal error, got %v", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Terminal error must not be reported as exhaustion")
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("Expected 1 attempt, got attempts=%d calls=%d", attempts, calls)
	}
	if len(sleeper.delays) != 0 {
		t.Errorf("Expected no sleeps, got %v", sleeper.delays)
	}
}

func TestRetryWithPolicy_ContextCancelledDuringSleep(t *testing.T) {
	sleeper := &recordingSleeper{err: context.Canceled}
	calls := 0

	attempts, _, err := retryWithPolicy(context.Background(), DefaultRetryConfig(), sleeper.sleep, zerolog.Nop(), func(n int) attemptResult {
		calls++
		return recoverable(ErrorClassRateLimit, time.Minute)
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("Expected 1 attempt, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestRetryWithPolicy_MaxAttemptsFloor(t *testing.T) {
	sleeper := &recordingSleeper{}
	calls := 0

	_, _, err := retryWithPolicy(context.Background(), RetryConfig{MaxAttempts: 0}, sleeper.sleep, zerolog.Nop(), func(n int) attemptResult {
		calls++
		return recoverable(ErrorClassServer, time.Second)
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected exactly 1 attempt, got %d", calls)
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), 10*time.Millisecond); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if err := sleepContext(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled for zero delay on cancelled ctx, got %v", err)
	}
}
