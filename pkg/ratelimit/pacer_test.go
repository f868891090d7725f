package ratelimit

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestPacer(cfg Config) *Pacer {
	return NewPacer(cfg, zerolog.New(os.Stderr).Level(zerolog.Disabled))
}

func TestState_TimeUntilResume(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		state       State
		expected    time.Duration
		coolingDown bool
	}{
		{
			name:        "zero state",
			state:       State{},
			expected:    0,
			coolingDown: false,
		},
		{
			name:        "cooldown in future",
			state:       State{CooldownUntil: now.Add(30 * time.Second)},
			expected:    30 * time.Second,
			coolingDown: true,
		},
		{
			name:        "cooldown passed",
			state:       State{CooldownUntil: now.Add(-time.Second)},
			expected:    0,
			coolingDown: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.TimeUntilResume(now); got != tt.expected {
				t.Errorf("TimeUntilResume() = %v, want %v", got, tt.expected)
			}
			if got := tt.state.IsCoolingDown(now); got != tt.coolingDown {
				t.Errorf("IsCoolingDown() = %v, want %v", got, tt.coolingDown)
			}
		})
	}
}

func TestPacer_UnlimitedDoesNotBlock(t *testing.T) {
	pacer := newTestPacer(Config{})

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := pacer.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() failed: %v", err)
		}
	}

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Unlimited pacer took %v for 100 waits", elapsed)
	}
}

func TestPacer_RequestsPerSecond(t *testing.T) {
	pacer := newTestPacer(Config{RequestsPerSecond: 20, Burst: 1})

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := pacer.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() failed: %v", err)
		}
	}

	// 1 token up front, then 4 more at 50ms each.
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("Expected pacing delay of ~200ms, got %v", elapsed)
	}
}

func TestPacer_CooldownBlocksWait(t *testing.T) {
	pacer := newTestPacer(Config{})
	pacer.Cooldown(150 * time.Millisecond)

	start := time.Now()
	if err := pacer.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Expected Wait to honour cooldown, returned after %v", elapsed)
	}

	state := pacer.State()
	if state.Cooldowns != 1 {
		t.Errorf("Cooldowns = %d, want 1", state.Cooldowns)
	}
}

func TestPacer_ShorterCooldownDoesNotShorten(t *testing.T) {
	pacer := newTestPacer(Config{})

	pacer.Cooldown(time.Minute)
	first := pacer.State().CooldownUntil
	pacer.Cooldown(time.Second)

	if got := pacer.State().CooldownUntil; !got.Equal(first) {
		t.Errorf("CooldownUntil moved from %v to %v", first, got)
	}
	if pacer.State().Cooldowns != 2 {
		t.Errorf("Cooldowns = %d, want 2", pacer.State().Cooldowns)
	}
}

func TestPacer_IgnoresNonPositiveCooldown(t *testing.T) {
	pacer := newTestPacer(Config{})
	pacer.Cooldown(0)
	pacer.Cooldown(-time.Second)

	if pacer.State().Cooldowns != 0 {
		t.Errorf("Cooldowns = %d, want 0", pacer.State().Cooldowns)
	}
}

func TestPacer_WaitCancelledDuringCooldown(t *testing.T) {
	pacer := newTestPacer(Config{})
	pacer.Cooldown(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := pacer.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
}
