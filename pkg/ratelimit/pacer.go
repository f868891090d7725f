package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request pacing.
var (
	pacerCooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jira_pacer_cooldowns_total",
		Help: "Total number of shared cooldowns requested after rate limiting",
	})

	pacerCooldownWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jira_pacer_cooldown_waits_total",
		Help: "Total number of requests that waited for a shared cooldown",
	})

	pacerCooldownSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jira_pacer_cooldown_seconds",
		Help: "Length of the most recently requested cooldown in seconds",
	})
)

// Config holds pacer configuration.
type Config struct {
	// RequestsPerSecond caps the request rate across all partitions.
	// Zero or negative disables the cap.
	RequestsPerSecond float64

	// Burst is the token bucket size. Values below 1 are treated as 1.
	Burst int
}

// Pacer gates requests with a token bucket and a shared cooldown. It is
// safe for concurrent use.
type Pacer struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
	now     func() time.Time

	mu    sync.Mutex
	state State
}

// NewPacer creates a pacer.
func NewPacer(cfg Config, logger zerolog.Logger) *Pacer {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Pacer{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		now:     time.Now,
	}
}

// Wait blocks until any shared cooldown has passed and a request token is
// available, or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	waited := false
	for {
		p.mu.Lock()
		d := p.state.TimeUntilResume(p.now())
		p.mu.Unlock()

		if d <= 0 {
			break
		}
		if !waited {
			pacerCooldownWaitsTotal.Inc()
			waited = true
			p.logger.Debug().Dur("wait", d).Msg("Waiting for shared rate-limit cooldown")
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		// Loop: another partition may have extended the cooldown meanwhile.
	}

	return p.limiter.Wait(ctx)
}

// Cooldown holds back every request for at least d. A shorter cooldown
// never shortens one already in effect.
func (p *Pacer) Cooldown(d time.Duration) {
	if d <= 0 {
		return
	}

	p.mu.Lock()
	now := p.now()
	until := now.Add(d)
	if until.After(p.state.CooldownUntil) {
		p.state.CooldownUntil = until
	}
	p.state.Cooldowns++
	p.state.LastCooldown = now
	p.mu.Unlock()

	pacerCooldownsTotal.Inc()
	pacerCooldownSeconds.Set(d.Seconds())

	p.logger.Warn().
		Dur("cooldown", d).
		Time("resume_at", until).
		Msg("Rate limited - pausing all partitions")
}

// State returns a snapshot of the cooldown state.
func (p *Pacer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
