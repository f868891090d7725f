// Package ratelimit paces requests to the Jira server and shares rate-limit
// cooldowns between all partitions of a scrape.
package ratelimit

import (
	"time"
)

// State is a snapshot of the pacer's cooldown bookkeeping.
type State struct {
	// CooldownUntil is the earliest time the next request may start. It is
	// pushed forward whenever the server answers 429.
	CooldownUntil time.Time `json:"cooldown_until"`

	// Cooldowns counts how many times a cooldown was requested.
	Cooldowns int `json:"cooldowns"`

	// LastCooldown is when the most recent cooldown was requested.
	LastCooldown time.Time `json:"last_cooldown"`
}

// IsCoolingDown returns true if requests must still wait at now.
func (s State) IsCoolingDown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}

// TimeUntilResume returns how long requests must wait at now.
// Returns 0 if the cooldown has already passed.
func (s State) TimeUntilResume(now time.Time) time.Duration {
	d := s.CooldownUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
