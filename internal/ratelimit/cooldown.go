package ratelimit

import (
	"sync"
	"time"
)

// Cooldown is a global pause on new admissions following a rate-limit
// rejection from the remote service. It deliberately over-throttles:
// while the window is open no admission proceeds even if bucket capacity
// would otherwise allow it, giving the service time to recover.
type Cooldown struct {
	mu        sync.Mutex
	window    time.Duration
	trippedAt time.Time
}

// NewCooldown creates a cooldown gate with the given window length.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window}
}

// Trip records a rate-limit rejection at the given time.
// A later trip extends the pause; an earlier one never shortens it.
func (c *Cooldown) Trip(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.After(c.trippedAt) {
		c.trippedAt = now
	}
}

// Remaining returns how much of the window is left at the given time,
// or zero if no rejection happened within the window.
func (c *Cooldown) Remaining(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.trippedAt.IsZero() {
		return 0
	}
	remaining := c.window - now.Sub(c.trippedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Window returns the configured cooldown length.
func (c *Cooldown) Window() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window
}

// LastTrip returns the time of the most recent rejection, zero if none.
func (c *Cooldown) LastTrip() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trippedAt
}
