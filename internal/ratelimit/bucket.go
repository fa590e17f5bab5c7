// Package ratelimit provides token-bucket admission control for outbound API calls.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket implements a token bucket with continuous lazy refill.
// Capacity accumulates at limit/period units per second, capped at limit.
// The admission loop refills explicitly each iteration and consumes only
// after checking capacity; the bucket never blocks.
type Bucket struct {
	mu         sync.Mutex
	limit      float64       // Maximum steady-state quantity per period
	period     time.Duration // Window over which limit applies
	capacity   float64       // Currently available quantity
	lastRefill time.Time     // Last time capacity was updated
}

// NewBucket creates a bucket that allows limit units per period.
// The bucket starts full, so a batch can burst up to limit immediately.
func NewBucket(limit float64, period time.Duration) *Bucket {
	return &Bucket{
		limit:      limit,
		period:     period,
		capacity:   limit,
		lastRefill: time.Now(),
	}
}

// Refill advances capacity by the time elapsed since the last refill,
// clamped at the bucket limit.
func (b *Bucket) Refill(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.capacity += elapsed * b.limit / b.period.Seconds()
		if b.capacity > b.limit {
			b.capacity = b.limit
		}
		b.lastRefill = now
	}
}

// CanConsume reports whether amount units are currently available.
// A zero amount is always admissible.
func (b *Bucket) CanConsume(amount float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity >= amount
}

// Consume removes amount units from the bucket. The caller must have
// checked CanConsume first; Consume itself never blocks or rejects.
func (b *Bucket) Consume(amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.capacity -= amount
}

// Capacity returns the currently available quantity without refilling.
func (b *Bucket) Capacity() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Limit returns the configured steady-state limit.
func (b *Bucket) Limit() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit
}
