package ratelimit

import (
	"testing"
	"time"
)

// TestCooldownInactiveInitially verifies no pause before any trip.
func TestCooldownInactiveInitially(t *testing.T) {
	c := NewCooldown(15 * time.Second)
	if d := c.Remaining(time.Now()); d != 0 {
		t.Errorf("Remaining() = %v, want 0 before any trip", d)
	}
}

// TestCooldownRemainingWindow verifies the remaining window shrinks with time.
func TestCooldownRemainingWindow(t *testing.T) {
	c := NewCooldown(15 * time.Second)

	trip := time.Now()
	c.Trip(trip)

	if d := c.Remaining(trip.Add(5 * time.Second)); d != 10*time.Second {
		t.Errorf("Remaining() after 5s = %v, want 10s", d)
	}
	if d := c.Remaining(trip.Add(15 * time.Second)); d != 0 {
		t.Errorf("Remaining() after full window = %v, want 0", d)
	}
	if d := c.Remaining(trip.Add(time.Minute)); d != 0 {
		t.Errorf("Remaining() long after window = %v, want 0", d)
	}
}

// TestTripExtendsNeverShortens verifies merge semantics across trips.
func TestTripExtendsNeverShortens(t *testing.T) {
	c := NewCooldown(10 * time.Second)

	first := time.Now()
	c.Trip(first)
	c.Trip(first.Add(4 * time.Second))

	// Window now runs from the second trip.
	if d := c.Remaining(first.Add(5 * time.Second)); d != 9*time.Second {
		t.Errorf("Remaining() = %v, want 9s after later trip", d)
	}

	// An out-of-order earlier trip must not shorten the pause.
	c.Trip(first.Add(-time.Minute))
	if d := c.Remaining(first.Add(5 * time.Second)); d != 9*time.Second {
		t.Errorf("Remaining() = %v after stale trip, want 9s", d)
	}
}

// TestLastTrip verifies trip time bookkeeping.
func TestLastTrip(t *testing.T) {
	c := NewCooldown(time.Second)

	if !c.LastTrip().IsZero() {
		t.Error("LastTrip() should be zero before any trip")
	}

	now := time.Now()
	c.Trip(now)
	if got := c.LastTrip(); !got.Equal(now) {
		t.Errorf("LastTrip() = %v, want %v", got, now)
	}
}
