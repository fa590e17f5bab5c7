package batch

import (
	"sync"
	"time"
)

// StatusTracker holds the batch progress counters. A single instance is
// shared by the runner and all dispatch goroutines for the duration of
// one run.
//
// Invariant at every observation point:
//
//	Started == Succeeded + Failed + InProgress
//
// The run is complete exactly when InProgress is zero and both the
// source and the retry queue are empty.
type StatusTracker struct {
	mu sync.Mutex

	started    int
	inProgress int
	succeeded  int
	failed     int

	rateLimitErrors int
	apiErrors       int
	otherErrors     int

	lastRateLimitError time.Time
}

// Status is a point-in-time snapshot of the tracker.
type Status struct {
	Started    int
	InProgress int
	Succeeded  int
	Failed     int

	RateLimitErrors int
	APIErrors       int
	OtherErrors     int

	LastRateLimitError time.Time
}

// NewStatusTracker creates a zeroed tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{}
}

// JobStarted records a new job entering the run.
func (t *StatusTracker) JobStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started++
	t.inProgress++
}

// JobSucceeded records a terminal success.
func (t *StatusTracker) JobSucceeded() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.succeeded++
	t.inProgress--
}

// JobFailed records a terminal retries-exhausted failure.
func (t *StatusTracker) JobFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
	t.inProgress--
}

// RecordRateLimitError counts a rate-limit rejection at the given time.
func (t *StatusTracker) RecordRateLimitError(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rateLimitErrors++
	if now.After(t.lastRateLimitError) {
		t.lastRateLimitError = now
	}
}

// RecordAPIError counts a structured error response other than rate-limit.
func (t *StatusTracker) RecordAPIError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.apiErrors++
}

// RecordOtherError counts a transport failure (no response obtained).
func (t *StatusTracker) RecordOtherError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.otherErrors++
}

// InProgress returns the number of jobs pulled but not yet finalized.
func (t *StatusTracker) InProgress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inProgress
}

// Snapshot returns a copy of all counters.
func (t *StatusTracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		Started:            t.started,
		InProgress:         t.inProgress,
		Succeeded:          t.succeeded,
		Failed:             t.failed,
		RateLimitErrors:    t.rateLimitErrors,
		APIErrors:          t.apiErrors,
		OtherErrors:        t.otherErrors,
		LastRateLimitError: t.lastRateLimitError,
	}
}
