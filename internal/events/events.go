// Package events provides a small pub/sub bus for job lifecycle events.
// The batch runner publishes; the progress reporter and any future UI
// subscribe. Publishing never blocks: a slow subscriber drops events.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType defines the types of events that can be emitted.
type EventType string

const (
	EventJobAdmitted  EventType = "job_admitted"  // Capacity consumed, dispatch launched
	EventJobRequeued  EventType = "job_requeued"  // Failed attempt, back on the retry queue
	EventJobSucceeded EventType = "job_succeeded" // Terminal success, result logged
	EventJobFailed    EventType = "job_failed"    // Retries exhausted, failure logged
	EventRateLimited  EventType = "rate_limited"  // Remote rejected for rate, cooldown tripped
	EventRunComplete  EventType = "run_complete"  // Admission loop drained
)

const defaultBufferSize = 1000

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// JobEvent describes a single job's lifecycle transition.
type JobEvent struct {
	BaseEvent
	JobID    int64
	Attempt  int     // Attempts used so far, including the one just made
	Cost     float64 // Resource units charged at admission
	Detail   string  // Failure detail for requeue/failure events
}

// RateLimitEvent is published when the remote service rejects for rate.
type RateLimitEvent struct {
	BaseEvent
	JobID    int64
	Cooldown time.Duration // Global pause window applied
}

// RunCompleteEvent is published once when the admission loop drains.
type RunCompleteEvent struct {
	BaseEvent
	Started   int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// Bus manages event subscriptions and publishing.
type Bus struct {
	all           []chan Event
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
}

// NewBus creates a new event bus with the specified channel buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Bus{bufferSize: bufferSize}
}

// SubscribeAll creates a subscription to all events.
func (b *Bus) SubscribeAll() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.all = append(b.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking.
// Events to full channels are dropped and counted.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.all {
		select {
		case ch <- event:
		default:
			b.droppedEvents.Add(1)
		}
	}
}

// Dropped returns the number of events dropped due to full buffers.
func (b *Bus) Dropped() int64 {
	return b.droppedEvents.Load()
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, ch := range b.all {
		close(ch)
	}
	b.all = nil
}
