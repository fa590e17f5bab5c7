package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/throttleq/throttleq/internal/events"
	"github.com/throttleq/throttleq/internal/logging"
	"github.com/throttleq/throttleq/internal/ratelimit"
)

// CostEstimator computes the resource units a payload will consume if
// dispatched. It runs once per job at enqueue time.
type CostEstimator interface {
	EstimateCost(payload map[string]any) (float64, error)
}

// DefaultLoopSleep bounds busy-polling: 1ms caps the loop's own
// admission rate at 1,000 requests per second while letting in-flight
// calls progress.
const DefaultLoopSleep = time.Millisecond

// RunnerConfig collects the runner's tunables.
type RunnerConfig struct {
	// MaxAttempts is the per-job retry ceiling.
	MaxAttempts int

	// LoopSleep is the fixed micro-sleep per loop iteration.
	// Zero selects DefaultLoopSleep.
	LoopSleep time.Duration
}

// Runner is the admission loop: the single scheduler that pulls jobs
// (retry queue first, then the source), refills both buckets, admits
// when capacity allows, launches dispatch goroutines fire-and-forget,
// and applies the global cooldown after rate-limit rejections.
//
// The loop holds at most one "next job" so memory stays bounded
// regardless of input size, and it terminates only when the source is
// exhausted, the retry queue is empty and nothing is in flight.
type Runner struct {
	source     *Source
	retries    *RetryQueue
	tracker    *StatusTracker
	requests   *ratelimit.Bucket // one unit per dispatched request
	costs      *ratelimit.Bucket // job.Cost units per dispatched request
	cooldown   *ratelimit.Cooldown
	dispatcher *Dispatcher
	estimator  CostEstimator
	cfg        RunnerConfig
	log        *logging.Logger
	bus        *events.Bus
	inflight   sync.WaitGroup
}

// NewRunner wires an admission loop. bus may be nil.
func NewRunner(source *Source, retries *RetryQueue, tracker *StatusTracker,
	requests, costs *ratelimit.Bucket, cooldown *ratelimit.Cooldown,
	dispatcher *Dispatcher, estimator CostEstimator, cfg RunnerConfig,
	log *logging.Logger, bus *events.Bus) *Runner {

	if cfg.LoopSleep <= 0 {
		cfg.LoopSleep = DefaultLoopSleep
	}
	return &Runner{
		source:     source,
		retries:    retries,
		tracker:    tracker,
		requests:   requests,
		costs:      costs,
		cooldown:   cooldown,
		dispatcher: dispatcher,
		estimator:  estimator,
		cfg:        cfg,
		log:        log,
		bus:        bus,
	}
}

// Run drives the loop until the batch drains or the context is
// cancelled. A malformed input line or an estimator failure aborts the
// run with an error; per-job dispatch failures never do.
func (r *Runner) Run(ctx context.Context) error {
	start := time.Now()
	var held *Job
	var nextID int64

	// Every return path waits for launched dispatches, so the caller
	// may close the result log as soon as Run comes back.
	defer r.inflight.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Get the next job if one is not already waiting for capacity.
		// Retries take priority over new work.
		if held == nil {
			if job, ok := r.retries.Pop(); ok {
				held = job
				r.log.Debug().Int64("job", job.ID).
					Int("attempts_left", job.AttemptsLeft).
					Msg("retrying request")
			} else if !r.source.Exhausted() {
				job, err := r.nextFromSource(&nextID)
				if err != nil {
					return err
				}
				held = job // nil when the source just ran out
			}
		}

		// Update available capacity from elapsed wall-clock time.
		now := time.Now()
		r.requests.Refill(now)
		r.costs.Refill(now)

		// Admit when both buckets have room for this job and no
		// cooldown is in force.
		if held != nil && r.cooldown.Remaining(now) == 0 &&
			r.requests.CanConsume(1) && r.costs.CanConsume(held.Cost) {
			r.requests.Consume(1)
			r.costs.Consume(held.Cost)
			held.AttemptsLeft--

			job := held
			held = nil
			r.publish(&events.JobEvent{
				BaseEvent: events.BaseEvent{EventType: events.EventJobAdmitted, Time: now},
				JobID:     job.ID,
				Cost:      job.Cost,
			})
			r.inflight.Add(1)
			go func(job *Job) {
				defer r.inflight.Done()
				r.dispatcher.Dispatch(ctx, job)
			}(job)
		}

		// Drained: nothing held, nothing queued, nothing in flight,
		// nothing left to read.
		if held == nil && r.source.Exhausted() &&
			r.retries.Len() == 0 && r.tracker.InProgress() == 0 {
			break
		}

		// Yield briefly so in-flight calls can progress.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.LoopSleep):
		}

		// Global cooldown: if a rate-limit rejection landed within the
		// window, pause all new admissions for the remainder.
		if remaining := r.cooldown.Remaining(time.Now()); remaining > 0 {
			r.log.Warn().Dur("pause", remaining).Msg("cooling down after rate limit")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(remaining):
			}
		}
	}

	r.finish(start)
	return nil
}

// nextFromSource reads, costs and registers one new job. Returns
// (nil, nil) when the source is exhausted.
func (r *Runner) nextFromSource(nextID *int64) (*Job, error) {
	payload, metadata, ok, err := r.source.Next()
	if err != nil {
		return nil, err
	}
	if !ok {
		r.log.Debug().Msg("input exhausted")
		return nil, nil
	}

	jobCost, err := r.estimator.EstimateCost(payload)
	if err != nil {
		return nil, fmt.Errorf("estimating cost at line %d: %w", r.source.Line(), err)
	}
	if jobCost < 0 {
		return nil, fmt.Errorf("estimating cost at line %d: negative cost %.2f", r.source.Line(), jobCost)
	}
	if limit := r.costs.Limit(); jobCost > limit {
		// Such a job could never be admitted; waiting on it would
		// stall the whole batch forever.
		return nil, fmt.Errorf("job at line %d needs %.0f cost units, above the per-period limit %.0f",
			r.source.Line(), jobCost, limit)
	}

	*nextID++
	job := &Job{
		ID:           *nextID,
		Payload:      payload,
		Cost:         jobCost,
		AttemptsLeft: r.cfg.MaxAttempts,
		Metadata:     metadata,
	}
	r.tracker.JobStarted()
	r.log.Debug().Int64("job", job.ID).Float64("cost", job.Cost).Msg("read request")
	return job, nil
}

func (r *Runner) finish(start time.Time) {
	status := r.tracker.Snapshot()

	r.log.Info().
		Int("succeeded", status.Succeeded).
		Int("failed", status.Failed).
		Dur("elapsed", time.Since(start).Round(time.Millisecond)).
		Msg("batch complete")

	if status.Failed > 0 {
		r.log.Warn().Msgf("%d / %d requests failed after all attempts", status.Failed, status.Started)
	}
	if status.RateLimitErrors > 0 {
		r.log.Warn().Msgf("%d rate limit rejections received; consider running at a lower rate", status.RateLimitErrors)
	}

	r.publish(&events.RunCompleteEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventRunComplete, Time: time.Now()},
		Started:   status.Started,
		Succeeded: status.Succeeded,
		Failed:    status.Failed,
		Duration:  time.Since(start),
	})
}

func (r *Runner) publish(e events.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}
