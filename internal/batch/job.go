// Package batch implements the admission-controlled dispatch loop: jobs are
// streamed from a JSONL file, admitted against two token buckets (request
// count and resource cost), dispatched concurrently, and retried through a
// FIFO queue until they succeed or exhaust their attempt budget.
package batch

// Job is one unit of outbound work with its own retry budget and cost.
// A job is owned by exactly one place at a time: the runner's held slot,
// the retry queue, or an in-flight dispatch goroutine.
type Job struct {
	// ID is unique within a run, assigned from the runner's counter when
	// the job is first pulled from the source.
	ID int64

	// Payload is the provider-specific request body. The core never
	// inspects its keys except to derive Cost at enqueue time.
	Payload map[string]any

	// Cost is the resource units this job consumes when dispatched,
	// computed once by the configured estimator.
	Cost float64

	// AttemptsLeft is decremented at each admission. A failed attempt
	// with AttemptsLeft > 0 goes back on the retry queue; at 0 the job
	// is finalized as failed.
	AttemptsLeft int

	// Metadata is the reserved "metadata" value stripped from the input
	// line, carried through to the output record untouched.
	Metadata any

	// ErrorHistory collects one entry per failed attempt, in order.
	ErrorHistory []string
}
