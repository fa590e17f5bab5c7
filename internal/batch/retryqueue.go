package batch

import "sync"

// RetryQueue is an unbounded FIFO of jobs awaiting re-dispatch.
// Insertion order is retry order; the runner always drains it before
// pulling new work from the source.
type RetryQueue struct {
	mu   sync.Mutex
	jobs []*Job
}

// NewRetryQueue creates an empty queue.
func NewRetryQueue() *RetryQueue {
	return &RetryQueue{}
}

// Push appends a job to the tail of the queue.
func (q *RetryQueue) Push(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
}

// Pop removes and returns the head of the queue, or ok=false if empty.
func (q *RetryQueue) Pop() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, true
}

// Len returns the number of queued jobs.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
