package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/throttleq/throttleq/internal/events"
	"github.com/throttleq/throttleq/internal/logging"
	"github.com/throttleq/throttleq/internal/ratelimit"
)

// Caller issues one outbound call for a job payload. It either returns
// the decoded response object or an error when no response was obtained.
// Implemented by api.Client; tests substitute fakes.
type Caller interface {
	Call(ctx context.Context, payload map[string]any) (map[string]any, error)
}

// DefaultRateLimitSignature is the substring matched (case-insensitively)
// against a structured error message to recognize a rate-limit rejection.
// Providers word this differently, so it is configurable rather than
// hard-coded.
const DefaultRateLimitSignature = "rate limit"

// Dispatcher issues one outbound call attempt per handed job, classifies
// the outcome and either finalizes the job or pushes it back on the
// retry queue. The attempt has already been counted against the job's
// budget by the runner at admission.
type Dispatcher struct {
	caller    Caller
	results   *ResultLog
	tracker   *StatusTracker
	retries   *RetryQueue
	cooldown  *ratelimit.Cooldown
	signature string // lowercased rate-limit substring
	log       *logging.Logger
	bus       *events.Bus
}

// NewDispatcher wires a dispatcher. bus may be nil when no subscriber
// cares about per-job events. An empty signature falls back to
// DefaultRateLimitSignature.
func NewDispatcher(caller Caller, results *ResultLog, tracker *StatusTracker,
	retries *RetryQueue, cooldown *ratelimit.Cooldown, signature string,
	log *logging.Logger, bus *events.Bus) *Dispatcher {

	if signature == "" {
		signature = DefaultRateLimitSignature
	}
	return &Dispatcher{
		caller:    caller,
		results:   results,
		tracker:   tracker,
		retries:   retries,
		cooldown:  cooldown,
		signature: strings.ToLower(signature),
		log:       log,
		bus:       bus,
	}
}

// Dispatch runs one attempt for the job. It is launched as a goroutine
// by the runner and never returns an error: every outcome is absorbed
// into counters, the retry queue or the result log.
func (d *Dispatcher) Dispatch(ctx context.Context, job *Job) {
	d.log.Debug().Int64("job", job.ID).Msg("starting request")

	resp, err := d.caller.Call(ctx, job.Payload)

	switch {
	case err != nil:
		// Transport failure: the call raised rather than returning a
		// response.
		d.log.Warn().Int64("job", job.ID).Err(err).Msg("request failed without response")
		d.tracker.RecordOtherError()
		d.retryOrFinalize(job, err.Error())

	case hasErrorIndicator(resp):
		detail := errorDetail(resp)
		if d.isRateLimited(resp) {
			now := time.Now()
			d.log.Warn().Int64("job", job.ID).Msg("rate limit rejection, cooling down")
			d.tracker.RecordRateLimitError(now)
			d.cooldown.Trip(now)
			d.publish(&events.RateLimitEvent{
				BaseEvent: events.BaseEvent{EventType: events.EventRateLimited, Time: now},
				JobID:     job.ID,
				Cooldown:  d.cooldown.Window(),
			})
		} else {
			d.log.Warn().Int64("job", job.ID).Str("error", detail).Msg("request failed with API error")
			d.tracker.RecordAPIError()
		}
		d.retryOrFinalize(job, detail)

	default:
		d.finalizeSuccess(job, resp)
	}
}

// retryOrFinalize appends the failure detail to the job's history, then
// either re-queues it or writes the terminal failure record.
func (d *Dispatcher) retryOrFinalize(job *Job, detail string) {
	job.ErrorHistory = append(job.ErrorHistory, detail)

	if job.AttemptsLeft > 0 {
		d.retries.Push(job)
		d.publish(&events.JobEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventJobRequeued, Time: time.Now()},
			JobID:     job.ID,
			Attempt:   len(job.ErrorHistory),
			Detail:    detail,
		})
		return
	}

	d.log.Error().Int64("job", job.ID).
		Int("attempts", len(job.ErrorHistory)).
		Msg("request failed after all attempts")

	entry := []any{job.Payload, job.ErrorHistory}
	if job.Metadata != nil {
		entry = append(entry, job.Metadata)
	}
	if err := d.results.Append(entry); err != nil {
		d.log.Error().Int64("job", job.ID).Err(err).Msg("writing failure record")
	}
	// Decrement in-progress only after the terminal record is durable,
	// so a drained run implies a complete result log.
	d.tracker.JobFailed()
	d.publish(&events.JobEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventJobFailed, Time: time.Now()},
		JobID:     job.ID,
		Attempt:   len(job.ErrorHistory),
		Detail:    detail,
	})
}

func (d *Dispatcher) finalizeSuccess(job *Job, resp map[string]any) {
	entry := []any{job.Payload, resp}
	if job.Metadata != nil {
		entry = append(entry, job.Metadata)
	}
	if err := d.results.Append(entry); err != nil {
		d.log.Error().Int64("job", job.ID).Err(err).Msg("writing success record")
	}
	d.tracker.JobSucceeded()
	d.publish(&events.JobEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventJobSucceeded, Time: time.Now()},
		JobID:     job.ID,
		Attempt:   len(job.ErrorHistory) + 1,
	})
	d.log.Debug().Int64("job", job.ID).Msg("request saved")
}

func (d *Dispatcher) isRateLimited(resp map[string]any) bool {
	return strings.Contains(strings.ToLower(errorMessage(resp)), d.signature)
}

func (d *Dispatcher) publish(e events.Event) {
	if d.bus != nil {
		d.bus.Publish(e)
	}
}

// hasErrorIndicator reports whether the response carries a structured
// error object.
func hasErrorIndicator(resp map[string]any) bool {
	_, present := resp["error"]
	return present
}

// errorMessage extracts the provider's error message for signature
// matching. Handles both {"error": {"message": "..."}} and
// {"error": "..."} shapes.
func errorMessage(resp map[string]any) string {
	switch errVal := resp["error"].(type) {
	case map[string]any:
		if msg, ok := errVal["message"].(string); ok {
			return msg
		}
	case string:
		return errVal
	}
	return ""
}

// errorDetail renders the error object for the job's failure history.
func errorDetail(resp map[string]any) string {
	data, err := json.Marshal(resp["error"])
	if err != nil {
		return fmt.Sprintf("%v", resp["error"])
	}
	return string(data)
}
