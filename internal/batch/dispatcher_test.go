package batch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/throttleq/throttleq/internal/logging"
	"github.com/throttleq/throttleq/internal/ratelimit"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(io.Discard)
}

// callerFunc adapts a function to the Caller interface.
type callerFunc func(ctx context.Context, payload map[string]any) (map[string]any, error)

func (f callerFunc) Call(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return f(ctx, payload)
}

func newTestDispatcher(t *testing.T, caller Caller) (*Dispatcher, *ResultLog, *StatusTracker, *RetryQueue, *ratelimit.Cooldown) {
	t.Helper()
	results, err := CreateResultLog(filepath.Join(t.TempDir(), "out.jsonl"))
	if err != nil {
		t.Fatalf("CreateResultLog: %v", err)
	}
	t.Cleanup(func() { results.Close() })

	tracker := NewStatusTracker()
	retries := NewRetryQueue()
	cooldown := ratelimit.NewCooldown(15 * time.Second)
	d := NewDispatcher(caller, results, tracker, retries, cooldown, "", testLogger(), nil)
	return d, results, tracker, retries, cooldown
}

func readResultLines(t *testing.T, results *ResultLog) [][]any {
	t.Helper()
	if err := results.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(results.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var lines [][]any
	for _, raw := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if raw == "" {
			continue
		}
		var entry []any
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			t.Fatalf("result line %q: %v", raw, err)
		}
		lines = append(lines, entry)
	}
	return lines
}

func TestDispatchSuccessWritesResult(t *testing.T) {
	caller := callerFunc(func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		return map[string]any{"id": "resp-1"}, nil
	})
	d, results, tracker, retries, _ := newTestDispatcher(t, caller)

	tracker.JobStarted()
	d.Dispatch(context.Background(), &Job{ID: 1, Payload: map[string]any{"prompt": "p"}})

	s := tracker.Snapshot()
	if s.Succeeded != 1 || s.InProgress != 0 {
		t.Errorf("snapshot = %+v", s)
	}
	if retries.Len() != 0 {
		t.Errorf("retry queue has %d jobs, want 0", retries.Len())
	}

	lines := readResultLines(t, results)
	if len(lines) != 1 || len(lines[0]) != 2 {
		t.Fatalf("lines = %v, want one 2-element entry", lines)
	}
}

func TestDispatchSuccessCarriesMetadata(t *testing.T) {
	caller := callerFunc(func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		return map[string]any{"id": "resp-1"}, nil
	})
	d, results, tracker, _, _ := newTestDispatcher(t, caller)

	tracker.JobStarted()
	d.Dispatch(context.Background(), &Job{
		ID:       1,
		Payload:  map[string]any{"prompt": "p"},
		Metadata: map[string]any{"row_id": 42},
	})

	lines := readResultLines(t, results)
	if len(lines) != 1 || len(lines[0]) != 3 {
		t.Fatalf("lines = %v, want one 3-element entry", lines)
	}
	meta, ok := lines[0][2].(map[string]any)
	if !ok || meta["row_id"] != float64(42) {
		t.Errorf("metadata element = %v", lines[0][2])
	}
}

func TestDispatchTransportErrorRequeues(t *testing.T) {
	caller := callerFunc(func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		return nil, errors.New("connection refused")
	})
	d, results, tracker, retries, _ := newTestDispatcher(t, caller)

	tracker.JobStarted()
	job := &Job{ID: 1, Payload: map[string]any{"prompt": "p"}, AttemptsLeft: 2}
	d.Dispatch(context.Background(), job)

	if retries.Len() != 1 {
		t.Fatalf("retry queue has %d jobs, want 1", retries.Len())
	}
	requeued, _ := retries.Pop()
	if len(requeued.ErrorHistory) != 1 {
		t.Errorf("error history = %v, want one entry", requeued.ErrorHistory)
	}
	s := tracker.Snapshot()
	if s.OtherErrors != 1 || s.InProgress != 1 {
		t.Errorf("snapshot = %+v", s)
	}
	if lines := readResultLines(t, results); len(lines) != 0 {
		t.Errorf("non-terminal attempt was logged: %v", lines)
	}
}

func TestDispatchExhaustedAttemptsWritesFailure(t *testing.T) {
	caller := callerFunc(func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		return map[string]any{"error": map[string]any{"message": "server exploded"}}, nil
	})
	d, results, tracker, retries, _ := newTestDispatcher(t, caller)

	tracker.JobStarted()
	job := &Job{
		ID:           1,
		Payload:      map[string]any{"prompt": "p"},
		AttemptsLeft: 0, // last attempt already spent at admission
		ErrorHistory: []string{"earlier failure", "another failure"},
	}
	d.Dispatch(context.Background(), job)

	if retries.Len() != 0 {
		t.Errorf("retry queue has %d jobs, want 0", retries.Len())
	}
	s := tracker.Snapshot()
	if s.Failed != 1 || s.InProgress != 0 || s.APIErrors != 1 {
		t.Errorf("snapshot = %+v", s)
	}

	lines := readResultLines(t, results)
	if len(lines) != 1 || len(lines[0]) != 2 {
		t.Fatalf("lines = %v, want one 2-element entry", lines)
	}
	history, ok := lines[0][1].([]any)
	if !ok || len(history) != 3 {
		t.Errorf("failure record history = %v, want 3 entries", lines[0][1])
	}
}

func TestDispatchRateLimitTripsCooldown(t *testing.T) {
	caller := callerFunc(func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		return map[string]any{"error": map[string]any{"message": "Rate limit reached for requests"}}, nil
	})
	d, _, tracker, retries, cooldown := newTestDispatcher(t, caller)

	tracker.JobStarted()
	d.Dispatch(context.Background(), &Job{ID: 1, Payload: map[string]any{}, AttemptsLeft: 1})

	if cooldown.Remaining(time.Now()) <= 0 {
		t.Error("cooldown not tripped by rate limit rejection")
	}
	s := tracker.Snapshot()
	if s.RateLimitErrors != 1 || s.APIErrors != 0 {
		t.Errorf("snapshot = %+v", s)
	}
	if retries.Len() != 1 {
		t.Errorf("retry queue has %d jobs, want 1", retries.Len())
	}
}

func TestDispatchCustomRateLimitSignature(t *testing.T) {
	results, err := CreateResultLog(filepath.Join(t.TempDir(), "out.jsonl"))
	if err != nil {
		t.Fatalf("CreateResultLog: %v", err)
	}
	defer results.Close()

	caller := callerFunc(func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		return map[string]any{"error": "Too Many Requests"}, nil
	})
	tracker := NewStatusTracker()
	cooldown := ratelimit.NewCooldown(time.Second)
	d := NewDispatcher(caller, results, tracker, NewRetryQueue(), cooldown,
		"too many requests", testLogger(), nil)

	tracker.JobStarted()
	d.Dispatch(context.Background(), &Job{ID: 1, Payload: map[string]any{}, AttemptsLeft: 1})

	if tracker.Snapshot().RateLimitErrors != 1 {
		t.Error("string-shaped error did not match custom signature")
	}
}

func TestDispatchNonRateLimitAPIError(t *testing.T) {
	caller := callerFunc(func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		return map[string]any{"error": map[string]any{"message": "invalid model"}}, nil
	})
	d, _, tracker, _, cooldown := newTestDispatcher(t, caller)

	tracker.JobStarted()
	d.Dispatch(context.Background(), &Job{ID: 1, Payload: map[string]any{}, AttemptsLeft: 1})

	if cooldown.Remaining(time.Now()) > 0 {
		t.Error("cooldown tripped by a non-rate-limit error")
	}
	s := tracker.Snapshot()
	if s.APIErrors != 1 || s.RateLimitErrors != 0 {
		t.Errorf("snapshot = %+v", s)
	}
}
