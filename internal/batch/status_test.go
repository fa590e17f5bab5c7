package batch

import (
	"testing"
	"time"
)

func TestStatusTrackerInvariant(t *testing.T) {
	tracker := NewStatusTracker()

	check := func() {
		s := tracker.Snapshot()
		if s.Started != s.Succeeded+s.Failed+s.InProgress {
			t.Fatalf("invariant broken: started=%d succeeded=%d failed=%d in_progress=%d",
				s.Started, s.Succeeded, s.Failed, s.InProgress)
		}
	}

	tracker.JobStarted()
	tracker.JobStarted()
	tracker.JobStarted()
	check()

	tracker.JobSucceeded()
	check()
	tracker.JobFailed()
	check()

	s := tracker.Snapshot()
	if s.Started != 3 || s.Succeeded != 1 || s.Failed != 1 || s.InProgress != 1 {
		t.Errorf("snapshot = %+v", s)
	}
	if tracker.InProgress() != 1 {
		t.Errorf("InProgress = %d, want 1", tracker.InProgress())
	}
}

func TestStatusTrackerErrorCounters(t *testing.T) {
	tracker := NewStatusTracker()

	tracker.RecordAPIError()
	tracker.RecordAPIError()
	tracker.RecordOtherError()

	s := tracker.Snapshot()
	if s.APIErrors != 2 || s.OtherErrors != 1 || s.RateLimitErrors != 0 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestStatusTrackerLastRateLimitErrorKeepsLatest(t *testing.T) {
	tracker := NewStatusTracker()
	early := time.Now()
	late := early.Add(time.Minute)

	tracker.RecordRateLimitError(late)
	tracker.RecordRateLimitError(early) // out-of-order arrival

	s := tracker.Snapshot()
	if s.RateLimitErrors != 2 {
		t.Errorf("RateLimitErrors = %d, want 2", s.RateLimitErrors)
	}
	if !s.LastRateLimitError.Equal(late) {
		t.Errorf("LastRateLimitError = %v, want %v", s.LastRateLimitError, late)
	}
}
