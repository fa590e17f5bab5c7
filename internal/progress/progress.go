// Package progress renders batch run progress from lifecycle events.
package progress

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/throttleq/throttleq/internal/events"
)

// Reporter is the interface for reporting batch progress.
type Reporter interface {
	Start(description string)
	JobDiscovered()
	JobFinished()
	SetDescription(desc string)
	Finish()
}

// CLIProgress implements progress reporting for terminal runs using a
// progress bar. The total grows as the lazy source yields jobs.
type CLIProgress struct {
	bar  *progressbar.ProgressBar
	max  int64
	done int64
}

// NewCLIProgress creates a new CLI progress reporter.
func NewCLIProgress() *CLIProgress {
	return &CLIProgress{}
}

// Start initializes the progress bar with a description. The total
// starts at zero and grows via JobDiscovered.
func (p *CLIProgress) Start(description string) {
	p.bar = progressbar.NewOptions64(0,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// JobDiscovered extends the total by one job.
func (p *CLIProgress) JobDiscovered() {
	if p.bar != nil {
		p.max++
		p.bar.ChangeMax64(p.max)
	}
}

// JobFinished advances the bar by one completed job.
func (p *CLIProgress) JobFinished() {
	if p.bar != nil {
		p.done++
		_ = p.bar.Set64(p.done)
	}
}

// SetDescription updates the progress bar description.
func (p *CLIProgress) SetDescription(desc string) {
	if p.bar != nil {
		p.bar.Describe(desc)
	}
}

// Finish completes the progress bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// NoOpProgress is a progress reporter that does nothing (for quiet runs).
type NoOpProgress struct{}

// NewNoOpProgress creates a new no-op progress reporter.
func NewNoOpProgress() *NoOpProgress {
	return &NoOpProgress{}
}

func (NoOpProgress) Start(description string)   {}
func (NoOpProgress) JobDiscovered()             {}
func (NoOpProgress) JobFinished()               {}
func (NoOpProgress) SetDescription(desc string) {}
func (NoOpProgress) Finish()                    {}

// Watch consumes lifecycle events and drives the reporter until the
// channel closes or the run completes. Run it in its own goroutine with
// a Bus.SubscribeAll channel.
//
// Admission events fire once per attempt; a retry re-admits the same
// job ID. Job IDs are assigned monotonically, so an ID above the
// highest seen marks a newly discovered job rather than a retry.
func Watch(ch <-chan events.Event, r Reporter) {
	var highestID int64
	for ev := range ch {
		switch e := ev.(type) {
		case *events.JobEvent:
			switch e.Type() {
			case events.EventJobAdmitted:
				if e.JobID > highestID {
					highestID = e.JobID
					r.JobDiscovered()
				}
			case events.EventJobSucceeded, events.EventJobFailed:
				r.JobFinished()
			}
		case *events.RateLimitEvent:
			r.SetDescription(fmt.Sprintf("cooling down %s after rate limit", e.Cooldown))
		case *events.RunCompleteEvent:
			r.Finish()
			return
		}
	}
}
