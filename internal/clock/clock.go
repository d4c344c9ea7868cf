// Package clock supplies wall-clock time to the board and keeps the
// now-indicator fresh.
package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "daycal/internal/log"
)

// Clock returns the current local time.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fixed is a settable clock for tests and snapshots.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// DefaultSpec fires at the top of every minute.
const DefaultSpec = "* * * * *"

// Refresher calls a function on a cron schedule.
type Refresher struct {
	c    *cron.Cron
	spec string
}

// NewRefresher validates spec (standard five-field cron syntax, empty means
// every minute) and registers fn. Nothing runs until Start.
func NewRefresher(spec string, fn func()) (*Refresher, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				appLog.Error("clock: refresh panicked", fmt.Errorf("%v", r))
			}
		}()
		fn()
	}); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return &Refresher{c: c, spec: spec}, nil
}

// Start runs the schedule in the background.
func (r *Refresher) Start() {
	appLog.Info("clock: refresher started", "spec", r.spec)
	r.c.Start()
}

// Stop halts the schedule and waits for a running callback to finish.
func (r *Refresher) Stop() {
	<-r.c.Stop().Done()
}

// Next reports when the schedule fires next after t.
func (r *Refresher) Next(t time.Time) time.Time {
	entries := r.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(t)
}
