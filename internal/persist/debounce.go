// Package persist flushes in-memory state (quota usage, preferences) to
// durable storage on a debounce, so bursts of updates collapse into one
// write.
package persist

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Debouncer runs fn once the delay has elapsed since the most recent
// Trigger. Triggers during the wait restart it.
type Debouncer struct {
	clock quartz.Clock
	delay time.Duration
	fn    func()

	mu    sync.Mutex
	timer *quartz.Timer
}

// NewDebouncer creates a debouncer. fn runs on the clock's timer
// goroutine.
func NewDebouncer(clock quartz.Clock, delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{
		clock: clock,
		delay: delay,
		fn:    fn,
	}
}

// Trigger schedules fn after the delay, restarting the countdown if one
// is already pending.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Reset(d.delay)
		return
	}
	d.timer = d.clock.AfterFunc(d.delay, d.fire)
}

// Stop cancels any pending run without executing it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Flush runs fn immediately if a run is pending. Used at shutdown so a
// trailing update is not lost to the debounce window.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	pending := d.timer != nil && d.timer.Stop()
	d.timer = nil
	d.mu.Unlock()

	if pending {
		d.fn()
	}
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	d.timer = nil
	d.mu.Unlock()
	d.fn()
}
