// Package debounce coalesces bursts of events into one delayed emission.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the quiescence window used for outgoing buffer updates.
const DefaultDelay = 100 * time.Millisecond

// Timer is a scheduled task that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d has elapsed.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemScheduler schedules on the runtime timer.
var SystemScheduler Scheduler = systemScheduler{}

// Debouncer holds at most one pending emission. Every Trigger cancels the
// pending one and schedules a fresh one, so emit runs once per quiet period.
type Debouncer struct {
	delay     time.Duration
	scheduler Scheduler
	emit      func()

	mu      sync.Mutex
	pending Timer
	gen     uint64
	stopped bool
}

// New returns a debouncer that calls emit after delay of quiet. A nil
// scheduler uses the runtime timer.
func New(delay time.Duration, scheduler Scheduler, emit func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if scheduler == nil {
		scheduler = SystemScheduler
	}
	return &Debouncer{delay: delay, scheduler: scheduler, emit: emit}
}

// Trigger restarts the quiescence window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.pending != nil {
		d.pending.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = d.scheduler.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Pending reports whether an emission is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop cancels any pending emission without running it. Later triggers are
// ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.gen++
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	// A timer that could not be stopped in time must not emit.
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	d.mu.Unlock()

	d.emit()
}
