package editor

import (
	"sync"
	"time"
)

// ScheduleFunc runs fn once after delay and returns a function that
// cancels it. Tests pass a manual clock; production uses RealScheduler.
type ScheduleFunc func(delay time.Duration, fn func()) (cancel func())

// RealScheduler schedules on the runtime timer.
func RealScheduler(delay time.Duration, fn func()) func() {
	timer := time.AfterFunc(delay, fn)
	return func() { timer.Stop() }
}

// Debouncer coalesces bursts of Trigger calls into one call of fn, delay
// after the last trigger.
type Debouncer struct {
	mu       sync.Mutex
	schedule ScheduleFunc
	delay    time.Duration
	fn       func()
	cancel   func()
	gen      uint64
	pending  bool
}

func NewDebouncer(schedule ScheduleFunc, delay time.Duration, fn func()) *Debouncer {
	if schedule == nil {
		schedule = RealScheduler
	}
	return &Debouncer{schedule: schedule, delay: delay, fn: fn}
}

// Trigger restarts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.gen++
	gen := d.gen
	d.pending = true
	d.mu.Unlock()

	cancel := d.schedule(d.delay, func() { d.fire(gen) })

	d.mu.Lock()
	if d.gen == gen && d.pending {
		d.cancel = cancel
	} else {
		cancel()
	}
	d.mu.Unlock()
}

// Flush runs fn now if a call is pending and reports whether it did.
func (d *Debouncer) Flush() bool {
	if !d.take() {
		return false
	}
	d.fn()
	return true
}

// Cancel drops a pending call and reports whether there was one.
func (d *Debouncer) Cancel() bool {
	return d.take()
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer) take() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.pending {
		return false
	}
	d.pending = false
	d.gen++
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	return true
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.cancel = nil
	d.mu.Unlock()
	d.fn()
}
