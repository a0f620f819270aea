// Package debounce coalesces bursts of calls into a single delayed execution.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs action once no new Call has arrived for the configured delay.
// Only the argument of the most recent Call is delivered; skipped calls are
// never queued.
type Debouncer[T any] struct {
	delay  time.Duration
	action func(T)

	mu      sync.Mutex
	timer   *time.Timer
	arg     T
	pending bool
	gen     uint64
}

// New returns a Debouncer for action with the given quiescence window.
func New[T any](delay time.Duration, action func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, action: action}
}

// Call (re)schedules action with arg, cancelling any pending execution.
func (d *Debouncer[T]) Call(arg T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.arg = arg
	d.pending = true
	d.gen++
	gen := d.gen

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// fire runs the pending action if gen still identifies the latest Call.
// A timer that already fired when Stop was called lands here with a stale gen.
func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if !d.pending || gen != d.gen {
		d.mu.Unlock()
		return
	}
	arg := d.take()
	d.mu.Unlock()

	d.action(arg)
}

// take clears the pending state and returns its argument. Caller holds mu.
func (d *Debouncer[T]) take() T {
	arg := d.arg
	var zero T
	d.arg = zero
	d.pending = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return arg
}

// Stop cancels the pending execution, if any. It reports whether a call was
// pending.
func (d *Debouncer[T]) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.pending {
		return false
	}
	d.take()
	return true
}

// Flush runs the pending execution immediately on the calling goroutine.
// It reports whether anything was pending.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return false
	}
	arg := d.take()
	d.mu.Unlock()

	d.action(arg)
	return true
}

// Pending reports whether an execution is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}
