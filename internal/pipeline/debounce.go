package pipeline

import (
	"sync"
	"time"
)

// Debouncer delivers the last value passed to Trigger once no new value has
// arrived for the configured delay.
type Debouncer[T any] struct {
	mu      sync.Mutex
	delay   time.Duration
	fireFn  func(T)
	timer   *time.Timer
	pending T
	seq     uint64
	stopped bool
	wg      sync.WaitGroup
}

// NewDebouncer creates a debouncer that calls fireFn on its own goroutine.
func NewDebouncer[T any](delay time.Duration, fireFn func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, fireFn: fireFn}
}

// Trigger replaces the pending value and restarts the quiet window.
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.pending = v
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// A Trigger or Cancel that raced the timer wins.
		if d.stopped || d.seq != seq {
			d.mu.Unlock()
			return
		}
		v := d.pending
		d.timer = nil
		d.wg.Add(1)
		d.mu.Unlock()

		defer d.wg.Done()
		d.fireFn(v)
	})
}

// Cancel drops the pending value without firing.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// Pending reports whether a value is waiting for the window to close.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels any pending value, waits for a running fireFn and prevents
// future triggers.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.cancelLocked()
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Debouncer[T]) cancelLocked() {
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	var zero T
	d.pending = zero
}
