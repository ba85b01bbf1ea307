package pipeline

import (
	"sync"
	"testing"
	"time"
)

type recorder[T any] struct {
	mu  sync.Mutex
	got []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	r.got = append(r.got, v)
	r.mu.Unlock()
}

func (r *recorder[T]) values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.got...)
}

func TestDebouncer(t *testing.T) {
	t.Run("rapid_triggers_coalesce_to_last", func(t *testing.T) {
		var r recorder[string]
		d := NewDebouncer(40*time.Millisecond, r.add)
		defer d.Stop()

		d.Trigger("வ")
		time.Sleep(10 * time.Millisecond)
		d.Trigger("வண")
		time.Sleep(10 * time.Millisecond)
		d.Trigger("வணக்கம்")

		time.Sleep(150 * time.Millisecond)
		got := r.values()
		if len(got) != 1 || got[0] != "வணக்கம்" {
			t.Errorf("fired %v, want [வணக்கம்]", got)
		}
	})

	t.Run("separate_windows_fire_separately", func(t *testing.T) {
		var r recorder[int]
		d := NewDebouncer(20*time.Millisecond, r.add)
		defer d.Stop()

		d.Trigger(1)
		time.Sleep(100 * time.Millisecond)
		d.Trigger(2)
		time.Sleep(100 * time.Millisecond)

		got := r.values()
		if len(got) != 2 || got[0] != 1 || got[1] != 2 {
			t.Errorf("fired %v, want [1 2]", got)
		}
	})

	t.Run("cancel_drops_pending", func(t *testing.T) {
		var r recorder[int]
		d := NewDebouncer(20*time.Millisecond, r.add)
		defer d.Stop()

		d.Trigger(1)
		if !d.Pending() {
			t.Error("expected pending after Trigger")
		}
		d.Cancel()
		if d.Pending() {
			t.Error("expected nothing pending after Cancel")
		}
		time.Sleep(80 * time.Millisecond)
		if got := r.values(); len(got) != 0 {
			t.Errorf("fired %v after Cancel", got)
		}
	})

	t.Run("stop_prevents_future_triggers", func(t *testing.T) {
		var r recorder[int]
		d := NewDebouncer(10*time.Millisecond, r.add)
		d.Stop()
		d.Trigger(1)
		time.Sleep(50 * time.Millisecond)
		if got := r.values(); len(got) != 0 {
			t.Errorf("fired %v after Stop", got)
		}
	})

	t.Run("stop_waits_for_running_fire", func(t *testing.T) {
		started := make(chan struct{})
		var finished bool
		d := NewDebouncer(5*time.Millisecond, func(int) {
			close(started)
			time.Sleep(50 * time.Millisecond)
			finished = true
		})
		d.Trigger(1)
		<-started
		d.Stop()
		if !finished {
			t.Error("Stop returned before fireFn finished")
		}
	})
}
