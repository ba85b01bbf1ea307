package capture

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/snarg/voxguide/internal/audio"
)

type fakeRecognizer struct {
	mu       sync.Mutex
	starts   int
	stops    int
	aborts   int
	lastOpts Options
	sink     Sink
	startErr error
}

func (f *fakeRecognizer) Start(opts Options, sink Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.lastOpts = opts
	f.sink = sink
	return nil
}

// session returns the id of the most recently started session.
func (f *fakeRecognizer) session() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOpts.Session
}

func (f *fakeRecognizer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeRecognizer) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	return nil
}

type otherOwner struct{ released int }

func (o *otherOwner) ReleaseAudio()          { o.released++ }
func (o *otherOwner) AudioOwnerName() string { return "other" }

func newTestEngine(rec Recognizer) (*Engine, *[]State) {
	var states []State
	e := NewEngine(rec, Config{
		Lang:     "ta-IN",
		Session:  audio.NewSession(zerolog.Nop()),
		OnChange: func(s State) { states = append(states, s) },
		Log:      zerolog.Nop(),
	})
	return e, &states
}

func TestEngineStart(t *testing.T) {
	t.Run("requests_continuous_interim_recognition", func(t *testing.T) {
		rec := &fakeRecognizer{}
		e, _ := newTestEngine(rec)

		if err := e.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if rec.starts != 1 {
			t.Fatalf("starts = %d, want 1", rec.starts)
		}
		if rec.lastOpts.Session == "" {
			t.Error("expected a session id")
		}
		want := Options{Session: rec.lastOpts.Session, Lang: "ta-IN", Continuous: true, InterimResults: true}
		if rec.lastOpts != want {
			t.Errorf("opts = %+v, want %+v", rec.lastOpts, want)
		}
		if e.State().Listening {
			t.Error("listening should wait for platform start")
		}

		e.OnStart(rec.session())
		if !e.State().Listening {
			t.Error("expected listening after OnStart")
		}
	})

	t.Run("second_start_is_noop", func(t *testing.T) {
		rec := &fakeRecognizer{}
		e, _ := newTestEngine(rec)
		e.Start()
		e.OnStart(rec.session())
		e.OnResult(rec.session(), 0, []Result{{Transcript: "வணக்கம்", IsFinal: true}})

		if err := e.Start(); err != nil {
			t.Fatalf("second Start: %v", err)
		}
		if rec.starts != 1 {
			t.Errorf("starts = %d, want 1", rec.starts)
		}
		if e.State().Finalized != "வணக்கம்" {
			t.Error("second Start must not clear the active transcript")
		}
	})

	t.Run("start_clears_previous_transcript_and_error", func(t *testing.T) {
		rec := &fakeRecognizer{}
		e, _ := newTestEngine(rec)
		e.Start()
		e.OnStart(rec.session())
		e.OnResult(rec.session(), 0, []Result{{Transcript: "old", IsFinal: true}})
		e.OnError(rec.session(), "network")

		e.Start()
		s := e.State()
		if s.Finalized != "" || s.Interim != "" || s.Error != "" {
			t.Errorf("state not cleared: %+v", s)
		}
	})

	t.Run("platform_failure_returns_to_idle", func(t *testing.T) {
		rec := &fakeRecognizer{startErr: errors.New("busy")}
		e, _ := newTestEngine(rec)
		if err := e.Start(); err == nil {
			t.Fatal("expected error")
		}
		s := e.State()
		if s.Phase != PhaseIdle || s.Error == "" {
			t.Errorf("state = %+v", s)
		}
		if e.session.Holder() != nil {
			t.Error("audio line should be released")
		}
	})

	t.Run("start_takes_audio_line", func(t *testing.T) {
		rec := &fakeRecognizer{}
		e, _ := newTestEngine(rec)
		other := &otherOwner{}
		e.session.Acquire(other)

		e.Start()
		if other.released != 1 {
			t.Errorf("other owner released %d times, want 1", other.released)
		}
	})
}

func TestEngineResults(t *testing.T) {
	rec := &fakeRecognizer{}
	e, _ := newTestEngine(rec)
	e.Start()
	e.OnStart(rec.session())

	e.OnResult(rec.session(), 0, []Result{{Transcript: "வண", IsFinal: false}})
	if s := e.State(); s.Interim != "வண" || s.Finalized != "" {
		t.Fatalf("after interim: %+v", s)
	}

	e.OnResult(rec.session(), 0, []Result{{Transcript: "வணக்கம் ", IsFinal: true}})
	if s := e.State(); s.Finalized != "வணக்கம் " || s.Interim != "" {
		t.Fatalf("after final: %+v", s)
	}

	// Only results from resultIndex are new; the earlier final is not re-appended.
	e.OnResult(rec.session(), 1, []Result{
		{Transcript: "வணக்கம் ", IsFinal: true},
		{Transcript: "நண்பா", IsFinal: true},
		{Transcript: "எப்ப", IsFinal: false},
	})
	s := e.State()
	if s.Finalized != "வணக்கம் நண்பா" {
		t.Errorf("Finalized = %q", s.Finalized)
	}
	if s.Interim != "எப்ப" {
		t.Errorf("Interim = %q", s.Interim)
	}
	if s.Text() != "வணக்கம் நண்பாஎப்ப" {
		t.Errorf("Text = %q", s.Text())
	}
}

func TestEngineIgnoresResultsWhenIdle(t *testing.T) {
	rec := &fakeRecognizer{}
	e, _ := newTestEngine(rec)
	e.OnResult(rec.session(), 0, []Result{{Transcript: "stray", IsFinal: true}})
	if e.State().Finalized != "" {
		t.Error("idle engine must not accept results")
	}
}

func TestEngineStop(t *testing.T) {
	rec := &fakeRecognizer{}
	e, _ := newTestEngine(rec)
	e.Start()
	e.OnStart(rec.session())
	e.OnResult(rec.session(), 0, []Result{{Transcript: "partial", IsFinal: false}})

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if rec.stops != 1 {
		t.Errorf("stops = %d, want 1", rec.stops)
	}
	if s := e.State(); !s.Listening || s.Phase != PhaseStopping {
		t.Errorf("listening should hold until OnEnd: %+v", s)
	}

	e.OnEnd(rec.session())
	s := e.State()
	if s.Listening || s.Phase != PhaseIdle {
		t.Errorf("after OnEnd: %+v", s)
	}
	if s.Interim != "" {
		t.Errorf("interim should clear when listening stops, got %q", s.Interim)
	}

	// Stop while idle does nothing.
	e.Stop()
	if rec.stops != 1 {
		t.Errorf("stops = %d after idle Stop, want 1", rec.stops)
	}
}

func TestEngineError(t *testing.T) {
	rec := &fakeRecognizer{}
	e, _ := newTestEngine(rec)
	e.Start()
	e.OnStart(rec.session())
	e.OnError(rec.session(), "not-allowed")

	s := e.State()
	if s.Listening || s.Error != "not-allowed" {
		t.Errorf("state = %+v", s)
	}
	if e.session.Holder() != nil {
		t.Error("audio line should be released on error")
	}

	// Recoverable: a new session may start.
	if err := e.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if rec.starts != 2 {
		t.Errorf("starts = %d, want 2", rec.starts)
	}
}

func TestEngineClear(t *testing.T) {
	rec := &fakeRecognizer{}
	e, _ := newTestEngine(rec)
	e.Start()
	e.OnStart(rec.session())
	e.OnResult(rec.session(), 0, []Result{{Transcript: "done ", IsFinal: true}, {Transcript: "more", IsFinal: false}})

	e.Clear()
	s := e.State()
	if s.Finalized != "" || s.Interim != "" {
		t.Errorf("transcript not cleared: %+v", s)
	}
	if !s.Listening {
		t.Error("Clear must not alter listening")
	}
}

func TestEngineReleaseAudio(t *testing.T) {
	rec := &fakeRecognizer{}
	e, states := newTestEngine(rec)
	e.Start()
	e.OnStart(rec.session())

	e.session.Acquire(&otherOwner{})

	if rec.aborts != 1 {
		t.Errorf("aborts = %d, want 1", rec.aborts)
	}
	if e.State().Listening {
		t.Error("forced release should stop listening")
	}
	last := (*states)[len(*states)-1]
	if last.Phase != PhaseIdle {
		t.Errorf("last notified phase = %v", last.Phase)
	}

	// The platform's trailing end event is ignored.
	n := len(*states)
	e.OnEnd(rec.session())
	if len(*states) != n {
		t.Error("OnEnd after forced release should not notify")
	}
}

func TestEngineStaleSessionEvents(t *testing.T) {
	t.Run("restart_before_old_session_reports_end", func(t *testing.T) {
		rec := &fakeRecognizer{}
		e, _ := newTestEngine(rec)
		e.Start()
		old := rec.session()
		e.OnStart(old)

		// Playback takes the line, then the user starts again before the
		// platform reports the aborted session's error and end.
		e.session.Acquire(&otherOwner{})
		e.Start()
		current := rec.session()
		if current == old {
			t.Fatal("restart should use a new session id")
		}
		e.OnError(old, "aborted")
		e.OnEnd(old)

		if s := e.State(); s.Phase != PhaseStarting || s.Error != "" {
			t.Fatalf("stale events changed the new session: %+v", s)
		}

		e.OnStart(current)
		e.OnResult(current, 0, []Result{{Transcript: "வணக்கம்", IsFinal: true}})
		s := e.State()
		if !s.Listening || s.Finalized != "வணக்கம்" || s.Error != "" {
			t.Errorf("state = %+v", s)
		}
		if e.session.Holder() != e {
			t.Error("new session should hold the audio line")
		}
	})

	t.Run("late_abort_error_after_handover", func(t *testing.T) {
		rec := &fakeRecognizer{}
		e, states := newTestEngine(rec)
		e.Start()
		e.OnStart(rec.session())
		e.session.Acquire(&otherOwner{})

		n := len(*states)
		e.OnError(rec.session(), "aborted")
		if s := e.State(); s.Error != "" {
			t.Errorf("forced handover should not surface an error, got %q", s.Error)
		}
		if len(*states) != n {
			t.Error("stale error should not notify")
		}
	})
}

func TestNewFactory(t *testing.T) {
	if _, ok := New(nil, true, Config{Log: zerolog.Nop()}).(Unsupported); !ok {
		t.Error("nil recognizer should yield Unsupported")
	}
	if _, ok := New(&fakeRecognizer{}, false, Config{Log: zerolog.Nop()}).(Unsupported); !ok {
		t.Error("unsupported platform should yield Unsupported")
	}
	c := New(&fakeRecognizer{}, true, Config{Log: zerolog.Nop()})
	if !c.Supported() {
		t.Error("expected supported engine")
	}

	var u Unsupported
	if err := u.Start(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Unsupported.Start = %v", err)
	}
}

func TestPhaseString(t *testing.T) {
	b, _ := PhaseStopping.MarshalText()
	if string(b) != "stopping" {
		t.Errorf("got %q", b)
	}
	if Phase(42).String() != "unknown(42)" {
		t.Errorf("got %q", Phase(42).String())
	}
}
