package capture

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/voxguide/internal/audio"
	"github.com/snarg/voxguide/internal/metrics"
)

// ErrUnsupported is returned when the platform has no speech recognizer.
var ErrUnsupported = errors.New("speech recognition not supported")

// Phase is the capture engine lifecycle state.
//
//	Idle ──Start──▶ Starting ──OnStart──▶ Listening ──Stop──▶ Stopping ──OnEnd──▶ Idle
//
// OnError, OnEnd and a forced audio release move any phase to Idle. Platform
// events only apply to the session started last; once a session is over its
// late events are dropped.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseListening
	PhaseStopping
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseListening:
		return "listening"
	case PhaseStopping:
		return "stopping"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is a snapshot of the transcript and session state.
type State struct {
	Finalized string `json:"finalized"`
	Interim   string `json:"interim"`
	Listening bool   `json:"listening"`
	Phase     Phase  `json:"phase"`
	Error     string `json:"error,omitempty"`
	Supported bool   `json:"supported"`
}

// Text returns the finalized transcript followed by the interim fragment.
func (s State) Text() string {
	return s.Finalized + s.Interim
}

// Capture is implemented by Engine and by Unsupported.
type Capture interface {
	Start() error
	Stop() error
	Clear()
	State() State
	Supported() bool
}

// Config configures a capture engine.
type Config struct {
	Lang     string // recognizer locale, e.g. "ta-IN"
	Session  *audio.Session
	OnChange func(State)
	Log      zerolog.Logger
}

// New returns an Engine when supported is true and rec is non-nil, otherwise
// the Unsupported variant. Call once per platform client.
func New(rec Recognizer, supported bool, cfg Config) Capture {
	if rec == nil || !supported {
		cfg.Log.Warn().Msg("speech recognition unavailable on platform")
		return Unsupported{}
	}
	return NewEngine(rec, cfg)
}

// Engine is the capture state machine driven by platform recognition events.
type Engine struct {
	rec      Recognizer
	opts     Options
	session  *audio.Session
	onChange func(State)
	log      zerolog.Logger

	// notifyMu orders snapshots with their publication.
	notifyMu sync.Mutex

	mu        sync.Mutex
	phase     Phase
	sid       string // active session id; empty while Idle
	finalized string
	interim   string
	lastErr   string
}

// NewEngine creates an idle engine for rec.
func NewEngine(rec Recognizer, cfg Config) *Engine {
	return &Engine{
		rec: rec,
		opts: Options{
			Lang:           cfg.Lang,
			Continuous:     true,
			InterimResults: true,
		},
		session:  cfg.Session,
		onChange: cfg.OnChange,
		log:      cfg.Log,
	}
}

// Start begins a new recognition session. It is a no-op while a session is
// already active. The transcript and error are cleared first.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.phase != PhaseIdle {
		e.mu.Unlock()
		return nil
	}
	e.phase = PhaseStarting
	e.sid = uuid.NewString()
	e.finalized = ""
	e.interim = ""
	e.lastErr = ""
	opts := e.opts
	opts.Session = e.sid
	e.mu.Unlock()

	if e.session != nil {
		e.session.Acquire(e)
	}

	if err := e.rec.Start(opts, e); err != nil {
		e.mu.Lock()
		if e.sid == opts.Session {
			e.toIdleLocked()
			e.lastErr = err.Error()
		}
		e.mu.Unlock()
		e.releaseSession()
		e.notify()
		return fmt.Errorf("start recognition: %w", err)
	}

	e.log.Debug().Str("lang", opts.Lang).Str("session", opts.Session).Msg("recognition requested")
	e.notify()
	return nil
}

// Stop requests a graceful stop. Listening clears when the platform reports
// the end of the session.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.phase != PhaseStarting && e.phase != PhaseListening {
		e.mu.Unlock()
		return nil
	}
	e.phase = PhaseStopping
	e.mu.Unlock()

	e.notify()
	if err := e.rec.Stop(); err != nil {
		return fmt.Errorf("stop recognition: %w", err)
	}
	return nil
}

// Clear empties the transcript without touching the session.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.finalized = ""
	e.interim = ""
	e.mu.Unlock()
	e.notify()
}

// State returns the current snapshot.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) Supported() bool { return true }

func (e *Engine) OnStart(session string) {
	e.mu.Lock()
	if session != e.sid || e.phase != PhaseStarting {
		e.mu.Unlock()
		return
	}
	e.phase = PhaseListening
	e.lastErr = ""
	e.mu.Unlock()

	e.log.Info().Msg("listening")
	e.notify()
}

func (e *Engine) OnResult(session string, resultIndex int, results []Result) {
	if resultIndex < 0 {
		resultIndex = 0
	}
	var final, interim strings.Builder
	for i := resultIndex; i < len(results); i++ {
		if results[i].IsFinal {
			final.WriteString(results[i].Transcript)
		} else {
			interim.WriteString(results[i].Transcript)
		}
	}

	e.mu.Lock()
	if session != e.sid || e.phase == PhaseIdle {
		e.mu.Unlock()
		return
	}
	if e.phase == PhaseStarting {
		e.phase = PhaseListening
	}
	e.finalized += final.String()
	e.interim = interim.String()
	e.mu.Unlock()

	e.notify()
}

func (e *Engine) OnError(session, code string) {
	e.mu.Lock()
	if session != e.sid || e.phase == PhaseIdle {
		e.mu.Unlock()
		e.log.Debug().Str("session", session).Str("code", code).Msg("stale recognition error ignored")
		return
	}
	e.toIdleLocked()
	e.lastErr = code
	e.mu.Unlock()

	metrics.RecognitionErrorsTotal.WithLabelValues(code).Inc()
	e.log.Warn().Str("code", code).Msg("recognition error")
	e.releaseSession()
	e.notify()
}

func (e *Engine) OnEnd(session string) {
	e.mu.Lock()
	if session != e.sid || e.phase == PhaseIdle {
		e.mu.Unlock()
		return
	}
	e.toIdleLocked()
	e.mu.Unlock()

	e.log.Info().Msg("recognition ended")
	e.releaseSession()
	e.notify()
}

// ReleaseAudio aborts recognition because another component took the audio
// line.
func (e *Engine) ReleaseAudio() {
	e.mu.Lock()
	if e.phase == PhaseIdle {
		e.mu.Unlock()
		return
	}
	e.toIdleLocked()
	e.mu.Unlock()

	if err := e.rec.Abort(); err != nil {
		e.log.Warn().Err(err).Msg("abort recognition")
	}
	e.notify()
}

func (e *Engine) AudioOwnerName() string { return "capture" }

func (e *Engine) toIdleLocked() {
	e.phase = PhaseIdle
	e.sid = ""
	e.interim = ""
}

func (e *Engine) releaseSession() {
	if e.session != nil {
		e.session.Release(e)
	}
}

func (e *Engine) notify() {
	if e.onChange == nil {
		return
	}
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	e.onChange(e.State())
}

func (e *Engine) snapshotLocked() State {
	return State{
		Finalized: e.finalized,
		Interim:   e.interim,
		Listening: e.phase == PhaseListening || e.phase == PhaseStopping,
		Phase:     e.phase,
		Error:     e.lastErr,
		Supported: true,
	}
}

// Unsupported stands in for the engine when the platform has no recognizer.
type Unsupported struct{}

func (Unsupported) Start() error    { return ErrUnsupported }
func (Unsupported) Stop() error     { return ErrUnsupported }
func (Unsupported) Clear()          {}
func (Unsupported) State() State    { return State{Error: ErrUnsupported.Error()} }
func (Unsupported) Supported() bool { return false }
