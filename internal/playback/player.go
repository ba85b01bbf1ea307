package playback

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/voxguide/internal/audio"
	"github.com/snarg/voxguide/internal/metrics"
)

var (
	// ErrUnsupported is returned when the platform has no speech synthesizer.
	ErrUnsupported = errors.New("speech synthesis not supported")
	// ErrNotActive is returned by Pause and Resume when nothing is in the
	// matching phase.
	ErrNotActive = errors.New("no active utterance")
)

// synthesisFailed is the error surfaced for any platform synthesis error.
const synthesisFailed = "speech synthesis failed"

// charsPerSecond drives the playback duration estimate.
const charsPerSecond = 10

type Phase int

const (
	PhaseIdle Phase = iota
	PhasePlaying
	PhasePaused
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Voice holds the utterance parameters applied to every Speak.
type Voice struct {
	Rate   float64
	Pitch  float64
	Volume float64
}

// DefaultVoice is a slightly slowed speaking rate at normal pitch and volume.
var DefaultVoice = Voice{Rate: 0.8, Pitch: 1, Volume: 1}

// State is a snapshot of a player.
type State struct {
	Player      string  `json:"player"`
	Phase       Phase   `json:"phase"`
	ActiveIndex *int    `json:"active_index"`
	IsPaused    bool    `json:"is_paused"`
	Progress    float64 `json:"progress"`
	UtteranceID string  `json:"utterance_id,omitempty"`
	Text        string  `json:"text,omitempty"`
	Lang        string  `json:"lang,omitempty"`
	Error       string  `json:"error,omitempty"`
	Supported   bool    `json:"supported"`
}

// Playback is implemented by Player and Unsupported.
type Playback interface {
	Speak(text, lang string, index *int) error
	Pause() error
	Resume() error
	Stop() error
	State() State
	Supported() bool
	// Detach drops to Idle without talking to the platform and stops all
	// further state publication. Used once the platform client is gone.
	Detach()
}

// Config configures a Player.
type Config struct {
	Name     string
	Session  *audio.Session
	Voice    Voice
	OnChange func(State)
	Log      zerolog.Logger

	// Tick is the progress publish interval; zero means 100ms, negative
	// disables periodic publishing.
	Tick time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// New returns a Player when supported is true and synth is non-nil,
// otherwise the Unsupported variant.
func New(synth Synthesizer, supported bool, cfg Config) Playback {
	if synth == nil || !supported {
		cfg.Log.Warn().Str("player", cfg.Name).Msg("speech synthesis unavailable on platform")
		return Unsupported{Name: cfg.Name}
	}
	return NewPlayer(synth, cfg)
}

// Player drives one logical playback surface (the translation results list,
// the attraction guide). Players share the platform synthesizer through the
// audio session, so starting one stops the other.
type Player struct {
	synth    Synthesizer
	name     string
	session  *audio.Session
	voice    Voice
	onChange func(State)
	log      zerolog.Logger
	tick     time.Duration
	now      func() time.Time

	// notifyMu orders snapshots with their publication; detached is guarded
	// by it.
	notifyMu sync.Mutex
	detached bool

	mu        sync.Mutex
	phase     Phase
	id        string
	text      string
	lang      string
	index     *int
	started   time.Time     // progress base while playing
	duration  time.Duration // estimated
	progress  float64       // frozen value while paused or idle
	lastErr   string
	stopTicks chan struct{}
}

// NewPlayer creates an idle player.
func NewPlayer(synth Synthesizer, cfg Config) *Player {
	p := &Player{
		synth:    synth,
		name:     cfg.Name,
		session:  cfg.Session,
		voice:    cfg.Voice,
		onChange: cfg.OnChange,
		log:      cfg.Log,
		tick:     cfg.Tick,
		now:      cfg.Now,
	}
	if p.voice == (Voice{}) {
		p.voice = DefaultVoice
	}
	if p.tick == 0 {
		p.tick = 100 * time.Millisecond
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Speak stops whatever is using the audio line, cancels the current
// utterance and starts a new one. index identifies the list entry being
// spoken and may be nil.
func (p *Player) Speak(text, lang string, index *int) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if p.session != nil {
		p.session.Acquire(p)
	}
	if err := p.synth.Cancel(); err != nil {
		p.log.Debug().Err(err).Msg("cancel before speak")
	}

	u := Utterance{
		ID:     uuid.NewString(),
		Text:   text,
		Lang:   lang,
		Rate:   p.voice.Rate,
		Pitch:  p.voice.Pitch,
		Volume: p.voice.Volume,
	}

	p.mu.Lock()
	p.stopTicksLocked()
	p.phase = PhasePlaying
	p.id = u.ID
	p.text = text
	p.lang = lang
	p.index = copyIndex(index)
	p.progress = 0
	p.started = p.now()
	p.duration = estimateDuration(text)
	p.lastErr = ""
	p.startTicksLocked()
	p.mu.Unlock()

	metrics.PlaybackStartsTotal.WithLabelValues(p.name).Inc()

	if err := p.synth.Speak(u, p); err != nil {
		p.mu.Lock()
		if p.id == u.ID {
			p.toIdleLocked(0)
			p.lastErr = synthesisFailed
		}
		p.mu.Unlock()
		p.releaseSession()
		p.notify()
		return fmt.Errorf("speak: %w", err)
	}

	p.log.Debug().Str("utterance_id", u.ID).Str("lang", lang).Msg("utterance queued")
	p.notify()
	return nil
}

// Pause pauses the active utterance.
func (p *Player) Pause() error {
	p.mu.Lock()
	if p.phase != PhasePlaying {
		p.mu.Unlock()
		return ErrNotActive
	}
	p.pauseLocked()
	p.mu.Unlock()

	if err := p.synth.Pause(); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	p.notify()
	return nil
}

// Resume continues a paused utterance from its stored progress.
func (p *Player) Resume() error {
	p.mu.Lock()
	if p.phase != PhasePaused {
		p.mu.Unlock()
		return ErrNotActive
	}
	p.resumeLocked()
	p.mu.Unlock()

	if err := p.synth.Resume(); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	p.notify()
	return nil
}

// Stop cancels playback and resets progress to zero.
func (p *Player) Stop() error {
	p.mu.Lock()
	active := p.phase != PhaseIdle
	p.toIdleLocked(0)
	p.mu.Unlock()

	if active {
		if err := p.synth.Cancel(); err != nil {
			p.log.Warn().Err(err).Msg("cancel utterance")
		}
		p.releaseSession()
	}
	p.notify()
	return nil
}

// State returns the current snapshot with progress computed at call time.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		Player:      p.name,
		Phase:       p.phase,
		ActiveIndex: copyIndex(p.index),
		IsPaused:    p.phase == PhasePaused,
		Progress:    p.progressLocked(),
		UtteranceID: p.id,
		Text:        p.text,
		Lang:        p.lang,
		Error:       p.lastErr,
		Supported:   true,
	}
}

func (p *Player) Supported() bool { return true }

// OnStart restarts the progress clock when the platform begins speaking.
func (p *Player) OnStart(id string) {
	p.mu.Lock()
	if id != p.id || p.phase != PhasePlaying {
		p.mu.Unlock()
		return
	}
	p.started = p.now()
	p.mu.Unlock()
	p.notify()
}

// OnEnd marks natural completion.
func (p *Player) OnEnd(id string) {
	p.mu.Lock()
	if id != p.id || p.phase == PhaseIdle {
		p.mu.Unlock()
		return
	}
	p.toIdleLocked(100)
	p.mu.Unlock()

	p.log.Debug().Str("utterance_id", id).Msg("utterance finished")
	p.releaseSession()
	p.notify()
}

func (p *Player) OnError(id, code string) {
	p.mu.Lock()
	if id != p.id || p.phase == PhaseIdle {
		p.mu.Unlock()
		return
	}
	p.toIdleLocked(0)
	p.lastErr = synthesisFailed
	p.mu.Unlock()

	p.log.Warn().Str("utterance_id", id).Str("code", code).Msg("speech synthesis error")
	p.releaseSession()
	p.notify()
}

// OnPause and OnResume mirror pauses initiated on the platform side.
func (p *Player) OnPause(id string) {
	p.mu.Lock()
	if id != p.id || p.phase != PhasePlaying {
		p.mu.Unlock()
		return
	}
	p.pauseLocked()
	p.mu.Unlock()
	p.notify()
}

func (p *Player) OnResume(id string) {
	p.mu.Lock()
	if id != p.id || p.phase != PhasePaused {
		p.mu.Unlock()
		return
	}
	p.resumeLocked()
	p.mu.Unlock()
	p.notify()
}

// ReleaseAudio stops playback because another component took the audio line.
func (p *Player) ReleaseAudio() {
	p.mu.Lock()
	if p.phase == PhaseIdle {
		p.mu.Unlock()
		return
	}
	p.toIdleLocked(0)
	p.mu.Unlock()

	if err := p.synth.Cancel(); err != nil {
		p.log.Warn().Err(err).Msg("cancel utterance")
	}
	p.notify()
}

func (p *Player) AudioOwnerName() string { return "playback:" + p.name }

// Detach stops the progress ticker and publishes a final idle state. The
// synthesizer is not called and later changes are not published.
func (p *Player) Detach() {
	p.mu.Lock()
	active := p.phase != PhaseIdle
	p.toIdleLocked(0)
	p.mu.Unlock()

	if active {
		p.releaseSession()
	}
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	if active && !p.detached && p.onChange != nil {
		p.onChange(p.State())
	}
	p.detached = true
}

func (p *Player) pauseLocked() {
	p.progress = p.progressLocked()
	p.phase = PhasePaused
	p.stopTicksLocked()
}

func (p *Player) resumeLocked() {
	p.started = p.now().Add(-time.Duration(p.progress / 100 * float64(p.duration)))
	p.phase = PhasePlaying
	p.startTicksLocked()
}

func (p *Player) toIdleLocked(progress float64) {
	p.stopTicksLocked()
	p.phase = PhaseIdle
	p.index = nil
	p.progress = progress
}

func (p *Player) progressLocked() float64 {
	if p.phase != PhasePlaying {
		return p.progress
	}
	if p.duration <= 0 {
		return 100
	}
	pct := float64(p.now().Sub(p.started)) / float64(p.duration) * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

func (p *Player) startTicksLocked() {
	if p.tick < 0 || p.onChange == nil {
		return
	}
	stop := make(chan struct{})
	p.stopTicks = stop
	go func() {
		t := time.NewTicker(p.tick)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				p.notify()
			}
		}
	}()
}

func (p *Player) stopTicksLocked() {
	if p.stopTicks != nil {
		close(p.stopTicks)
		p.stopTicks = nil
	}
}

func (p *Player) releaseSession() {
	if p.session != nil {
		p.session.Release(p)
	}
}

func (p *Player) notify() {
	if p.onChange == nil {
		return
	}
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	if p.detached {
		return
	}
	p.onChange(p.State())
}

func estimateDuration(text string) time.Duration {
	return time.Duration(utf8.RuneCountInString(text)) * time.Second / charsPerSecond
}

func copyIndex(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

// Unsupported stands in for the player when the platform has no synthesizer.
type Unsupported struct {
	Name string
}

func (Unsupported) Speak(string, string, *int) error { return ErrUnsupported }
func (Unsupported) Pause() error                     { return ErrUnsupported }
func (Unsupported) Resume() error                    { return ErrUnsupported }
func (Unsupported) Stop() error                      { return ErrUnsupported }
func (Unsupported) Supported() bool                  { return false }
func (Unsupported) Detach()                          {}

func (u Unsupported) State() State {
	return State{Player: u.Name, Error: ErrUnsupported.Error()}
}
