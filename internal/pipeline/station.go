// Package pipeline connects speech capture, translation and playback for the
// attached platform client.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/voxguide/internal/audio"
	"github.com/snarg/voxguide/internal/capture"
	"github.com/snarg/voxguide/internal/catalog"
	"github.com/snarg/voxguide/internal/events"
	"github.com/snarg/voxguide/internal/playback"
	"github.com/snarg/voxguide/internal/translate"
)

var (
	// ErrNoClient is returned when no platform client is attached.
	ErrNoClient = errors.New("no platform client connected")
	// ErrNoResult is returned when a result index is out of range.
	ErrNoResult = errors.New("no translation result at index")
)

// Player names.
const (
	PlayerResults = "results"
	PlayerGuide   = "guide"
)

// DefaultDebounce is the quiet window before a transcript is translated.
const DefaultDebounce = time.Second

// Publisher receives state-change events.
type Publisher interface {
	Publish(events.Data)
}

// Capabilities are reported by the platform once per client.
type Capabilities struct {
	Recognition bool `json:"recognition"`
	Synthesis   bool `json:"synthesis"`
}

// Platform is an attached client offering speech capabilities.
type Platform struct {
	ID           string
	Capabilities Capabilities
	Recognizer   capture.Recognizer
	Synthesizer  playback.Synthesizer
}

// StationConfig holds the dependencies shared by every station.
type StationConfig struct {
	SourceLang        string // translation source, e.g. "ta"
	RecognitionLocale string // e.g. "ta-IN"
	Voice             playback.Voice
	Debounce          time.Duration
	Client            *translate.Client
	Catalog           *catalog.Store
	Publisher         Publisher
	Log               zerolog.Logger
}

// Station is the pipeline for one platform client. It is discarded when the
// client disconnects.
type Station struct {
	platform Platform
	cfg      StationConfig
	selected func() []string
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	session  *audio.Session
	capture  capture.Capture
	tracker  *translate.Tracker
	results  playback.Playback
	guide    playback.Playback
	debounce *Debouncer[string]

	mu            sync.Mutex
	lastFinalized string
	attractions   map[string]*translate.Tracker
}

// NewStation builds the engines for p. selected returns the current target
// languages at the moment a batch fires.
func NewStation(parent context.Context, p Platform, cfg StationConfig, selected func() []string) *Station {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	log := cfg.Log.With().Str("client_id", p.ID).Logger()
	ctx, cancel := context.WithCancel(parent)

	s := &Station{
		platform:    p,
		cfg:         cfg,
		selected:    selected,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
		session:     audio.NewSession(log),
		attractions: make(map[string]*translate.Tracker),
	}

	s.capture = capture.New(p.Recognizer, p.Capabilities.Recognition, capture.Config{
		Lang:     cfg.RecognitionLocale,
		Session:  s.session,
		OnChange: s.onCaptureChange,
		Log:      log.With().Str("component", "capture").Logger(),
	})
	s.tracker = translate.NewTracker(cfg.Client, func(snap translate.Snapshot) {
		s.publish(events.Data{Type: events.TypeTranslation, Payload: snap})
	}, log.With().Str("component", "translate").Logger())
	s.results = s.newPlayer(PlayerResults)
	s.guide = s.newPlayer(PlayerGuide)
	s.debounce = NewDebouncer(cfg.Debounce, s.fire)

	return s
}

func (s *Station) newPlayer(name string) playback.Playback {
	return playback.New(s.platform.Synthesizer, s.platform.Capabilities.Synthesis, playback.Config{
		Name:    name,
		Session: s.session,
		Voice:   s.cfg.Voice,
		OnChange: func(st playback.State) {
			s.publish(events.Data{Type: events.TypePlayback, SubType: name, Payload: st})
		},
		Log: s.log.With().Str("component", "playback").Str("player", name).Logger(),
	})
}

// ID returns the platform client id.
func (s *Station) ID() string { return s.platform.ID }

// Capabilities returns what the platform reported.
func (s *Station) Capabilities() Capabilities { return s.platform.Capabilities }

func (s *Station) Capture() capture.Capture   { return s.capture }
func (s *Station) Results() playback.Playback { return s.results }
func (s *Station) Guide() playback.Playback   { return s.guide }

// Translations returns the transcript translation state.
func (s *Station) Translations() translate.Snapshot { return s.tracker.Snapshot() }

// InFlight counts translation batches awaiting the service.
func (s *Station) InFlight() int {
	n := 0
	if s.tracker.InFlight() {
		n++
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.attractions {
		if t.InFlight() {
			n++
		}
	}
	return n
}

// onCaptureChange publishes the transcript and restarts the debounce window
// whenever the finalized transcript changes.
func (s *Station) onCaptureChange(st capture.State) {
	s.publish(events.Data{Type: events.TypeCapture, Payload: st})

	s.mu.Lock()
	changed := st.Finalized != s.lastFinalized
	s.lastFinalized = st.Finalized
	s.mu.Unlock()

	if changed {
		s.debounce.Trigger(st.Finalized)
	}
}

// Retrigger restarts the debounce window with the current transcript. Called
// when the target selection changes.
func (s *Station) Retrigger() {
	s.debounce.Trigger(s.capture.State().Finalized)
}

func (s *Station) fire(text string) {
	targets := s.selected()
	if strings.TrimSpace(text) == "" || len(targets) == 0 {
		return
	}
	if err := s.tracker.Run(s.ctx, text, targets); err != nil && !errors.Is(err, translate.ErrSuperseded) {
		s.log.Debug().Err(err).Msg("debounced translation failed")
	}
}

// TranslateNow translates text (or the finalized transcript when text is
// blank) immediately, skipping the debounce window.
func (s *Station) TranslateNow(ctx context.Context, text string, targets []string) error {
	s.debounce.Cancel()
	if strings.TrimSpace(text) == "" {
		text = s.capture.State().Finalized
	}
	if targets == nil {
		targets = s.selected()
	}
	err := s.tracker.Run(ctx, text, targets)
	if errors.Is(err, translate.ErrSuperseded) {
		return nil
	}
	return err
}

// ClearTranslations empties the result list and stops result playback.
func (s *Station) ClearTranslations() {
	s.tracker.Clear()
	if s.results.Supported() {
		s.results.Stop()
	}
}

// ClearAll resets the transcript, the translation results and any pending
// debounce.
func (s *Station) ClearAll() {
	s.capture.Clear()
	// Clearing the transcript re-arms the debounce through onCaptureChange.
	s.debounce.Cancel()
	s.ClearTranslations()
	s.log.Info().Msg("pipeline cleared")
}

// SpeakResult plays the translation result at index on the results player.
func (s *Station) SpeakResult(index int) error {
	r, ok := s.tracker.Result(index)
	if !ok {
		return fmt.Errorf("%w %d", ErrNoResult, index)
	}
	return s.results.Speak(r.Text, r.LanguageCode, &index)
}

// SpeakResultSource speaks the result at index back in the source language
// on the results player.
func (s *Station) SpeakResultSource(ctx context.Context, index int) error {
	r, ok := s.tracker.Result(index)
	if !ok {
		return fmt.Errorf("%w %d", ErrNoResult, index)
	}
	return s.SpeakSource(ctx, s.results, r.Text, r.LanguageCode)
}

// SpeakText plays arbitrary text on the results player.
func (s *Station) SpeakText(text, lang string) error {
	return s.results.Speak(text, lang, nil)
}

// SpeakSource translates text from lang back into the source language and
// speaks it on p. A translation failure aborts before any audio starts.
func (s *Station) SpeakSource(ctx context.Context, p playback.Playback, text, lang string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !p.Supported() {
		return playback.ErrUnsupported
	}
	source := s.cfg.SourceLang
	if lang != source {
		out, err := s.cfg.Client.TranslateFrom(ctx, text, lang, source)
		if err != nil {
			return &translate.LanguageError{Code: source, Name: catalog.LanguageName(source), Err: err}
		}
		text = out
	}
	return p.Speak(text, source, nil)
}

// attractionTracker returns the tracker for an attraction card, creating it
// on first use.
func (s *Station) attractionTracker(id string) *translate.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.attractions[id]
	if !ok {
		t = translate.NewTracker(s.cfg.Client, func(snap translate.Snapshot) {
			s.publish(events.Data{Type: events.TypeAttraction, AttractionID: id, Payload: snap})
		}, s.log.With().Str("component", "translate").Str("attraction_id", id).Logger())
		s.attractions[id] = t
	}
	return t
}

// TranslateAttraction translates an attraction's source-language description
// into targets, or the current selection when targets is nil.
func (s *Station) TranslateAttraction(ctx context.Context, id string, targets []string) (translate.Snapshot, error) {
	a, err := s.cfg.Catalog.Catalog().Attraction(id)
	if err != nil {
		return translate.Snapshot{}, err
	}
	if targets == nil {
		targets = s.selected()
	}
	t := s.attractionTracker(a.ID)
	if err := t.Run(ctx, a.DescriptionLocal, targets); err != nil && !errors.Is(err, translate.ErrSuperseded) {
		return t.Snapshot(), err
	}
	return t.Snapshot(), nil
}

// AttractionTranslations returns the translation state for an attraction.
func (s *Station) AttractionTranslations(id string) (translate.Snapshot, error) {
	a, err := s.cfg.Catalog.Catalog().Attraction(id)
	if err != nil {
		return translate.Snapshot{}, err
	}
	return s.attractionTracker(a.ID).Snapshot(), nil
}

// SpeakAttraction plays an attraction on the guide player: the source
// description when index is nil, otherwise the translated result at index.
func (s *Station) SpeakAttraction(id string, index *int) error {
	text, lang, err := s.attractionText(id, index)
	if err != nil {
		return err
	}
	return s.guide.Speak(text, lang, index)
}

// SpeakAttractionSource plays the attraction text back in the source
// language on the guide player.
func (s *Station) SpeakAttractionSource(ctx context.Context, id string, index *int) error {
	text, lang, err := s.attractionText(id, index)
	if err != nil {
		return err
	}
	return s.SpeakSource(ctx, s.guide, text, lang)
}

func (s *Station) attractionText(id string, index *int) (text, lang string, err error) {
	a, err := s.cfg.Catalog.Catalog().Attraction(id)
	if err != nil {
		return "", "", err
	}
	if index == nil {
		return a.DescriptionLocal, s.cfg.SourceLang, nil
	}
	r, ok := s.attractionTracker(a.ID).Result(*index)
	if !ok {
		return "", "", fmt.Errorf("%w %d", ErrNoResult, *index)
	}
	return r.Text, r.LanguageCode, nil
}

// Close stops background work and detaches the players.
func (s *Station) Close() {
	s.cancel()
	s.debounce.Stop()
	// The platform is gone: no end events will arrive for live utterances.
	s.results.Detach()
	s.guide.Detach()
}

func (s *Station) publish(d events.Data) {
	if s.cfg.Publisher != nil {
		s.cfg.Publisher.Publish(d)
	}
}
