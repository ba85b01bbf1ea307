package translate

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/voxguide/internal/metrics"
)

// ErrSuperseded is returned by Run when a newer batch or a Clear replaced the
// batch before it completed. Its outcome is discarded.
var ErrSuperseded = errors.New("translation batch superseded")

// Snapshot is the observable translation state.
type Snapshot struct {
	BatchID    string   `json:"batch_id,omitempty"`
	SourceText string   `json:"source_text,omitempty"`
	Results    []Result `json:"results"`
	InFlight   bool     `json:"in_flight"`
	Error      string   `json:"error,omitempty"`
}

// Tracker owns the latest result list. Only the most recently issued batch may
// change it.
type Tracker struct {
	client   *Client
	onChange func(Snapshot)
	log      zerolog.Logger

	mu         sync.Mutex
	gen        uint64
	cancel     context.CancelFunc
	batchID    string
	sourceText string
	results    []Result
	inFlight   bool
	lastErr    string
}

// NewTracker creates an empty tracker. onChange may be nil.
func NewTracker(client *Client, onChange func(Snapshot), log zerolog.Logger) *Tracker {
	return &Tracker{client: client, onChange: onChange, log: log}
}

// Run translates text into targets and blocks until the batch settles. Blank
// text or an empty target list is a no-op. On success the result list is
// replaced; on failure the previous list is kept and the error is recorded.
// Starting a batch cancels any batch still in flight.
func (t *Tracker) Run(ctx context.Context, text string, targets []string) error {
	if strings.TrimSpace(text) == "" || len(targets) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	t.gen++
	gen := t.gen
	if t.cancel != nil {
		t.cancel()
	}
	t.cancel = cancel
	t.batchID = uuid.NewString()
	t.inFlight = true
	t.lastErr = ""
	batchID := t.batchID
	t.mu.Unlock()
	t.notify()

	log := t.log.With().Str("batch_id", batchID).Int("targets", len(targets)).Logger()
	log.Debug().Msg("translation batch started")

	results, err := t.client.Translate(ctx, text, targets)

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		metrics.TranslationBatchesTotal.WithLabelValues("superseded").Inc()
		log.Debug().Msg("translation batch superseded")
		return ErrSuperseded
	}
	t.inFlight = false
	t.cancel = nil
	if err != nil {
		t.lastErr = err.Error()
	} else {
		t.results = results
		t.sourceText = text
	}
	t.mu.Unlock()

	if err != nil {
		metrics.TranslationBatchesTotal.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("translation batch failed")
	} else {
		metrics.TranslationBatchesTotal.WithLabelValues("ok").Inc()
		log.Info().Msg("translation batch complete")
	}
	t.notify()
	return err
}

// Clear empties the results and error and abandons any batch in flight.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.batchID = ""
	t.sourceText = ""
	t.results = nil
	t.inFlight = false
	t.lastErr = ""
	t.mu.Unlock()
	t.notify()
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	results := make([]Result, len(t.results))
	copy(results, t.results)
	return Snapshot{
		BatchID:    t.batchID,
		SourceText: t.sourceText,
		Results:    results,
		InFlight:   t.inFlight,
		Error:      t.lastErr,
	}
}

// Result returns the result at index i.
func (t *Tracker) Result(i int) (Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.results) {
		return Result{}, false
	}
	return t.results[i], true
}

// InFlight reports whether a batch is awaiting the service.
func (t *Tracker) InFlight() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}

func (t *Tracker) notify() {
	if t.onChange != nil {
		t.onChange(t.Snapshot())
	}
}
