package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/voxguide/internal/capture"
	"github.com/snarg/voxguide/internal/catalog"
	"github.com/snarg/voxguide/internal/config"
	"github.com/snarg/voxguide/internal/events"
	"github.com/snarg/voxguide/internal/pipeline"
	"github.com/snarg/voxguide/internal/playback"
	"github.com/snarg/voxguide/internal/translate"
)

type fakeRecognizer struct {
	mu      sync.Mutex
	starts  int
	sink    capture.Sink
	session string
}

func (f *fakeRecognizer) Start(opts capture.Options, sink capture.Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.sink = sink
	f.session = opts.Session
	return nil
}
func (f *fakeRecognizer) Stop() error  { return nil }
func (f *fakeRecognizer) Abort() error { return nil }

type fakeSynth struct {
	mu     sync.Mutex
	spoken []playback.Utterance
}

func (f *fakeSynth) Speak(u playback.Utterance, _ playback.Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, u)
	return nil
}
func (f *fakeSynth) Pause() error  { return nil }
func (f *fakeSynth) Resume() error { return nil }
func (f *fakeSynth) Cancel() error { return nil }

func (f *fakeSynth) utterances() []playback.Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]playback.Utterance(nil), f.spoken...)
}

type fakeProvider struct {
	mu    sync.Mutex
	pairs []string
	fail  map[string]error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Translate(_ context.Context, text, source, target string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairs = append(f.pairs, source+"|"+target)
	if err := f.fail[target]; err != nil {
		return "", err
	}
	return target + ":" + text, nil
}

func (f *fakeProvider) translated(pair string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pairs {
		if p == pair {
			return true
		}
	}
	return false
}

type testEnv struct {
	router   http.Handler
	host     *pipeline.Host
	bus      *events.Bus
	rec      *fakeRecognizer
	synth    *fakeSynth
	provider *fakeProvider
}

func testConfig() *config.Config {
	return &config.Config{
		HTTPAddr:       ":0",
		SourceLanguage: "ta",
		KafkaTopic:     "voxguide.events",
	}
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	store, err := catalog.NewStore("", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	env := &testEnv{
		bus:      events.NewBus(64),
		rec:      &fakeRecognizer{},
		synth:    &fakeSynth{},
		provider: &fakeProvider{fail: map[string]error{}},
	}
	env.host = pipeline.NewHost(context.Background(), pipeline.StationConfig{
		SourceLang:        "ta",
		RecognitionLocale: "ta-IN",
		Voice:             playback.DefaultVoice,
		Debounce:          time.Hour,
		Client:            translate.NewClient(env.provider, "ta", zerolog.Nop()),
		Catalog:           store,
		Log:               zerolog.Nop(),
	}, env.bus, []string{"en", "hi"})
	t.Cleanup(env.host.Close)

	env.router = NewRouter(ServerOptions{
		Config:    cfg,
		Host:      env.host,
		Bus:       env.bus,
		Catalog:   store,
		Version:   "test",
		StartTime: time.Now(),
		Log:       zerolog.Nop(),
	})
	return env
}

func (e *testEnv) attach(caps pipeline.Capabilities) {
	e.host.Attach(pipeline.Platform{
		ID:           "client-1",
		Capabilities: caps,
		Recognizer:   e.rec,
		Synthesizer:  e.synth,
	})
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// expect fails the test when the response status is not want.
func expect(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d: %s", rec.Code, want, rec.Body.String())
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

var fullCaps = pipeline.Capabilities{Recognition: true, Synthesis: true}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(t, "GET", "/api/v1/health", "")
	expect(t, rec, http.StatusOK)
	var resp HealthResponse
	decodeInto(t, rec, &resp)
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	wantChecks := map[string]string{
		"bridge":  "no_client",
		"mqtt":    "not_configured",
		"kafka":   "not_configured",
		"catalog": "bundled",
	}
	for k, want := range wantChecks {
		if got := resp.Checks[k]; got != want {
			t.Errorf("checks[%s] = %q, want %q", k, got, want)
		}
	}
	if resp.Client != nil {
		t.Errorf("client = %+v, want nil", resp.Client)
	}

	env.attach(fullCaps)
	rec = env.do(t, "GET", "/api/v1/health", "")
	resp = HealthResponse{}
	decodeInto(t, rec, &resp)
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Client == nil || resp.Client.ID != "client-1" {
		t.Errorf("client = %+v, want client-1", resp.Client)
	}
}

func TestNoClient(t *testing.T) {
	env := newTestEnv(t, testConfig())
	for _, path := range []string{"/api/v1/capture", "/api/v1/translations", "/api/v1/playback", "/api/v1/guide/playback"} {
		rec := env.do(t, "GET", path, "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, rec.Code)
		}
		if got := decode(t, rec)["error"]; got != pipeline.ErrNoClient.Error() {
			t.Errorf("%s: error = %v", path, got)
		}
	}
}

func TestCatalogRoutes(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(t, "GET", "/api/v1/cities", "")
	expect(t, rec, http.StatusOK)
	body := decode(t, rec)
	if body["total"] != float64(5) {
		t.Errorf("total = %v, want 5", body["total"])
	}
	first := body["cities"].([]any)[0].(map[string]any)
	if _, ok := first["attractions"]; ok {
		t.Error("attractions listed without ?attractions=true")
	}

	rec = env.do(t, "GET", "/api/v1/cities?attractions=true", "")
	expect(t, rec, http.StatusOK)
	first = decode(t, rec)["cities"].([]any)[0].(map[string]any)
	if list, _ := first["attractions"].([]any); len(list) == 0 {
		t.Error("attractions missing with ?attractions=true")
	}

	expect(t, env.do(t, "GET", "/api/v1/cities/nowhere", ""), http.StatusNotFound)

	rec = env.do(t, "GET", "/api/v1/attractions?city=nowhere", "")
	expect(t, rec, http.StatusOK)
	if got := decode(t, rec)["total"]; got != float64(0) {
		t.Errorf("total = %v, want 0", got)
	}

	rec = env.do(t, "GET", "/api/v1/attractions/meenakshi-temple", "")
	expect(t, rec, http.StatusOK)
	if got := decode(t, rec)["id"]; got != "meenakshi-temple" {
		t.Errorf("id = %v", got)
	}

	rec = env.do(t, "GET", "/api/v1/categories", "")
	expect(t, rec, http.StatusOK)
	cats := decode(t, rec)["categories"].([]any)
	if got := cats[0].(map[string]any)["id"]; got != catalog.AllCategories {
		t.Errorf("first category = %v, want %q", got, catalog.AllCategories)
	}

	// Reload needs AUTH_TOKEN.
	expect(t, env.do(t, "POST", "/api/v1/catalog/reload", ""), http.StatusForbidden)
}

func TestLanguages(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(t, "GET", "/api/v1/languages", "")
	expect(t, rec, http.StatusOK)
	var list languagesResponse
	decodeInto(t, rec, &list)
	if list.Source != "ta" {
		t.Errorf("source = %q, want ta", list.Source)
	}
	if len(list.Languages) != 5 {
		t.Fatalf("languages = %d, want 5", len(list.Languages))
	}
	if !list.Languages[0].Selected {
		t.Error("en is a default target")
	}
	if list.Languages[2].Selected {
		t.Error("de is not a default target")
	}

	rec = env.do(t, "PUT", "/api/v1/languages/selected", `{"selected":["ja","xx","ja"]}`)
	expect(t, rec, http.StatusOK)
	var sel selectionBody
	decodeInto(t, rec, &sel)
	if !reflect.DeepEqual(sel.Selected, []string{"ja"}) {
		t.Errorf("selected = %v, want [ja]", sel.Selected)
	}
	if !reflect.DeepEqual(sel.Ignored, []string{"xx"}) {
		t.Errorf("ignored = %v, want [xx]", sel.Ignored)
	}
	if got := env.host.Selected(); !reflect.DeepEqual(got, []string{"ja"}) {
		t.Errorf("host selection = %v, want [ja]", got)
	}

	expect(t, env.do(t, "PUT", "/api/v1/languages/selected", `{bad`), http.StatusBadRequest)
	expect(t, env.do(t, "PUT", "/api/v1/languages/selected", `{}`), http.StatusBadRequest)
}

func TestCaptureRoutes(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.attach(fullCaps)

	expect(t, env.do(t, "POST", "/api/v1/capture/start", ""), http.StatusOK)
	if env.rec.starts != 1 {
		t.Errorf("starts = %d, want 1", env.rec.starts)
	}

	sid := env.rec.session
	env.rec.sink.OnStart(sid)
	env.rec.sink.OnResult(sid, 0, []capture.Result{{Transcript: "வணக்கம்", IsFinal: true}})

	body := decode(t, env.do(t, "GET", "/api/v1/capture", ""))
	if body["finalized"] != "வணக்கம்" {
		t.Errorf("finalized = %v", body["finalized"])
	}
	if body["listening"] != true {
		t.Errorf("listening = %v, want true", body["listening"])
	}

	rec := env.do(t, "GET", "/api/v1/capture/transcript.txt", "")
	expect(t, rec, http.StatusOK)
	if rec.Body.String() != "வணக்கம்" {
		t.Errorf("transcript = %q", rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "transcript.txt") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rec = env.do(t, "POST", "/api/v1/capture/clear", "")
	expect(t, rec, http.StatusOK)
	if got := decode(t, rec)["finalized"]; got != "" {
		t.Errorf("finalized after clear = %v", got)
	}

	expect(t, env.do(t, "POST", "/api/v1/clear", ""), http.StatusNoContent)
}

func TestTranslationRoutes(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.attach(fullCaps)

	rec := env.do(t, "POST", "/api/v1/translations", `{"text":"hello","targets":["hi","en"]}`)
	expect(t, rec, http.StatusOK)
	var snap translate.Snapshot
	decodeInto(t, rec, &snap)
	if len(snap.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(snap.Results))
	}
	if snap.Results[0].LanguageCode != "hi" || snap.Results[1].Text != "en:hello" {
		t.Errorf("results = %+v", snap.Results)
	}

	rec = env.do(t, "GET", "/api/v1/translations.txt", "")
	expect(t, rec, http.StatusOK)
	for _, want := range []string{"Original: hello", "English: en:hello"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("export missing %q:\n%s", want, rec.Body.String())
		}
	}

	t.Run("failure_keeps_results", func(t *testing.T) {
		env.provider.mu.Lock()
		env.provider.fail["de"] = errors.New("quota exceeded")
		env.provider.mu.Unlock()

		rec := env.do(t, "POST", "/api/v1/translations", `{"text":"bye","targets":["en","de"]}`)
		expect(t, rec, http.StatusBadGateway)
		if detail, _ := decode(t, rec)["detail"].(string); !strings.Contains(detail, "German") {
			t.Errorf("detail = %q, want it to name German", detail)
		}

		var snap translate.Snapshot
		decodeInto(t, env.do(t, "GET", "/api/v1/translations", ""), &snap)
		if len(snap.Results) != 2 || snap.SourceText != "hello" {
			t.Errorf("snapshot = %+v, want the previous batch", snap)
		}
		if snap.Error == "" {
			t.Error("error not recorded")
		}
	})

	expect(t, env.do(t, "DELETE", "/api/v1/translations", ""), http.StatusNoContent)
	snap = translate.Snapshot{}
	decodeInto(t, env.do(t, "GET", "/api/v1/translations", ""), &snap)
	if len(snap.Results) != 0 {
		t.Errorf("results after delete = %d", len(snap.Results))
	}
}

func TestPlaybackRoutes(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.attach(fullCaps)
	expect(t, env.do(t, "POST", "/api/v1/translations", `{"text":"hello","targets":["en"]}`), http.StatusOK)

	rec := env.do(t, "POST", "/api/v1/playback/speak", `{"index":0}`)
	expect(t, rec, http.StatusOK)
	body := decode(t, rec)
	if body["phase"] != "playing" {
		t.Errorf("phase = %v, want playing", body["phase"])
	}
	if body["active_index"] != float64(0) {
		t.Errorf("active_index = %v, want 0", body["active_index"])
	}
	if u := env.synth.utterances(); len(u) != 1 || u[0].Text != "en:hello" {
		t.Fatalf("utterances = %+v", u)
	}

	rec = env.do(t, "POST", "/api/v1/playback/pause", "")
	expect(t, rec, http.StatusOK)
	if got := decode(t, rec)["phase"]; got != "paused" {
		t.Errorf("phase = %v, want paused", got)
	}

	expect(t, env.do(t, "POST", "/api/v1/guide/playback/pause", ""), http.StatusConflict)
	expect(t, env.do(t, "POST", "/api/v1/playback/speak", `{"index":7}`), http.StatusBadRequest)
	expect(t, env.do(t, "POST", "/api/v1/playback/speak", `{}`), http.StatusBadRequest)

	expect(t, env.do(t, "POST", "/api/v1/playback/speak-source", `{"text":"Hello","lang":"en"}`), http.StatusOK)
	u := env.synth.utterances()
	if got := u[len(u)-1].Lang; got != "ta" {
		t.Errorf("lang = %q, want ta", got)
	}
	if !env.provider.translated("en|ta") {
		t.Error("speak-source did not translate en to ta")
	}

	rec = env.do(t, "POST", "/api/v1/playback/stop", "")
	expect(t, rec, http.StatusOK)
	if got := decode(t, rec)["phase"]; got != "idle" {
		t.Errorf("phase = %v, want idle", got)
	}
}

func TestAttractionRoutes(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.attach(fullCaps)

	rec := env.do(t, "POST", "/api/v1/attractions/meenakshi-temple/translations", `{"targets":["en"]}`)
	expect(t, rec, http.StatusOK)
	var snap translate.Snapshot
	decodeInto(t, rec, &snap)
	if len(snap.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(snap.Results))
	}

	expect(t, env.do(t, "GET", "/api/v1/attractions/meenakshi-temple/translations", ""), http.StatusOK)

	rec = env.do(t, "POST", "/api/v1/attractions/meenakshi-temple/speak", `{"index":0}`)
	expect(t, rec, http.StatusOK)
	body := decode(t, rec)
	if body["player"] != "guide" || body["phase"] != "playing" {
		t.Errorf("state = %v", body)
	}

	lastLang := func() string {
		u := env.synth.utterances()
		return u[len(u)-1].Lang
	}

	// No body speaks the source description.
	expect(t, env.do(t, "POST", "/api/v1/attractions/meenakshi-temple/speak", ""), http.StatusOK)
	if got := lastLang(); got != "ta" {
		t.Errorf("lang = %q, want ta", got)
	}

	expect(t, env.do(t, "POST", "/api/v1/attractions/meenakshi-temple/speak?index=0", ""), http.StatusOK)
	if got := lastLang(); got != "en" {
		t.Errorf("lang = %q, want en", got)
	}

	expect(t, env.do(t, "POST", "/api/v1/attractions/meenakshi-temple/speak-source", `{"index":0}`), http.StatusOK)
	expect(t, env.do(t, "POST", "/api/v1/attractions/nowhere/speak", ""), http.StatusNotFound)
	expect(t, env.do(t, "GET", "/api/v1/attractions/nowhere/translations", ""), http.StatusNotFound)
}

func TestUnsupportedPlatform(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.attach(pipeline.Capabilities{})

	expect(t, env.do(t, "POST", "/api/v1/capture/start", ""), http.StatusNotImplemented)
	expect(t, env.do(t, "POST", "/api/v1/playback/speak", `{"text":"hi","lang":"en"}`), http.StatusNotImplemented)

	rec := env.do(t, "GET", "/api/v1/playback", "")
	expect(t, rec, http.StatusOK)
	if got := decode(t, rec)["supported"]; got != false {
		t.Errorf("supported = %v, want false", got)
	}
}

func TestAuth(t *testing.T) {
	cfg := testConfig()
	cfg.AuthToken = "secret"
	env := newTestEnv(t, cfg)

	expect(t, env.do(t, "GET", "/api/v1/health", ""), http.StatusOK)
	expect(t, env.do(t, "GET", "/api/v1/cities", ""), http.StatusUnauthorized)
	expect(t, env.do(t, "GET", "/api/v1/cities?token=secret", ""), http.StatusOK)
	// The bundled catalog cannot reload.
	expect(t, env.do(t, "POST", "/api/v1/catalog/reload?token=secret", ""), http.StatusConflict)
}

func TestRateLimitedControl(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 1
	env := newTestEnv(t, cfg)

	expect(t, env.do(t, "GET", "/api/v1/languages", ""), http.StatusOK)
	expect(t, env.do(t, "GET", "/api/v1/languages", ""), http.StatusTooManyRequests)
	// Catalog reads are not limited.
	expect(t, env.do(t, "GET", "/api/v1/cities", ""), http.StatusOK)
}

func TestStreamEvents(t *testing.T) {
	env := newTestEnv(t, testConfig())
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	env.bus.Publish(events.Data{Type: events.TypeSelection, Payload: []string{"en"}})
	env.bus.Publish(events.Data{Type: events.TypeSelection, Payload: []string{"hi"}})
	backlog := env.bus.ReplaySince("", events.Filter{})
	if len(backlog) != 2 {
		t.Fatalf("backlog = %d, want 2", len(backlog))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/v1/events/stream?types=selection", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Last-Event-ID", backlog[0].ID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	readEvent := func() (name string, data map[string]any) {
		t.Helper()
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data); err != nil {
					t.Fatalf("decode data: %v", err)
				}
			case line == "" && name != "":
				return name, data
			}
		}
	}

	// Replay delivers only what came after Last-Event-ID.
	name, data := readEvent()
	if name != "selection" || data["id"] != backlog[1].ID {
		t.Errorf("replayed %s %v, want selection %s", name, data["id"], backlog[1].ID)
	}

	deadline := time.Now().Add(time.Second)
	for env.bus.SubscriberCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	env.bus.Publish(events.Data{Type: events.TypeCapture, Payload: map[string]string{"ignored": "yes"}})
	env.bus.Publish(events.Data{Type: events.TypeSelection, Payload: []string{"ja"}})

	name, data = readEvent()
	if name != "selection" {
		t.Errorf("event = %q, want selection", name)
	}
	if !reflect.DeepEqual(data["data"], []any{"ja"}) {
		t.Errorf("data = %v, want [ja]", data["data"])
	}
}
