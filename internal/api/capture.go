package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/voxguide/internal/capture"
	"github.com/snarg/voxguide/internal/pipeline"
)

// StationSource returns the station for the attached platform client, or
// pipeline.ErrNoClient.
type StationSource interface {
	Station() (*pipeline.Station, error)
}

// station writes the error response and returns nil when no client is
// attached.
func station(w http.ResponseWriter, src StationSource) *pipeline.Station {
	st, err := src.Station()
	if err != nil {
		WritePipelineError(w, err)
		return nil
	}
	return st
}

type CaptureHandler struct {
	src StationSource
}

func NewCaptureHandler(src StationSource) *CaptureHandler {
	return &CaptureHandler{src: src}
}

func (h *CaptureHandler) GetCapture(w http.ResponseWriter, r *http.Request) {
	st := station(w, h.src)
	if st == nil {
		return
	}
	WriteJSON(w, http.StatusOK, st.Capture().State())
}

func (h *CaptureHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.do(w, func(c capture.Capture) error { return c.Start() })
}

func (h *CaptureHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.do(w, func(c capture.Capture) error { return c.Stop() })
}

func (h *CaptureHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.do(w, func(c capture.Capture) error {
		if !c.Supported() {
			return capture.ErrUnsupported
		}
		c.Clear()
		return nil
	})
}

func (h *CaptureHandler) do(w http.ResponseWriter, fn func(capture.Capture) error) {
	st := station(w, h.src)
	if st == nil {
		return
	}
	c := st.Capture()
	if err := fn(c); err != nil {
		WritePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, c.State())
}

// Transcript downloads the finalized transcript as plain text.
func (h *CaptureHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	st := station(w, h.src)
	if st == nil {
		return
	}
	WriteText(w, "transcript.txt", st.Capture().State().Finalized)
}

// ClearAll resets the transcript, the translations and the pending debounce.
func (h *CaptureHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	st := station(w, h.src)
	if st == nil {
		return
	}
	st.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

// Routes registers capture routes on the given router.
func (h *CaptureHandler) Routes(r chi.Router) {
	r.Get("/capture", h.GetCapture)
	r.Post("/capture/start", h.Start)
	r.Post("/capture/stop", h.Stop)
	r.Post("/capture/clear", h.Clear)
	r.Get("/capture/transcript.txt", h.Transcript)
	r.Post("/clear", h.ClearAll)
}
