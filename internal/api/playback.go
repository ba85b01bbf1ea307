package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/voxguide/internal/pipeline"
	"github.com/snarg/voxguide/internal/playback"
)

// PlaybackHandler serves the results player and the attraction guide player.
type PlaybackHandler struct {
	src StationSource
}

func NewPlaybackHandler(src StationSource) *PlaybackHandler {
	return &PlaybackHandler{src: src}
}

// speakRequest selects a translation result by index, or gives the text and
// language to speak directly.
type speakRequest struct {
	Index *int   `json:"index"`
	Text  string `json:"text"`
	Lang  string `json:"lang"`
}

func (req speakRequest) validate() string {
	if req.Index != nil {
		return ""
	}
	if strings.TrimSpace(req.Text) == "" || req.Lang == "" {
		return "index, or text and lang, are required"
	}
	return ""
}

func resultsPlayer(st *pipeline.Station) playback.Playback { return st.Results() }
func guidePlayer(st *pipeline.Station) playback.Playback   { return st.Guide() }

func (h *PlaybackHandler) state(pick func(*pipeline.Station) playback.Playback) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := station(w, h.src)
		if st == nil {
			return
		}
		WriteJSON(w, http.StatusOK, pick(st).State())
	}
}

func (h *PlaybackHandler) control(pick func(*pipeline.Station) playback.Playback, fn func(playback.Playback) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := station(w, h.src)
		if st == nil {
			return
		}
		p := pick(st)
		if err := fn(p); err != nil {
			WritePipelineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, p.State())
	}
}

// Speak plays a translation result or arbitrary text on the results player.
func (h *PlaybackHandler) Speak(w http.ResponseWriter, r *http.Request) {
	st := station(w, h.src)
	if st == nil {
		return
	}
	var req speakRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		WriteError(w, http.StatusBadRequest, msg)
		return
	}

	var err error
	if req.Index != nil {
		err = st.SpeakResult(*req.Index)
	} else {
		err = st.SpeakText(req.Text, req.Lang)
	}
	if err != nil {
		WritePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st.Results().State())
}

// SpeakSource speaks a result (or the given text) back in the source
// language. Nothing plays if the translation to the source fails.
func (h *PlaybackHandler) SpeakSource(w http.ResponseWriter, r *http.Request) {
	st := station(w, h.src)
	if st == nil {
		return
	}
	var req speakRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		WriteError(w, http.StatusBadRequest, msg)
		return
	}

	var err error
	if req.Index != nil {
		err = st.SpeakResultSource(r.Context(), *req.Index)
	} else {
		err = st.SpeakSource(r.Context(), st.Results(), req.Text, req.Lang)
	}
	if err != nil {
		WritePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st.Results().State())
}

// Routes registers results and guide playback routes on the given router.
func (h *PlaybackHandler) Routes(r chi.Router) {
	r.Get("/playback", h.state(resultsPlayer))
	r.Post("/playback/speak", h.Speak)
	r.Post("/playback/speak-source", h.SpeakSource)
	r.Post("/playback/pause", h.control(resultsPlayer, playback.Playback.Pause))
	r.Post("/playback/resume", h.control(resultsPlayer, playback.Playback.Resume))
	r.Post("/playback/stop", h.control(resultsPlayer, playback.Playback.Stop))

	r.Get("/guide/playback", h.state(guidePlayer))
	r.Post("/guide/playback/pause", h.control(guidePlayer, playback.Playback.Pause))
	r.Post("/guide/playback/resume", h.control(guidePlayer, playback.Playback.Resume))
	r.Post("/guide/playback/stop", h.control(guidePlayer, playback.Playback.Stop))
}
