package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AttractionsHandler serves per-attraction translation and guide playback.
type AttractionsHandler struct {
	src StationSource
}

func NewAttractionsHandler(src StationSource) *AttractionsHandler {
	return &AttractionsHandler{src: src}
}

type attractionTranslateRequest struct {
	Targets []string `json:"targets"`
}

// attractionSpeakRequest selects a translated result; no index means the
// source-language description.
type attractionSpeakRequest struct {
	Index *int `json:"index"`
}

func (h *AttractionsHandler) GetTranslations(w http.ResponseWriter, r *http.Request) {
	st := station(w, h.src)
	if st == nil {
		return
	}
	snap, err := st.AttractionTranslations(chi.URLParam(r, "id"))
	if err != nil {
		WritePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// Translate translates the attraction description into the requested
// targets, defaulting to the current selection.
func (h *AttractionsHandler) Translate(w http.ResponseWriter, r *http.Request) {
	st := station(w, h.src)
	if st == nil {
		return
	}
	var req attractionTranslateRequest
	if err := DecodeOptionalJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if targets := QueryStringList(r, "targets"); targets != nil && req.Targets == nil {
		req.Targets = targets
	}
	snap, err := st.TranslateAttraction(r.Context(), chi.URLParam(r, "id"), req.Targets)
	if err != nil {
		WritePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

func (h *AttractionsHandler) Speak(w http.ResponseWriter, r *http.Request) {
	st := station(w, h.src)
	if st == nil {
		return
	}
	req, ok := decodeSpeakRequest(w, r)
	if !ok {
		return
	}
	if err := st.SpeakAttraction(chi.URLParam(r, "id"), req.Index); err != nil {
		WritePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st.Guide().State())
}

// SpeakSource plays the attraction text back in the source language.
func (h *AttractionsHandler) SpeakSource(w http.ResponseWriter, r *http.Request) {
	st := station(w, h.src)
	if st == nil {
		return
	}
	req, ok := decodeSpeakRequest(w, r)
	if !ok {
		return
	}
	if err := st.SpeakAttractionSource(r.Context(), chi.URLParam(r, "id"), req.Index); err != nil {
		WritePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st.Guide().State())
}

// decodeSpeakRequest reads the optional body; ?index= is accepted when the
// body does not name one.
func decodeSpeakRequest(w http.ResponseWriter, r *http.Request) (attractionSpeakRequest, bool) {
	var req attractionSpeakRequest
	if err := DecodeOptionalJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return req, false
	}
	if n, ok := QueryInt(r, "index"); ok && req.Index == nil {
		req.Index = &n
	}
	return req, true
}

// Routes registers attraction pipeline routes on the given router.
func (h *AttractionsHandler) Routes(r chi.Router) {
	r.Get("/attractions/{id}/translations", h.GetTranslations)
	r.Post("/attractions/{id}/translations", h.Translate)
	r.Post("/attractions/{id}/speak", h.Speak)
	r.Post("/attractions/{id}/speak-source", h.SpeakSource)
}
