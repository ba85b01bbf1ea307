package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type TranslationsHandler struct {
	src StationSource
}

func NewTranslationsHandler(src StationSource) *TranslationsHandler {
	return &TranslationsHandler{src: src}
}

type translateRequest struct {
	Text    string   `json:"text"`
	Targets []string `json:"targets"`
}

func (h *TranslationsHandler) GetTranslations(w http.ResponseWriter, r *http.Request) {
	st := station(w, h.src)
	if st == nil {
		return
	}
	WriteJSON(w, http.StatusOK, st.Translations())
}

// Translate runs a batch immediately. Text defaults to the finalized
// transcript and targets to the current selection.
func (h *TranslationsHandler) Translate(w http.ResponseWriter, r *http.Request) {
	st := station(w, h.src)
	if st == nil {
		return
	}
	var req translateRequest
	if err := DecodeOptionalJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := st.TranslateNow(r.Context(), req.Text, req.Targets); err != nil {
		WritePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st.Translations())
}

func (h *TranslationsHandler) ClearTranslations(w http.ResponseWriter, r *http.Request) {
	st := station(w, h.src)
	if st == nil {
		return
	}
	st.ClearTranslations()
	w.WriteHeader(http.StatusNoContent)
}

// Download returns the source text and every result as plain text.
func (h *TranslationsHandler) Download(w http.ResponseWriter, r *http.Request) {
	st := station(w, h.src)
	if st == nil {
		return
	}
	snap := st.Translations()
	var b strings.Builder
	if snap.SourceText != "" {
		fmt.Fprintf(&b, "Original: %s\n\n", snap.SourceText)
	}
	for _, res := range snap.Results {
		fmt.Fprintf(&b, "%s: %s\n", res.LanguageName, res.Text)
	}
	WriteText(w, "translations.txt", b.String())
}

// Routes registers translation routes on the given router.
func (h *TranslationsHandler) Routes(r chi.Router) {
	r.Get("/translations", h.GetTranslations)
	r.Post("/translations", h.Translate)
	r.Delete("/translations", h.ClearTranslations)
	r.Get("/translations.txt", h.Download)
}
