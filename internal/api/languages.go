package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/voxguide/internal/catalog"
)

// Selection holds the target languages translations are produced for.
type Selection interface {
	Selected() []string
	SetSelected(codes []string) []string
}

type LanguagesHandler struct {
	sel    Selection
	source string
}

func NewLanguagesHandler(sel Selection, source string) *LanguagesHandler {
	return &LanguagesHandler{sel: sel, source: source}
}

type languageEntry struct {
	catalog.Language
	Selected bool `json:"selected"`
}

type languagesResponse struct {
	Source    string          `json:"source"`
	Languages []languageEntry `json:"languages"`
}

type selectionBody struct {
	Selected []string `json:"selected"`
	Ignored  []string `json:"ignored,omitempty"`
}

// ListLanguages returns the supported target languages in display order,
// flagged with the current selection.
func (h *LanguagesHandler) ListLanguages(w http.ResponseWriter, r *http.Request) {
	selected := make(map[string]bool)
	for _, c := range h.sel.Selected() {
		selected[c] = true
	}
	langs := catalog.Languages()
	resp := languagesResponse{Source: h.source, Languages: make([]languageEntry, len(langs))}
	for i, l := range langs {
		resp.Languages[i] = languageEntry{Language: l, Selected: selected[l.Code]}
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *LanguagesHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, selectionBody{Selected: h.sel.Selected()})
}

// PutSelection replaces the target selection. Unsupported codes are dropped
// and echoed back in "ignored".
func (h *LanguagesHandler) PutSelection(w http.ResponseWriter, r *http.Request) {
	var body selectionBody
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if body.Selected == nil {
		WriteError(w, http.StatusBadRequest, "selected is required")
		return
	}

	sel := h.sel.SetSelected(body.Selected)
	kept := make(map[string]bool, len(sel))
	for _, c := range sel {
		kept[c] = true
	}
	var ignored []string
	for _, c := range body.Selected {
		if !kept[c] {
			ignored = append(ignored, c)
		}
	}
	WriteJSON(w, http.StatusOK, selectionBody{Selected: sel, Ignored: ignored})
}

// Routes registers language routes on the given router.
func (h *LanguagesHandler) Routes(r chi.Router) {
	r.Get("/languages", h.ListLanguages)
	r.Get("/languages/selected", h.GetSelection)
	r.Put("/languages/selected", h.PutSelection)
}
