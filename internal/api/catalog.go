package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/voxguide/internal/catalog"
)

type CatalogHandler struct {
	store *catalog.Store
}

func NewCatalogHandler(store *catalog.Store) *CatalogHandler {
	return &CatalogHandler{store: store}
}

type cityListResponse struct {
	Cities []cityEntry `json:"cities"`
	Total  int         `json:"total"`
}

// cityEntry is a city plus its attraction count. Attractions are only
// included when ?attractions=true.
type cityEntry struct {
	ID               string               `json:"id"`
	Name             string               `json:"name"`
	NameLocal        string               `json:"name_local"`
	Description      string               `json:"description"`
	DescriptionLocal string               `json:"description_local"`
	AttractionCount  int                  `json:"attraction_count"`
	Attractions      []catalog.Attraction `json:"attractions,omitempty"`
}

type attractionListResponse struct {
	Attractions []catalog.Attraction `json:"attractions"`
	Total       int                  `json:"total"`
}

func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"categories": h.store.Catalog().Categories()})
}

func (h *CatalogHandler) ListCities(w http.ResponseWriter, r *http.Request) {
	cities := h.store.Catalog().Cities()
	withAttractions, _ := QueryBool(r, "attractions")
	resp := cityListResponse{Cities: make([]cityEntry, len(cities)), Total: len(cities)}
	for i, c := range cities {
		resp.Cities[i] = cityEntry{
			ID:               c.ID,
			Name:             c.Name,
			NameLocal:        c.NameLocal,
			Description:      c.Description,
			DescriptionLocal: c.DescriptionLocal,
			AttractionCount:  len(c.Attractions),
		}
		if withAttractions {
			resp.Cities[i].Attractions = c.Attractions
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *CatalogHandler) GetCity(w http.ResponseWriter, r *http.Request) {
	city, err := h.store.Catalog().City(chi.URLParam(r, "id"))
	if err != nil {
		WritePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, city)
}

// ListAttractions filters by ?city= and ?category=. An unknown city yields an
// empty list.
func (h *CatalogHandler) ListAttractions(w http.ResponseWriter, r *http.Request) {
	city, _ := QueryString(r, "city")
	category, _ := QueryString(r, "category")
	list := h.store.Catalog().Attractions(city, category)
	WriteJSON(w, http.StatusOK, attractionListResponse{Attractions: list, Total: len(list)})
}

func (h *CatalogHandler) GetAttraction(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.Catalog().Attraction(chi.URLParam(r, "id"))
	if err != nil {
		WritePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, a)
}

// Reload re-reads the catalog override file.
func (h *CatalogHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.store.Path() == "" {
		WriteError(w, http.StatusConflict, "catalog is bundled; set CATALOG_FILE to enable reloads")
		return
	}
	if err := h.store.Reload(); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("catalog reload failed")
		WriteErrorDetail(w, http.StatusUnprocessableEntity, "catalog reload failed", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"reloads": h.store.Reloads(),
		"cities":  len(h.store.Catalog().Cities()),
	})
}

// Routes registers the public catalog routes on the given router.
func (h *CatalogHandler) Routes(r chi.Router) {
	r.Get("/categories", h.ListCategories)
	r.Get("/cities", h.ListCities)
	r.Get("/cities/{id}", h.GetCity)
	r.Get("/attractions", h.ListAttractions)
	r.Get("/attractions/{id}", h.GetAttraction)
}
