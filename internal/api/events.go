package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/voxguide/internal/events"
)

const sseKeepalive = 15 * time.Second

type EventsHandler struct {
	bus *events.Bus
}

func NewEventsHandler(bus *events.Bus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

// StreamEvents opens an SSE connection and pushes filtered pipeline events.
//
// Query params: types (comma list of "type" or "type:subtype"), attractions
// (comma list of attraction ids).
func (h *EventsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		WriteError(w, http.StatusServiceUnavailable, "event streaming not available")
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut long-lived streams.
	_ = rc.SetWriteDeadline(time.Time{})

	filter := events.Filter{
		Types:       QueryStringList(r, "types"),
		Attractions: QueryStringListAliased(r, "attractions", "attraction"),
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Subscribe before replaying so nothing published in between is lost.
	ch, cancel := h.bus.Subscribe(filter)
	defer cancel()

	replayed := make(map[string]bool)
	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		for _, e := range h.bus.ReplaySince(lastEventID, filter) {
			writeEvent(w, e)
			replayed[e.ID] = true
		}
	}
	if err := rc.Flush(); err != nil {
		return
	}

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	log := hlog.FromRequest(r)
	log.Info().Strs("types", filter.Types).Msg("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			log.Info().Msg("SSE client disconnected")
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if replayed[e.ID] {
				delete(replayed, e.ID)
				continue
			}
			writeEvent(w, e)
			if err := rc.Flush(); err != nil {
				return
			}
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// writeEvent sends the whole envelope as data so clients see the attraction
// id and timestamp alongside the payload.
func writeEvent(w http.ResponseWriter, e events.Event) {
	name := e.Type
	if e.SubType != "" {
		name = e.Type + ":" + e.SubType
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, name, data)
}

// Routes registers event routes on the given router.
func (h *EventsHandler) Routes(r chi.Router) {
	r.Get("/events/stream", h.StreamEvents)
}
