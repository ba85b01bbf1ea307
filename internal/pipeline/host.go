package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/snarg/voxguide/internal/catalog"
	"github.com/snarg/voxguide/internal/events"
)

// Host owns the station for the attached platform client and the target
// language selection, which survives reconnects.
type Host struct {
	ctx context.Context
	cfg StationConfig
	bus *events.Bus
	log zerolog.Logger

	mu       sync.RWMutex
	station  *Station
	selected []string
}

// NewHost creates a host with the initial target selection. Unsupported codes
// are dropped.
func NewHost(ctx context.Context, cfg StationConfig, bus *events.Bus, defaultTargets []string) *Host {
	if cfg.Publisher == nil && bus != nil {
		cfg.Publisher = bus
	}
	return &Host{
		ctx:      ctx,
		cfg:      cfg,
		bus:      bus,
		log:      cfg.Log.With().Str("component", "pipeline").Logger(),
		selected: catalog.SupportedCodes(defaultTargets),
	}
}

// Attach replaces any current station with a new one for p.
func (h *Host) Attach(p Platform) *Station {
	st := NewStation(h.ctx, p, h.cfg, h.Selected)

	h.mu.Lock()
	prev := h.station
	h.station = st
	h.mu.Unlock()

	if prev != nil {
		prev.Close()
		h.log.Info().Str("client_id", prev.ID()).Msg("platform client replaced")
	}
	h.log.Info().
		Str("client_id", p.ID).
		Bool("recognition", p.Capabilities.Recognition).
		Bool("synthesis", p.Capabilities.Synthesis).
		Msg("platform client attached")
	return st
}

// Detach closes the station for the client id if it is still current.
func (h *Host) Detach(id string) {
	h.mu.Lock()
	st := h.station
	if st == nil || st.ID() != id {
		h.mu.Unlock()
		return
	}
	h.station = nil
	h.mu.Unlock()

	st.Close()
	h.log.Info().Str("client_id", id).Msg("platform client detached")
}

// Station returns the current station or ErrNoClient.
func (h *Host) Station() (*Station, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.station == nil {
		return nil, ErrNoClient
	}
	return h.station, nil
}

// Selected returns a copy of the target language codes.
func (h *Host) Selected() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string{}, h.selected...)
}

// SetSelected replaces the target selection with the supported subset of
// codes and re-arms the current station's debounce.
func (h *Host) SetSelected(codes []string) []string {
	sel := catalog.SupportedCodes(codes)

	h.mu.Lock()
	h.selected = sel
	st := h.station
	h.mu.Unlock()

	if h.cfg.Publisher != nil {
		h.cfg.Publisher.Publish(events.Data{Type: events.TypeSelection, Payload: sel})
	}
	if st != nil {
		st.Retrigger()
	}
	return append([]string{}, sel...)
}

// Close tears down the current station.
func (h *Host) Close() {
	h.mu.Lock()
	st := h.station
	h.station = nil
	h.mu.Unlock()
	if st != nil {
		st.Close()
	}
}

// SSESubscriberCount, BridgeConnected, TranslationsInFlight and
// CatalogReloads implement metrics.LiveStats.
func (h *Host) SSESubscriberCount() int {
	if h.bus == nil {
		return 0
	}
	return h.bus.SubscriberCount()
}

func (h *Host) BridgeConnected() bool {
	_, err := h.Station()
	return err == nil
}

func (h *Host) TranslationsInFlight() int {
	st, err := h.Station()
	if err != nil {
		return 0
	}
	return st.InFlight()
}

func (h *Host) CatalogReloads() int64 {
	if h.cfg.Catalog == nil {
		return 0
	}
	return h.cfg.Catalog.Reloads()
}
