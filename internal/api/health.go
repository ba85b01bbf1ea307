package api

import (
	"encoding/json"
	"net/http"
	"time"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	Translator    string            `json:"translator,omitempty"`
	Client        *ClientStatus     `json:"client,omitempty"`
}

// ClientStatus describes the attached platform client.
type ClientStatus struct {
	ID          string `json:"id"`
	Recognition bool   `json:"recognition"`
	Synthesis   bool   `json:"synthesis"`
}

// BrokerStatus is satisfied by the MQTT client.
type BrokerStatus interface {
	IsConnected() bool
}

// HealthDeps are the optional components inspected by the health check.
// Nil fields report not_configured.
type HealthDeps struct {
	Host        StationSource
	MQTT        BrokerStatus
	KafkaTopic  string
	CatalogPath string
	Translator  string
}

type HealthHandler struct {
	deps      HealthDeps
	version   string
	startTime time.Time
}

func NewHealthHandler(deps HealthDeps, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		deps:      deps,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"

	// Platform bridge: the service is up but cannot capture or speak
	// without a client.
	var client *ClientStatus
	if h.deps.Host != nil {
		if st, err := h.deps.Host.Station(); err == nil {
			checks["bridge"] = "ok"
			caps := st.Capabilities()
			client = &ClientStatus{ID: st.ID(), Recognition: caps.Recognition, Synthesis: caps.Synthesis}
		} else {
			checks["bridge"] = "no_client"
			status = "degraded"
		}
	}

	if h.deps.MQTT != nil {
		if h.deps.MQTT.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			status = "degraded"
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	if h.deps.KafkaTopic != "" {
		checks["kafka"] = "configured"
	} else {
		checks["kafka"] = "not_configured"
	}

	if h.deps.CatalogPath != "" {
		checks["catalog"] = "file"
	} else {
		checks["catalog"] = "bundled"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
		Translator:    h.deps.Translator,
		Client:        client,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
