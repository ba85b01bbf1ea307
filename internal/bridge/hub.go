package bridge

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/snarg/voxguide/internal/events"
	"github.com/snarg/voxguide/internal/metrics"
	"github.com/snarg/voxguide/internal/pipeline"
)

const defaultHelloTimeout = 10 * time.Second

// Attacher receives platform clients. pipeline.Host implements it.
type Attacher interface {
	Attach(p pipeline.Platform) *pipeline.Station
	Detach(id string)
}

// Hub accepts bridge connections. Only one client is attached at a time; a
// new hello replaces the previous client.
type Hub struct {
	attacher     Attacher
	pub          pipeline.Publisher
	log          zerolog.Logger
	upgrader     websocket.Upgrader
	helloTimeout time.Duration

	mu      sync.Mutex
	current *Conn
}

// NewHub creates a hub. origins lists allowed Origin header values; empty or
// "*" allows any origin.
func NewHub(a Attacher, pub pipeline.Publisher, origins []string, log zerolog.Logger) *Hub {
	h := &Hub{
		attacher:     a,
		pub:          pub,
		log:          log,
		helloTimeout: defaultHelloTimeout,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(origins),
	}
	return h
}

func originChecker(origins []string) func(*http.Request) bool {
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.log.Warn().Err(err).Msg("bridge upgrade failed")
		return
	}

	id := uuid.NewString()
	log := h.log.With().Str("client_id", id).Str("remote", r.RemoteAddr).Logger()
	c := newConn(id, ws, log)
	defer c.Close("bye")

	hello, err := c.readHello(h.helloTimeout)
	if err != nil {
		log.Warn().Err(err).Msg("bridge handshake failed")
		return
	}
	caps := *hello.Capabilities
	metrics.BridgeConnectionsTotal.Inc()

	h.mu.Lock()
	prev := h.current
	h.current = c
	h.mu.Unlock()
	if prev != nil {
		prev.Close("replaced by a newer client")
	}

	p := pipeline.Platform{ID: id, Capabilities: caps}
	if caps.Recognition {
		p.Recognizer = c
	}
	if caps.Synthesis {
		p.Synthesizer = c
	}
	h.attacher.Attach(p)
	h.publish("connected", map[string]any{"client_id": id, "capabilities": caps})

	if err := c.send(Message{Type: TypeWelcome, ClientID: id}); err != nil {
		log.Warn().Err(err).Msg("send welcome")
	}

	go c.pingLoop()
	c.readLoop()

	h.mu.Lock()
	if h.current == c {
		h.current = nil
	}
	h.mu.Unlock()
	h.attacher.Detach(id)
	h.publish("disconnected", map[string]any{"client_id": id})
}

// Connected reports whether a client is attached.
func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil
}

// Close disconnects the current client.
func (h *Hub) Close() {
	h.mu.Lock()
	c := h.current
	h.current = nil
	h.mu.Unlock()
	if c != nil {
		c.Close("server shutting down")
	}
}

func (h *Hub) publish(sub string, payload any) {
	if h.pub != nil {
		h.pub.Publish(events.Data{Type: events.TypeBridge, SubType: sub, Payload: payload})
	}
}
