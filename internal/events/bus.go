// Package events fans pipeline state changes out to SSE subscribers and
// external relays.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snarg/voxguide/internal/metrics"
)

// Event types published by the pipeline.
const (
	TypeCapture     = "capture"     // transcript or listening state changed
	TypeTranslation = "translation" // result list, in-flight flag or error changed
	TypePlayback    = "playback"    // SubType is the player name
	TypeSelection   = "selection"   // target languages changed
	TypeBridge      = "bridge"      // SubType "connected" or "disconnected"
	TypeCatalog     = "catalog"     // SubType "reloaded"
	TypeAttraction  = "attraction"  // per-attraction translation state
)

// Event is one published state change.
type Event struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	SubType      string          `json:"sub_type,omitempty"`
	Timestamp    string          `json:"timestamp"`
	AttractionID string          `json:"attraction_id,omitempty"`
	Data         json.RawMessage `json:"data"`
}

// Filter selects events. Empty fields match everything.
type Filter struct {
	// Types holds "type" or "type:subtype" entries.
	Types       []string
	Attractions []string
}

// Data holds the fields needed to publish an event.
type Data struct {
	Type         string
	SubType      string
	AttractionID string
	Payload      any
}

// Bus provides pub-sub event distribution with a ring buffer for replay on
// reconnect.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]subscriber
	nextID      uint64
	seq         atomic.Uint64

	ring     []Event
	ringSize int
	ringHead int
	ringMu   sync.RWMutex
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

// NewBus creates a bus with the given ring buffer size.
func NewBus(ringSize int) *Bus {
	if ringSize <= 0 {
		ringSize = 1
	}
	return &Bus{
		subscribers: make(map[uint64]subscriber),
		ring:        make([]Event, ringSize),
		ringSize:    ringSize,
	}
}

// Subscribe registers a subscriber and returns its channel and a cancel
// function. Slow subscribers miss events rather than block publishers.
func (b *Bus) Subscribe(filter Filter) (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subscribers[id] = subscriber{ch: ch, filter: filter}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// ReplaySince returns buffered events after lastEventID. If the id is no
// longer buffered every buffered event is returned.
func (b *Bus) ReplaySince(lastEventID string, filter Filter) []Event {
	b.ringMu.RLock()
	defer b.ringMu.RUnlock()

	var all, after []Event
	found := lastEventID == ""
	for i := 0; i < b.ringSize; i++ {
		e := b.ring[(b.ringHead+i)%b.ringSize]
		if e.ID == "" {
			continue
		}
		match := Matches(e, filter)
		if match {
			all = append(all, e)
		}
		if !found {
			found = e.ID == lastEventID
			continue
		}
		if match {
			after = append(after, e)
		}
	}
	if !found {
		return all
	}
	return after
}

// Publish sends an event to all matching subscribers and adds it to the ring
// buffer. Payloads that fail to marshal are dropped.
func (b *Bus) Publish(d Data) {
	data, err := json.Marshal(d.Payload)
	if err != nil {
		return
	}

	now := time.Now()
	e := Event{
		ID:           fmt.Sprintf("%d-%d", now.UnixMilli(), b.seq.Add(1)),
		Type:         d.Type,
		SubType:      d.SubType,
		Timestamp:    now.UTC().Format(time.RFC3339Nano),
		AttractionID: d.AttractionID,
		Data:         data,
	}

	b.ringMu.Lock()
	b.ring[b.ringHead] = e
	b.ringHead = (b.ringHead + 1) % b.ringSize
	b.ringMu.Unlock()

	b.mu.RLock()
	for _, sub := range b.subscribers {
		if Matches(e, sub.filter) {
			select {
			case sub.ch <- e:
			default:
			}
		}
	}
	b.mu.RUnlock()

	metrics.SSEEventsPublishedTotal.Inc()
}

// Matches reports whether e passes f.
func Matches(e Event, f Filter) bool {
	if len(f.Types) > 0 {
		match := false
		for _, t := range f.Types {
			t = strings.TrimSpace(t)
			if base, sub, ok := strings.Cut(t, ":"); ok {
				match = base == e.Type && sub == e.SubType
			} else {
				match = t == e.Type
			}
			if match {
				break
			}
		}
		if !match {
			return false
		}
	}
	if len(f.Attractions) > 0 && e.AttractionID != "" {
		match := false
		for _, id := range f.Attractions {
			if id == e.AttractionID {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}
