// Package relay mirrors pipeline events to external systems (MQTT, Kafka)
// and accepts kiosk commands.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/voxguide/internal/events"
	"github.com/snarg/voxguide/internal/metrics"
)

const sendTimeout = 10 * time.Second

// Sink delivers one event to an external system.
type Sink interface {
	Name() string
	Send(ctx context.Context, e events.Event) error
	Close() error
}

// Subscriber is the part of events.Bus the relay needs.
type Subscriber interface {
	Subscribe(events.Filter) (<-chan events.Event, func())
}

// Relay forwards bus events to every sink.
type Relay struct {
	sinks  []Sink
	filter events.Filter
	log    zerolog.Logger
}

// New creates a relay. Event types outside filter are not forwarded.
func New(filter events.Filter, log zerolog.Logger, sinks ...Sink) *Relay {
	return &Relay{sinks: sinks, filter: filter, log: log}
}

// Len returns the number of sinks.
func (r *Relay) Len() int { return len(r.sinks) }

// Run forwards events until ctx is cancelled, then closes the sinks.
func (r *Relay) Run(ctx context.Context, bus Subscriber) {
	ch, cancel := bus.Subscribe(r.filter)
	defer cancel()
	defer r.closeSinks()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			r.forward(ctx, e)
		}
	}
}

func (r *Relay) forward(ctx context.Context, e events.Event) {
	var wg sync.WaitGroup
	for _, s := range r.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()
			if err := s.Send(sctx, e); err != nil {
				metrics.RelayMessagesTotal.WithLabelValues(s.Name(), "error").Inc()
				r.log.Warn().Err(err).Str("sink", s.Name()).Str("type", e.Type).Msg("relay send failed")
				return
			}
			metrics.RelayMessagesTotal.WithLabelValues(s.Name(), "ok").Inc()
		}()
	}
	wg.Wait()
}

func (r *Relay) closeSinks() {
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			r.log.Warn().Err(err).Str("sink", s.Name()).Msg("close relay sink")
		}
	}
}
