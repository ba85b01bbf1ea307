package relay

import (
	"context"
	"encoding/json"

	"github.com/snarg/voxguide/internal/events"
	"github.com/snarg/voxguide/internal/mqttclient"
)

// Publisher is the part of mqttclient.Client the MQTT sink needs.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Prefix() string
	Close()
}

// MQTTSink publishes each event as JSON to <prefix>/events/<type>[/<subtype>].
type MQTTSink struct {
	pub Publisher
}

func NewMQTTSink(pub Publisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Send(_ context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.pub.Publish(mqttclient.EventTopic(s.pub.Prefix(), e.Type, e.SubType), payload)
}

func (s *MQTTSink) Close() error {
	s.pub.Close()
	return nil
}
