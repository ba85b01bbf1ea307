package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/snarg/voxguide/internal/events"
)

// MessageWriter is the part of kafka.Writer the Kafka sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes each event to one topic, keyed by event type.
type KafkaSink struct {
	w MessageWriter
}

// NewKafkaWriter builds a writer for brokers and topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
}

func NewKafkaSink(w MessageWriter) *KafkaSink {
	return &KafkaSink{w: w}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, e events.Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Type),
		Value: value,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(e.Type)},
			{Key: "subType", Value: []byte(e.SubType)},
		},
	})
}

func (s *KafkaSink) Close() error { return s.w.Close() }
