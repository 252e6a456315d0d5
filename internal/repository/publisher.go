package repository

import (
	"context"
	"time"

	drepo "MarketPulse/internal/domain/repository"

	"github.com/google/uuid"
)

// Event is the envelope every published payload travels in.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// producer is the subset of pkg/kafka.Producer the publisher needs.
type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaPublisher implements Publisher for Kafka.
type KafkaPublisher struct {
	producer producer
	topic    string
	now      func() time.Time
}

var _ drepo.Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(p producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic, now: time.Now}
}

// Publish wraps payload in an Event keyed by key, so events of one window share a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, eventType, key string, payload interface{}) error {
	ev := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		OccurredAt: p.now().UTC(),
		Payload:    payload,
	}
	return p.producer.Publish(ctx, p.topic, []byte(key), ev)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopPublisher drops events; used when Kafka is disabled.
type NoopPublisher struct{}

var _ drepo.Publisher = NoopPublisher{}

func (NoopPublisher) Publish(context.Context, string, string, interface{}) error { return nil }

func (NoopPublisher) Close() error { return nil }
