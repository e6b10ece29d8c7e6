// README: Quote-issued events; Kafka publisher plus a no-op for deployments without brokers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cargoquote/internal/modules/pricing"
)

const (
	TypeQuoteIssued   = "quote.issued"
	TypeOrderAccepted = "order.accepted"
)

// Event is the envelope for every message on the bus.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Aggregate string          `json:"aggregate"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Version   int             `json:"version"`
}

// NewEvent wraps data in an envelope. Timestamps are unix seconds.
func NewEvent(eventType, aggregate string, data any, at time.Time) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Aggregate: aggregate,
		Data:      raw,
		Timestamp: at.Unix(),
		Version:   1,
	}, nil
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishQuoteIssued(context.Context, pricing.QuoteResult) error {
	return nil
}

// KafkaPublisher writes quote-issued events keyed by route so a route's quotes stay ordered.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

var _ pricing.QuotePublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaPublisher {
	if topic == "" {
		topic = TypeQuoteIssued
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) PublishQuoteIssued(ctx context.Context, q pricing.QuoteResult) error {
	evt, err := NewEvent(TypeQuoteIssued, "quote", q, q.CreatedAt)
	if err != nil {
		return err
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event envelope: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(q.Route),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return fmt.Errorf("kafka: publish %s: %w", TypeQuoteIssued, err)
	}
	p.logger.Debug("quote issued event published",
		zap.String("topic", p.topic),
		zap.String("quote_id", q.QuoteID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
