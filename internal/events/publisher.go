// Package events publishes domain events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/catalog-fetch-service/internal/domain"
	"github.com/helixir/catalog-fetch-service/internal/observability"
)

// Publisher sends events to the event bus.
type Publisher interface {
	Publish(ctx context.Context, event *domain.Event) error
	Close() error
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
}

// KafkaPublisher writes events as JSON keyed by event ID, so retries of the
// same event land on the same partition.
type KafkaPublisher struct {
	writer  MessageWriter
	topic   string
	metrics *observability.Metrics
	logger  zerolog.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher backed by a kafka.Writer.
func NewKafkaPublisher(cfg KafkaConfig, metrics *observability.Metrics, logger zerolog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("kafka publisher initialized")
	return NewKafkaPublisherWithWriter(w, cfg.Topic, metrics, logger)
}

// NewKafkaPublisherWithWriter creates a publisher over an existing writer.
func NewKafkaPublisherWithWriter(w MessageWriter, topic string, metrics *observability.Metrics, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  w,
		topic:   topic,
		metrics: metrics,
		logger:  logger.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish writes one event.
func (p *KafkaPublisher) Publish(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return domain.NewValidationError("event", "event is required")
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventID, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.EventID),
		Value: value,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if p.metrics != nil {
			p.metrics.RecordEventFailed(event.EventType)
		}
		p.logger.Error().Err(err).
			Str("event_id", event.EventID).
			Str("event_type", event.EventType).
			Msg("failed to publish event")
		return fmt.Errorf("publish event %s to %s: %w", event.EventID, p.topic, err)
	}

	if p.metrics != nil {
		p.metrics.RecordEventPublished(event.EventType)
	}
	p.logger.Debug().
		Str("event_id", event.EventID).
		Str("event_type", event.EventType).
		Msg("event published")
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher drops every event. It is used when Kafka is disabled.
type NoopPublisher struct{}

var _ Publisher = NoopPublisher{}

func (NoopPublisher) Publish(context.Context, *domain.Event) error { return nil }

func (NoopPublisher) Close() error { return nil }

// PublishPayload builds an event of the given type and publishes it.
func PublishPayload(ctx context.Context, p Publisher, eventType string, payload any) error {
	event, err := domain.NewEvent(eventType, payload)
	if err != nil {
		return fmt.Errorf("build %s event: %w", eventType, err)
	}
	return p.Publish(ctx, event)
}
