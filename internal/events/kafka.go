package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/config"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/tracing"
)

// Envelope is the wire format of every event on Kafka.
type Envelope struct {
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(e domain.Event) (Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s: %w", e.EventType(), err)
	}
	return Envelope{
		EventType:     e.EventType(),
		AggregateType: domain.AggregateOf(e),
		AggregateID:   e.AggregateID().String(),
		OccurredAt:    e.OccurredAt().UTC(),
		Payload:       payload,
	}, nil
}

func NewKafkaProducer(cfg config.KafkaConfig) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return producer, nil
}

// KafkaPublisher writes events to one topic per aggregate, keyed by aggregate id so that events of
// one payment or claim stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topics   map[string]string
	logger   logger.Logger
}

func NewKafkaPublisher(producer sarama.SyncProducer, cfg config.KafkaConfig, log logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topics: map[string]string{
			domain.AggregatePayment: cfg.PaymentTopic,
			domain.AggregateClaim:   cfg.ClaimTopic,
		},
		logger: log,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	for _, e := range events {
		env, err := NewEnvelope(e)
		if err != nil {
			return err
		}
		value, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("failed to marshal envelope: %w", err)
		}

		topic := p.topics[env.AggregateType]
		msg := &sarama.ProducerMessage{
			Topic: topic,
			Key:   sarama.StringEncoder(env.AggregateID),
			Value: sarama.ByteEncoder(value),
		}

		carrier := headerCarrier{{Key: []byte("event_type"), Value: []byte(env.EventType)}}
		otel.GetTextMapPropagator().Inject(ctx, &carrier)
		msg.Headers = []sarama.RecordHeader(carrier)

		partition, offset, err := p.producer.SendMessage(msg)
		if err != nil {
			return fmt.Errorf("failed to send %s: %w", env.EventType, err)
		}

		p.logger.Info("Event published", map[string]interface{}{
			"trace_id":     tracing.TraceID(ctx),
			"topic":        topic,
			"event_type":   env.EventType,
			"aggregate_id": env.AggregateID,
			"partition":    partition,
			"offset":       offset,
		})
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// headerCarrier adapts Kafka record headers to the otel TextMapCarrier interface.
type headerCarrier []sarama.RecordHeader

func (c headerCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	*c = append(*c, sarama.RecordHeader{
		Key:   []byte(key),
		Value: []byte(value),
	})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
