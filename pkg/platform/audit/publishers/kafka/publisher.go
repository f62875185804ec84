// Package kafka publishes audit events to a Kafka topic with franz-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "timelock/pkg/platform/audit"
)

const headerEventType = "event_type"

// Publisher produces audit events keyed by engine name, so one engine's
// events stay ordered within a partition.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// Option configures the Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New connects to brokers and produces to topic.
func New(brokers []string, topic string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, errors.New("audit topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p := &Publisher{client: client, topic: topic}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// EnsureTopic creates the audit topic if it does not exist yet.
func (p *Publisher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create audit topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

type message struct {
	ID         string         `json:"id"`
	Category   string         `json:"category"`
	Timestamp  string         `json:"timestamp"`
	Engine     string         `json:"engine"`
	Action     string         `json:"action"`
	ActionID   uint64         `json:"action_id,omitempty"`
	Kind       string         `json:"kind,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Tick       uint64         `json:"tick,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Emit produces event synchronously.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	value, err := json.Marshal(message{
		ID:         event.ID,
		Category:   string(event.Category),
		Timestamp:  event.Timestamp.Format(time.RFC3339Nano),
		Engine:     event.Engine,
		Action:     event.Action,
		ActionID:   event.ActionID,
		Kind:       event.Kind,
		ActorID:    event.ActorID,
		Reason:     event.Reason,
		Tick:       event.Tick,
		RequestID:  event.RequestID,
		Attributes: event.Attributes,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return p.PublishRaw(ctx, event.Engine, event.Action, value)
}

// PublishRaw produces an already encoded payload. The outbox relay uses it to
// forward stored entries unchanged.
func (p *Publisher) PublishRaw(ctx context.Context, key, eventType string, payload []byte) error {
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(key),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: headerEventType, Value: []byte(eventType)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "failed to publish audit event",
				"topic", p.topic,
				"event_type", eventType,
				"error", err,
			)
		}
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the client.
func (p *Publisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}
