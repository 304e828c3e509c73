package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types emitted on the decision stream.
const (
	TypeApplicationAccepted = "badge_application.accepted"
	TypeApplicationRejected = "badge_application.rejected"
	TypePromotionSubmitted  = "promotion.submitted"
	TypePromotionApproved   = "promotion.approved"
	TypePromotionRejected   = "promotion.rejected"
)

// DecisionEvent is the wire record published when a reviewer or admin decides
// an application or promotion. Consumers (notification fan-out, reporting)
// are external; the service only publishes.
type DecisionEvent struct {
	Type      string    `json:"type"`
	EntityID  string    `json:"entityId"`
	OwnerID   string    `json:"ownerId"`
	ActorID   string    `json:"actorId"`
	Timestamp time.Time `json:"timestamp"`
}

// ProducerConfig configures the Kafka decision-event producer.
type ProducerConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic to publish decision events on.
	Topic string

	// WriteTimeout is the per-write timeout. Defaults to 10s if zero.
	WriteTimeout time.Duration
}

// Producer publishes decision events. A nil *Producer is valid and publishes
// nothing, so callers never need to branch on whether Kafka is configured.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer constructs a Producer over segmentio/kafka-go.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		// Key-hash balancing keeps events for one entity on one partition.
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})
	return &Producer{writer: w}, nil
}

// Emit publishes a decision event, keyed by entity id. Publishing is
// best-effort: state changes have already committed, so a broker failure is
// logged and swallowed rather than failing the request.
func (p *Producer) Emit(ctx context.Context, ev DecisionEvent) {
	if p == nil || p.writer == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[events] marshal %s: %v", ev.Type, err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.EntityID),
		Value: value,
		Time:  ev.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("[events] publish %s for %s: %v", ev.Type, ev.EntityID, err)
	}
}

// Close shuts down the underlying writer.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
