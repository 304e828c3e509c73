package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilProducerIsSafe(t *testing.T) {
	var p *Producer
	// Emit and Close on a nil producer are no-ops; services never branch on
	// whether Kafka is configured.
	p.Emit(context.Background(), DecisionEvent{Type: TypePromotionApproved, EntityID: "x"})
	assert.NoError(t, p.Close())
}

func TestNewProducerValidation(t *testing.T) {
	_, err := NewProducer(ProducerConfig{Topic: "badgetrack.decisions"})
	assert.Error(t, err)

	_, err = NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	p, err := NewProducer(ProducerConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "badgetrack.decisions",
	})
	assert.NoError(t, err)
	assert.NoError(t, p.Close())
}
