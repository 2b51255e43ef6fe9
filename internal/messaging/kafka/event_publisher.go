package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// EventPublisher маршрутизирует outbox-события по топикам Kafka:
// события заказов и стоковые события живут в разных топиках.
type EventPublisher struct {
	producer *Producer
	topics   map[string]string
	fallback string
}

// NewEventPublisher создаёт publisher с маршрутизацией по типу события.
func NewEventPublisher(producer *Producer) domain.EventPublisher {
	return &EventPublisher{
		producer: producer,
		topics: map[string]string{
			domain.EventTypeOrderCreated:   TopicOrderEvents,
			domain.EventTypeOrderConfirmed: TopicOrderEvents,
			domain.EventTypeOrderCancelled: TopicOrderEvents,
			domain.EventTypeStockLow:       TopicStockEvents,
		},
		fallback: TopicOrderEvents,
	}
}

// NewDLQPublisher создаёт publisher, отправляющий всё в DLQ-топик.
func NewDLQPublisher(producer *Producer) domain.EventPublisher {
	return &topicPublisher{producer: producer, topic: TopicDeadLetterQueue}
}

func (p *EventPublisher) Publish(_ context.Context, event domain.OutboxEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka event publisher is not initialized")
	}

	topic, ok := p.topics[event.Type]
	if !ok {
		topic = p.fallback
	}
	return p.producer.Send(topic, event.ID, newEnvelope(event))
}

var _ domain.EventPublisher = (*EventPublisher)(nil)

// topicPublisher публикует события в один фиксированный топик.
type topicPublisher struct {
	producer *Producer
	topic    string
}

func (p *topicPublisher) Publish(_ context.Context, event domain.OutboxEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka topic publisher is not initialized")
	}
	return p.producer.Send(p.topic, event.ID, newEnvelope(event))
}

var _ domain.EventPublisher = (*topicPublisher)(nil)

// envelope — wire-формат события в топике.
type envelope struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	OccurredOn  time.Time       `json:"occurred_on"`
	PublishedAt time.Time       `json:"published_at"`
}

func newEnvelope(event domain.OutboxEvent) envelope {
	return envelope{
		ID:          event.ID,
		EventType:   event.Type,
		Payload:     json.RawMessage(event.Payload),
		OccurredOn:  event.OccurredOn,
		PublishedAt: time.Now().UTC(),
	}
}
