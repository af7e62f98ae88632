package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/checkout/internal/messaging"
)

// EventType: тип события саги в топике TopicSagaEvents.
type EventType string

const (
	EventTypeOrderPlaced    EventType = "saga.order_placed"
	EventTypeOrderFinalized EventType = "saga.order_finalized"
	// EventTypeFinalizeReplayed: повторная финализация уже подтверждённого заказа.
	EventTypeFinalizeReplayed EventType = "saga.finalize_replayed"
	EventTypeOrderCancelled   EventType = "saga.order_cancelled"
	EventTypeStepFailed       EventType = "saga.step_failed"
)

// Topics для Kafka
const (
	TopicSagaEvents      = "checkout.saga.events"
	TopicOrderEvents     = "checkout.order.events"
	TopicPaymentEvents   = "checkout.payment.events"
	TopicDeadLetterQueue = "checkout.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// SagaEvent: шаг саги, опубликованный для внешних наблюдателей.
type SagaEvent struct {
	EventType EventType      `json:"event_type"`
	OrderID   string         `json:"order_id"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewSagaEvent создает новое событие саги
func NewSagaEvent(eventType EventType, orderID string, metadata map[string]any) *SagaEvent {
	return &SagaEvent{
		EventType: eventType,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}

// ParseOutboxEnvelope разбирает сообщение, опубликованное outbox-воркером.
func ParseOutboxEnvelope(message *sarama.ConsumerMessage) (*messaging.OutboxEnvelope, error) {
	var envelope messaging.OutboxEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outbox envelope: %w", err)
	}
	if envelope.EventType == "" {
		return nil, fmt.Errorf("outbox envelope without event_type")
	}
	return &envelope, nil
}
