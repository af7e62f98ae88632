// Package messaging содержит форматы сообщений, общие для брокеров.
package messaging

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// OutboxEnvelope: формат, в котором outbox-сообщение уходит в брокер.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewOutboxEnvelope упаковывает outbox-сообщение для публикации.
func NewOutboxEnvelope(msg domain.OutboxMessage, publishedAt time.Time) OutboxEnvelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return OutboxEnvelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt.UTC(),
	}
}

// PaymentEvent: полезная нагрузка событий платежа, которые читает order-service.
type PaymentEvent struct {
	PaymentID   string `json:"payment_id"`
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	AmountMinor int64  `json:"amount_minor"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

// OutboxDLQPayload: полезная нагрузка сообщения, которое outbox-воркер отправил в DLQ
// после исчерпания попыток публикации.
type OutboxDLQPayload struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

// NewOutboxDLQPayload описывает сообщение, которое не удалось доставить, вместе с причиной.
func NewOutboxDLQPayload(msg domain.OutboxMessage, cause error, at time.Time) OutboxDLQPayload {
	payload := OutboxDLQPayload{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Payload:        NewOutboxEnvelope(msg, at).Payload,
		DLQPublishedAt: at.UTC(),
	}
	if cause != nil {
		payload.PublishError = cause.Error()
	}
	return payload
}
