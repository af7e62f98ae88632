package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/messaging"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

// errUnknownRecord: запись DLQ ни одного из известных форматов.
var errUnknownRecord = errors.New("unrecognized dlq record")

// replayRecord: сообщение, готовое к повторной публикации.
type replayRecord struct {
	topic     string
	key       string
	eventType string
	value     []byte
}

// decodeRecord восстанавливает исходное сообщение из записи DLQ. В DLQ пишут двое:
// consumer кладёт kafka.DLQMessage с исходным значением как есть, outbox-воркер кладёт
// конверт, в payload которого лежит messaging.OutboxDLQPayload. Непустой target
// заменяет топик назначения.
func decodeRecord(value []byte, target string, now time.Time) (replayRecord, error) {
	var probe struct {
		OriginalValue string          `json:"original_value"`
		Payload       json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(value, &probe); err != nil {
		return replayRecord{}, fmt.Errorf("%w: %v", errUnknownRecord, err)
	}
	switch {
	case probe.OriginalValue != "":
		return decodeConsumerRecord(value, target)
	case len(probe.Payload) > 0:
		return decodeOutboxRecord(value, target, now)
	default:
		return replayRecord{}, errUnknownRecord
	}
}

func decodeConsumerRecord(value []byte, target string) (replayRecord, error) {
	var dead kafka.DLQMessage
	if err := json.Unmarshal(value, &dead); err != nil {
		return replayRecord{}, fmt.Errorf("decode consumer dlq record: %w", err)
	}
	// Тип события нужен только для фильтра, поэтому неразборчивое исходное значение не ошибка.
	var original messaging.OutboxEnvelope
	_ = json.Unmarshal([]byte(dead.OriginalValue), &original)

	return replayRecord{
		topic:     pick(target, dead.OriginalTopic, kafka.TopicSagaEvents),
		key:       dead.OriginalKey,
		eventType: original.EventType,
		value:     []byte(dead.OriginalValue),
	}, nil
}

func decodeOutboxRecord(value []byte, target string, now time.Time) (replayRecord, error) {
	var outer messaging.OutboxEnvelope
	if err := json.Unmarshal(value, &outer); err != nil {
		return replayRecord{}, fmt.Errorf("decode outbox dlq envelope: %w", err)
	}
	var dead messaging.OutboxDLQPayload
	if err := json.Unmarshal(outer.Payload, &dead); err != nil {
		return replayRecord{}, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(dead.Payload) == 0 {
		return replayRecord{}, errors.New("outbox dlq payload carries no original event")
	}

	restored := messaging.OutboxEnvelope{
		ID:            pick(dead.OutboxID, outer.ID),
		AggregateType: pick(dead.AggregateType, outer.AggregateType),
		AggregateID:   pick(dead.AggregateID, outer.AggregateID),
		EventType:     pick(dead.EventType, outer.EventType),
		Payload:       dead.Payload,
		PublishedAt:   now.UTC(),
	}
	body, err := json.Marshal(restored)
	if err != nil {
		return replayRecord{}, fmt.Errorf("encode restored envelope: %w", err)
	}
	return replayRecord{
		topic:     pick(target, aggregateTopic(restored.AggregateType)),
		key:       pick(restored.AggregateID, restored.ID),
		eventType: restored.EventType,
		value:     body,
	}, nil
}

// aggregateTopic: топик, куда сервисы публикуют события агрегата.
func aggregateTopic(aggregateType string) string {
	switch strings.ToLower(aggregateType) {
	case "order":
		return kafka.TopicOrderEvents
	case "payment":
		return kafka.TopicPaymentEvents
	default:
		return kafka.TopicSagaEvents
	}
}

// pick возвращает первое непустое значение.
func pick(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
