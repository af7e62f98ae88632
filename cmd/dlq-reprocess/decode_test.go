package main

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

var replayedAt = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func consumerRecord(t *testing.T, topic, key, value string) []byte {
	t.Helper()
	raw, err := json.Marshal(kafka.DLQMessage{
		OriginalTopic: topic,
		OriginalKey:   key,
		OriginalValue: value,
		ErrorMessage:  "handler failed",
		RetryCount:    3,
	})
	require.NoError(t, err)
	return raw
}

func outboxRecord(t *testing.T, msg domain.OutboxMessage) []byte {
	t.Helper()
	dead, err := json.Marshal(messaging.NewOutboxDLQPayload(msg, errEmptyBroker, replayedAt.Add(-time.Hour)))
	require.NoError(t, err)
	envelope := messaging.NewOutboxEnvelope(msg, replayedAt.Add(-time.Hour))
	envelope.Payload = dead
	raw, err := json.Marshal(envelope)
	require.NoError(t, err)
	return raw
}

var errEmptyBroker = errors.New("no leader for partition")

func TestDecodeRecord_ConsumerFormat(t *testing.T) {
	original := `{"id":"evt-1","event_type":"PaymentSucceeded","payload":{}}`
	rec, err := decodeRecord(consumerRecord(t, kafka.TopicPaymentEvents, "order-1", original), "", replayedAt)
	require.NoError(t, err)
	require.Equal(t, kafka.TopicPaymentEvents, rec.topic)
	require.Equal(t, "order-1", rec.key)
	require.Equal(t, "PaymentSucceeded", rec.eventType)
	require.Equal(t, original, string(rec.value))

	rec, err = decodeRecord(consumerRecord(t, "", "order-1", "not json"), "", replayedAt)
	require.NoError(t, err)
	require.Equal(t, kafka.TopicSagaEvents, rec.topic)
	require.Empty(t, rec.eventType)
}

func TestDecodeRecord_OutboxFormatRestoresEnvelope(t *testing.T) {
	msg := domain.OutboxMessage{
		ID:            "ob-1",
		AggregateType: "payment",
		AggregateID:   "order-42",
		EventType:     domain.EventPaymentSucceeded,
		Payload:       []byte(`{"amount_minor":1500}`),
	}

	rec, err := decodeRecord(outboxRecord(t, msg), "", replayedAt)
	require.NoError(t, err)
	require.Equal(t, kafka.TopicPaymentEvents, rec.topic)
	require.Equal(t, "order-42", rec.key)
	require.Equal(t, domain.EventPaymentSucceeded, rec.eventType)

	var restored messaging.OutboxEnvelope
	require.NoError(t, json.Unmarshal(rec.value, &restored))
	require.Equal(t, "ob-1", restored.ID)
	require.JSONEq(t, `{"amount_minor":1500}`, string(restored.Payload))
	require.True(t, restored.PublishedAt.Equal(replayedAt))

	rec, err = decodeRecord(outboxRecord(t, msg), "checkout.replay", replayedAt)
	require.NoError(t, err)
	require.Equal(t, "checkout.replay", rec.topic)
}

func TestDecodeRecord_Malformed(t *testing.T) {
	_, err := decodeRecord([]byte(`{"id":"x","payload":{"outbox_id":"x"}}`), "", replayedAt)
	require.ErrorContains(t, err, "no original event")
	require.NotErrorIs(t, err, errUnknownRecord)

	_, err = decodeRecord([]byte(`{"id":"x","payload":"oops"}`), "", replayedAt)
	require.ErrorContains(t, err, "decode outbox dlq payload")

	for _, raw := range []string{`{"hello":"world"}`, `[1,2]`, `plain text`} {
		_, err = decodeRecord([]byte(raw), "", replayedAt)
		require.ErrorIs(t, err, errUnknownRecord, raw)
	}
}

func TestAggregateTopic(t *testing.T) {
	require.Equal(t, kafka.TopicOrderEvents, aggregateTopic("Order"))
	require.Equal(t, kafka.TopicPaymentEvents, aggregateTopic("payment"))
	require.Equal(t, kafka.TopicSagaEvents, aggregateTopic("lot"))
	require.Equal(t, "b", pick(" ", "", "b", "c"))
}
