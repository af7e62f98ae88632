package kafka

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event SagaEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.EventType != EventTypeOrderFinalized || event.OrderID != "order-123" {
			return fmt.Errorf("unexpected event %+v", event)
		}
		return nil
	})

	event := NewSagaEvent(EventTypeOrderFinalized, "order-123", map[string]any{"user_id": "user-1"})
	if err := producer.PublishEvent(TopicSagaEvents, "order-123", event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, nil)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(TopicSagaEvents, "order-123", NewSagaEvent(EventTypeOrderPlaced, "order-123", nil))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishUnmarshalableEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, nil)

	if err := producer.PublishEvent(TopicSagaEvents, "k", map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatal("expected marshal error")
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(ProducerConfig{}); err == nil {
		t.Fatal("expected error for empty broker list")
	}
}

func TestNewSagaEvent(t *testing.T) {
	event := NewSagaEvent(EventTypeOrderPlaced, "order-123", map[string]any{"total_minor": 1500})

	if event.EventType != EventTypeOrderPlaced {
		t.Errorf("expected event type %s, got %s", EventTypeOrderPlaced, event.EventType)
	}
	if event.OrderID != "order-123" {
		t.Errorf("expected order id order-123, got %s", event.OrderID)
	}
	if event.Metadata["total_minor"] != 1500 {
		t.Error("metadata not set correctly")
	}
	if event.Timestamp.IsZero() || time.Since(event.Timestamp) > time.Second {
		t.Errorf("timestamp should be close to now, got %v", event.Timestamp)
	}
}

func TestRecordHeaders(t *testing.T) {
	if got := recordHeaders(nil); got != nil {
		t.Fatalf("expected nil headers, got %v", got)
	}
	got := recordHeaders(map[string]string{HeaderRetryCount: "2"})
	if len(got) != 1 || string(got[0].Key) != HeaderRetryCount || string(got[0].Value) != "2" {
		t.Fatalf("unexpected headers: %+v", got)
	}
}
