package rabbitmq

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent    []published
	err     error
	closed  bool
	closeFn func() error
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

func TestPublisherPublish(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, "checkout.events", nil)
	fixed := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	err := p.Publish(domain.OutboxMessage{
		ID:            "evt-1",
		AggregateType: "payment",
		AggregateID:   "order-1",
		EventType:     domain.EventPaymentSucceeded,
		Payload:       []byte(`{"order_id":"order-1","user_id":"user-1"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(ch.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(ch.sent))
	}
	got := ch.sent[0]
	if got.exchange != "checkout.events" || got.key != "checkout.payment.PaymentSucceeded" {
		t.Fatalf("unexpected routing %s/%s", got.exchange, got.key)
	}
	if got.msg.MessageId != "evt-1" || got.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing %+v", got.msg)
	}

	var envelope messaging.OutboxEnvelope
	if err := json.Unmarshal(got.msg.Body, &envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if envelope.EventType != domain.EventPaymentSucceeded || !envelope.PublishedAt.Equal(fixed) {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
}

func TestPublisherPublishError(t *testing.T) {
	p := newPublisher(&fakeChannel{err: errors.New("channel closed")}, "checkout.events", nil)
	if err := p.Publish(domain.OutboxMessage{ID: "evt-2", EventType: domain.EventOrderPlaced}); err == nil {
		t.Fatal("expected publish error")
	}

	var nilPublisher *Publisher
	if err := nilPublisher.Publish(domain.OutboxMessage{}); err == nil {
		t.Fatal("expected error for nil publisher")
	}
}

func TestRoutingKey(t *testing.T) {
	cases := map[string]domain.OutboxMessage{
		"checkout.order.OrderConfirmed": {AggregateType: "Order", EventType: domain.EventOrderConfirmed},
		"checkout.unknown.OrderPlaced":  {EventType: domain.EventOrderPlaced},
	}
	for want, msg := range cases {
		if got := RoutingKey(msg); got != want {
			t.Fatalf("RoutingKey(%+v) = %s, want %s", msg, got, want)
		}
	}
}

func TestPublisherClose(t *testing.T) {
	ch := &fakeChannel{closeFn: func() error { return errors.New("already closed") }}
	p := newPublisher(ch, "x", nil)
	if err := p.Close(); err == nil {
		t.Fatal("expected close error")
	}
	if !ch.closed {
		t.Fatal("channel must be closed")
	}
}

func TestDialRequiresURL(t *testing.T) {
	if _, err := Dial(Config{}); err == nil {
		t.Fatal("expected error for empty url")
	}
}
