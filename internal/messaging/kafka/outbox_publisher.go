package kafka

import (
	"errors"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging"
)

// Заголовки outbox-сообщений в Kafka.
const (
	HeaderOutboxID      = "x-outbox-id"
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
)

// OutboxTopicPublisher отправляет outbox-сообщения в один топик. Ключ сообщения:
// id агрегата, так что события одного заказа остаются упорядоченными внутри партиции.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	// origin: топик, в который сообщение должно было уйти; задан только у DLQ-паблишера.
	origin string
	now    func() time.Time
}

// NewOutboxPublisher публикует в topic; пустой topic означает TopicSagaEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicSagaEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic, now: time.Now}
}

// NewDeadLetterPublisher публикует в TopicDeadLetterQueue и помечает сообщения
// заголовком HeaderOriginalTopic, чтобы dlq-reprocess знал, откуда они пришли.
func NewDeadLetterPublisher(producer *Producer, origin string) *OutboxTopicPublisher {
	p := NewOutboxPublisher(producer, TopicDeadLetterQueue)
	p.origin = origin
	return p
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka outbox publisher is not initialized")
	}
	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	headers := map[string]string{
		HeaderOutboxID:      event.ID,
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
	}
	if p.origin != "" {
		headers[HeaderOriginalTopic] = p.origin
	}
	return p.producer.PublishWithHeaders(p.topic, key, messaging.NewOutboxEnvelope(event, p.now()), headers)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
