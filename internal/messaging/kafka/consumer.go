package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const defaultConsumeAttempts = 3

var consumed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "checkout_kafka_consumed_total",
	Help: "Kafka messages handled by consumer groups, by topic and outcome: handled, dead_lettered, dropped.",
}, []string{"topic", "outcome"})

// MessageHandler обрабатывает одно сообщение. Ошибка, обёрнутая Permanent,
// отправляет сообщение в DLQ без повторов.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку обработки как неисправимую повтором.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent сообщает, помечена ли ошибка через Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// ConsumerConfig: параметры consumer group.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// MaxRetries: сколько раз сообщение обрабатывается до отправки в DLQ.
	// Уже сделанные попытки берутся из заголовка HeaderRetryCount.
	MaxRetries int
	// RetryDelay: пауза перед второй попыткой; каждая следующая длиннее на RetryDelay.
	RetryDelay time.Duration
}

// Consumer читает топики consumer group'ой и отдаёт сообщения обработчику.
// Сообщение, которое не удалось обработать, попадает в TopicDeadLetterQueue,
// а без DLQ остаётся непомеченным и будет перечитано после rebalance.
type Consumer struct {
	group      sarama.ConsumerGroup
	topics     []string
	handler    MessageHandler
	dlq        *Producer
	attempts   int
	retryDelay time.Duration
	logger     *log.Entry
	now        func() time.Time
	wg         sync.WaitGroup
}

// NewConsumer подключается к брокерам. dlq может быть nil.
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, dlq *Producer) (*Consumer, error) {
	if handler == nil {
		return nil, errors.New("kafka consumer handler is required")
	}
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, fmt.Errorf("create consumer group %s: %w", cfg.GroupID, err)
	}
	return newConsumer(group, cfg, handler, dlq), nil
}

func newConsumer(group sarama.ConsumerGroup, cfg ConsumerConfig, handler MessageHandler, dlq *Producer) *Consumer {
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = defaultConsumeAttempts
	}
	return &Consumer{
		group:      group,
		topics:     cfg.Topics,
		handler:    handler,
		dlq:        dlq,
		attempts:   attempts,
		retryDelay: max(cfg.RetryDelay, 0),
		logger:     log.WithFields(log.Fields{"component": "kafka-consumer", "group": cfg.GroupID}),
		now:        time.Now,
	}
}

// Start запускает чтение в фоне и сразу возвращается. Остановка: отмена ctx и Stop.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		// Consume возвращается на каждом rebalance, поэтому вызывается в цикле.
		for ctx.Err() == nil {
			err := c.group.Consume(ctx, c.topics, c)
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			if err != nil {
				c.logger.WithError(err).Error("consumer group session ended with error")
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Warn("consumer group error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	err := c.group.Close()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("close consumer group: %w", err)
	}
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim помечает сообщение прочитанным, только когда оно обработано
// или надёжно лежит в DLQ.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			outcome, err := c.process(ctx, msg)
			consumed.WithLabelValues(msg.Topic, outcome).Inc()
			if err != nil {
				c.logger.WithError(err).WithFields(log.Fields{
					"topic":     msg.Topic,
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Error("message left unacknowledged")
				continue
			}
			session.MarkMessage(msg, "")
		}
	}
}

// process возвращает исход обработки для метрик и ошибку, если сообщение нельзя помечать.
func (c *Consumer) process(ctx context.Context, msg *sarama.ConsumerMessage) (string, error) {
	attempt := retryCount(msg)
	var err error
	for {
		if err = c.handler(ctx, msg); err == nil {
			return "handled", nil
		}
		attempt++
		if IsPermanent(err) || attempt >= c.attempts {
			break
		}
		c.logger.WithError(err).WithFields(log.Fields{
			"topic":   msg.Topic,
			"attempt": attempt,
		}).Warn("message handling failed, retrying")
		if waitErr := c.wait(ctx, attempt); waitErr != nil {
			return "dropped", waitErr
		}
	}

	if c.dlq == nil {
		return "dropped", err
	}
	if dlqErr := c.deadLetter(msg, err, attempt); dlqErr != nil {
		return "dropped", fmt.Errorf("dead-letter after %v: %w", err, dlqErr)
	}
	c.logger.WithError(err).WithFields(log.Fields{
		"topic":   msg.Topic,
		"attempt": attempt,
	}).Warn("message moved to DLQ")
	return "dead_lettered", nil
}

func (c *Consumer) wait(ctx context.Context, attempt int) error {
	if c.retryDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(attempt) * c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryCount читает число уже сделанных попыток из заголовка HeaderRetryCount.
func retryCount(msg *sarama.ConsumerMessage) int {
	for _, h := range msg.Headers {
		if h == nil || string(h.Key) != HeaderRetryCount {
			continue
		}
		if n, err := strconv.Atoi(string(h.Value)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// DLQMessage: содержимое сообщения в TopicDeadLetterQueue.
type DLQMessage struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

func (c *Consumer) deadLetter(msg *sarama.ConsumerMessage, cause error, attempts int) error {
	failedAt := c.now().UTC().Format(time.RFC3339)
	record := DLQMessage{
		OriginalTopic:     msg.Topic,
		OriginalPartition: msg.Partition,
		OriginalOffset:    msg.Offset,
		OriginalKey:       string(msg.Key),
		OriginalValue:     string(msg.Value),
		ErrorMessage:      cause.Error(),
		FailedAt:          failedAt,
		RetryCount:        attempts,
	}
	return c.dlq.PublishWithHeaders(TopicDeadLetterQueue, string(msg.Key), record, map[string]string{
		HeaderRetryCount:    strconv.Itoa(attempts),
		HeaderOriginalTopic: msg.Topic,
		HeaderErrorMessage:  cause.Error(),
		HeaderFailedAt:      failedAt,
	})
}
