// Package outbox доставляет записанные сагой события из таблицы outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging"
	"github.com/vladislavdragonenkov/checkout/internal/service/poll"
	"github.com/vladislavdragonenkov/checkout/internal/service/saga"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
	defaultMaxAttempts  = 3
	defaultRetryDelay   = 50 * time.Millisecond
	maxRetryDelay       = 2 * time.Second
)

var (
	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_outbox_deliveries_total",
		Help: "Outbox publish attempts grouped by outcome: sent, retry, failed, dlq_failed.",
	}, []string{"outcome"})
	backlogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkout_outbox_backlog",
		Help: "Outbox messages waiting for delivery.",
	})
	backlogAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkout_outbox_backlog_age_seconds",
		Help: "Age of the oldest outbox message waiting for delivery.",
	})
)

// Option настраивает Worker.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDLQPublisher задаёт брокер, куда уходит копия сообщения после последней неудачной попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithMaxAttempts: сколько раз публиковать сообщение в пределах одного прохода.
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.retry.MaxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается.
// Ноль отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.retry.InitialDelay = max(delay, 0) }
}

// Worker публикует pending-сообщения outbox в Kafka или RabbitMQ. Сообщение, которое
// не ушло за все попытки, копируется в DLQ и помечается failed.
type Worker struct {
	repo         domain.OutboxRepository
	publisher    domain.OutboxPublisher
	dlq          domain.OutboxPublisher
	logger       *log.Entry
	pollInterval time.Duration
	batchSize    int
	retry        saga.RetryConfig
	now          func() time.Time
}

func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	w := &Worker{
		repo:         repo,
		publisher:    publisher,
		logger:       log.WithField("component", "outbox-worker"),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		retry: saga.RetryConfig{
			MaxAttempts:   defaultMaxAttempts,
			InitialDelay:  defaultRetryDelay,
			MaxDelay:      maxRetryDelay,
			BackoffFactor: 2,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repository or publisher is missing")
		return
	}
	poll.Loop(ctx, w.pollInterval, func(ctx context.Context) { w.ProcessOnce(ctx) })
}

// ProcessOnce забирает одну пачку pending-сообщений и доставляет их по порядку.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	defer w.observeBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return
	}
	for _, msg := range batch {
		if ctx.Err() != nil {
			return
		}
		w.deliver(ctx, msg)
	}
}

func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) {
	logger := w.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"event_type":   msg.EventType,
		"aggregate_id": msg.AggregateID,
	})

	err := w.publish(ctx, msg)
	if err == nil {
		if markErr := w.repo.MarkSent(ctx, msg.ID); markErr != nil {
			logger.WithError(markErr).Warn("outbox message published but not marked sent")
		}
		return
	}
	if ctx.Err() != nil {
		// Остановка посреди повторов: сообщение останется pending до следующего запуска.
		return
	}

	deliveries.WithLabelValues("failed").Inc()
	logger.WithError(err).Error("outbox message could not be published")
	if dlqErr := w.deadLetter(msg, err); dlqErr != nil {
		deliveries.WithLabelValues("dlq_failed").Inc()
		logger.WithError(dlqErr).Warn("outbox message not copied to DLQ")
	}
	if markErr := w.repo.MarkFailed(ctx, msg.ID); markErr != nil {
		logger.WithError(markErr).Warn("failed to mark outbox message failed")
	}
}

// publish повторяет публикацию до retry.MaxAttempts раз с растущей паузой.
func (w *Worker) publish(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, w.retry.Delay(attempt-1)); err != nil {
				return err
			}
		}
		if lastErr = w.publisher.Publish(msg); lastErr == nil {
			deliveries.WithLabelValues("sent").Inc()
			return nil
		}
		deliveries.WithLabelValues("retry").Inc()
	}
	return fmt.Errorf("%d publish attempts failed: %w", w.retry.MaxAttempts, lastErr)
}

func (w *Worker) deadLetter(msg domain.OutboxMessage, cause error) error {
	if w.dlq == nil {
		return nil
	}
	body, err := json.Marshal(messaging.NewOutboxDLQPayload(msg, cause, w.now()))
	if err != nil {
		return fmt.Errorf("encode dlq payload: %w", err)
	}
	dead := msg
	dead.Payload = body
	if err := w.dlq.Publish(dead); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

func (w *Worker) observeBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Debug("outbox backlog stats unavailable")
		return
	}
	backlogSize.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		backlogAge.Set(0)
		return
	}
	backlogAge.Set(max(w.now().Sub(stats.OldestPendingAt).Seconds(), 0))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
