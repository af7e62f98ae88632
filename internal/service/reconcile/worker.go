// Package reconcile доводит до конца побочные эффекты финализации, которые не удались
// в момент подтверждения заказа: повторные списания партий и очистку корзин.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/poll"
	"github.com/vladislavdragonenkov/checkout/internal/service/saga"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 50
	defaultMaxAttempts  = 8
	defaultCallTimeout  = 5 * time.Second
)

var taskResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "checkout_downstream_task_results_total",
	Help: "Downstream task executions grouped by kind and result.",
}, []string{"kind", "result"})

// DefaultBackoff задаёт паузы между попытками задачи, от секунды до пяти минут.
func DefaultBackoff() saga.RetryConfig {
	return saga.RetryConfig{
		MaxAttempts:   defaultMaxAttempts,
		InitialDelay:  time.Second,
		MaxDelay:      5 * time.Minute,
		BackoffFactor: 2,
	}
}

// Option настраивает Worker.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
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

// WithBackoff задаёт паузы между попытками; MaxAttempts ограничивает число попыток задачи.
func WithBackoff(cfg saga.RetryConfig) Option {
	return func(w *Worker) {
		if cfg.MaxAttempts <= 0 {
			cfg.MaxAttempts = defaultMaxAttempts
		}
		w.backoff = cfg
	}
}

// WithCallTimeout ограничивает один вызов внешнего сервиса.
func WithCallTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.callTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// Dependencies: очередь задач и сервисы, которые задачи вызывают повторно.
type Dependencies struct {
	Tasks     domain.TaskRepository
	Outbox    domain.OutboxRepository
	Inventory domain.InventoryService
	Cart      domain.CartService
}

type handler func(ctx context.Context, task domain.DownstreamTask) error

// Worker забирает созревшие задачи из очереди сверки и выполняет их.
// Неудача переносит задачу с экспоненциальной паузой; постоянная ошибка или исчерпание
// попыток переводит задачу в dead и пишет DownstreamTaskDead в outbox.
type Worker struct {
	tasks        domain.TaskRepository
	outbox       domain.OutboxRepository
	handlers     map[domain.TaskKind]handler
	logger       *log.Entry
	pollInterval time.Duration
	batchSize    int
	callTimeout  time.Duration
	backoff      saga.RetryConfig
	now          func() time.Time
}

func NewWorker(deps Dependencies, opts ...Option) *Worker {
	w := &Worker{
		tasks:        deps.Tasks,
		outbox:       deps.Outbox,
		logger:       log.WithField("component", "reconcile-worker"),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		callTimeout:  defaultCallTimeout,
		backoff:      DefaultBackoff(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}

	w.handlers = make(map[domain.TaskKind]handler)
	if deps.Inventory != nil {
		w.handlers[domain.TaskKindLotDecrement] = func(ctx context.Context, task domain.DownstreamTask) error {
			var p domain.LotDecrementPayload
			if err := json.Unmarshal(task.Payload, &p); err != nil {
				return permanent(fmt.Errorf("decode lot decrement payload: %w", err))
			}
			return deps.Inventory.DecrementLot(ctx, domain.DecrementRequest{LotID: p.LotID, Qty: p.Qty, Reference: p.Reference})
		}
	}
	if deps.Cart != nil {
		w.handlers[domain.TaskKindCartClear] = func(ctx context.Context, task domain.DownstreamTask) error {
			var p domain.CartClearPayload
			if err := json.Unmarshal(task.Payload, &p); err != nil {
				return permanent(fmt.Errorf("decode cart clear payload: %w", err))
			}
			return deps.Cart.ClearCart(ctx, p.UserID)
		}
	}
	return w
}

// Run опрашивает очередь до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.tasks == nil {
		w.logger.Warn("reconcile worker is disabled: task repository is nil")
		return
	}

	poll.Loop(ctx, w.pollInterval, func(ctx context.Context) { w.ProcessOnce(ctx) })
}

// ProcessOnce выполняет один проход по созревшим задачам и возвращает число обработанных.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.refreshMetrics(ctx)

	due, err := w.tasks.PullDue(ctx, w.now(), w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull due downstream tasks")
		return 0
	}

	processed := 0
	for _, task := range due {
		if ctx.Err() != nil {
			break
		}
		w.execute(ctx, task)
		processed++
	}
	return processed
}

func (w *Worker) execute(ctx context.Context, task domain.DownstreamTask) {
	logger := w.logger.WithFields(log.Fields{
		"task_id":  task.ID,
		"kind":     task.Kind,
		"order_id": task.OrderID,
		"attempt":  task.Attempts + 1,
	})

	err := w.run(ctx, task)
	if err == nil {
		if markErr := w.tasks.MarkDone(ctx, task.ID); markErr != nil {
			logger.WithError(markErr).Warn("failed to mark downstream task done")
		}
		taskResults.WithLabelValues(string(task.Kind), "done").Inc()
		logger.Info("downstream task completed")
		return
	}

	attempts := task.Attempts + 1
	if isPermanent(err) || attempts >= w.backoff.MaxAttempts {
		w.kill(ctx, task, attempts, err, logger)
		return
	}

	next := w.now().Add(w.backoff.Delay(attempts))
	if rescheduleErr := w.tasks.Reschedule(ctx, task.ID, next, err.Error()); rescheduleErr != nil {
		logger.WithError(rescheduleErr).Warn("failed to reschedule downstream task")
	}
	taskResults.WithLabelValues(string(task.Kind), "retry").Inc()
	logger.WithError(err).WithField("next_attempt_at", next).Warn("downstream task failed, rescheduled")
}

func (w *Worker) run(ctx context.Context, task domain.DownstreamTask) error {
	h, ok := w.handlers[task.Kind]
	if !ok {
		return permanent(fmt.Errorf("%w: %s", domain.ErrUnknownTaskKind, task.Kind))
	}
	callCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
	defer cancel()
	return h(callCtx, task)
}

func (w *Worker) kill(ctx context.Context, task domain.DownstreamTask, attempts int, cause error, logger *log.Entry) {
	if err := w.tasks.MarkDead(ctx, task.ID, cause.Error()); err != nil {
		logger.WithError(err).Warn("failed to mark downstream task dead")
	}
	taskResults.WithLabelValues(string(task.Kind), "dead").Inc()
	logger.WithError(cause).Error("DownstreamTaskDead: manual reconciliation required")

	if w.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"order_id": task.OrderID,
		"task_id":  task.ID,
		"kind":     task.Kind,
		"attempts": attempts,
		"reason":   cause.Error(),
		"payload":  json.RawMessage(task.Payload),
		"ts":       w.now().Format(time.RFC3339Nano),
	})
	if err != nil {
		logger.WithError(err).Error("marshal dead task event failed")
		return
	}
	_, err = w.outbox.Enqueue(context.WithoutCancel(ctx), domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   task.OrderID,
		EventType:     domain.EventDownstreamTaskDead,
		Payload:       payload,
	})
	if err != nil {
		logger.WithError(err).Error("enqueue dead task event failed")
	}
}

func (w *Worker) refreshMetrics(ctx context.Context) {
	stats, err := w.tasks.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect downstream task stats")
		return
	}
	metrics.DownstreamTasks.WithLabelValues(string(domain.TaskStatusPending)).Set(float64(stats.PendingCount))
	metrics.DownstreamTasks.WithLabelValues(string(domain.TaskStatusDead)).Set(float64(stats.DeadCount))
}

// permanentError означает, что повтор не поможет и задача сразу переводится в dead.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return permanentError{err: err} }

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p) ||
		errors.Is(err, domain.ErrInsufficientLotQuantity) ||
		errors.Is(err, domain.ErrLotNotFound) ||
		errors.Is(err, domain.ErrUnknownTaskKind)
}
