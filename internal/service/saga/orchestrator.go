package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

// DefaultCallTimeout: таймаут одного обращения к складу или корзине.
const DefaultCallTimeout = 3 * time.Second

const timeLayout = time.RFC3339Nano

// Orchestrator описывает операции сервиса заказов.
type Orchestrator interface {
	// PlaceOrder превращает корзину пользователя в заказ в статусе pending.
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.Order, error)
	// FinalizePayment подтверждает оплаченный заказ и списывает остатки. Идемпотентен.
	FinalizePayment(ctx context.Context, orderID, userID string) error
	GetOrder(ctx context.Context, orderID, userID string) (domain.Order, error)
	ListOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	// CancelOrder отменяет неоплаченный заказ по запросу владельца.
	CancelOrder(ctx context.Context, orderID, userID, reason string) (domain.Order, error)
	// UpdateOrderStatus: административная смена статуса по графу переходов.
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error)
	// UpdateOrder: административная правка статуса и даты доставки.
	UpdateOrder(ctx context.Context, req UpdateOrderRequest) (domain.Order, error)
	Timeline(ctx context.Context, orderID, userID string) ([]domain.TimelineEvent, error)
}

// PlaceOrderRequest: входные данные оформления заказа.
type PlaceOrderRequest struct {
	UserID    string
	AddressID string
}

// UpdateOrderRequest: административная правка заказа; nil-поля не меняются.
type UpdateOrderRequest struct {
	OrderID      string
	Status       *domain.OrderStatus
	DeliveryDate *time.Time
}

// Dependencies: репозитории и внешние сервисы оркестратора.
// Tasks может быть nil: тогда неудачные побочные эффекты только логируются и пишутся в outbox.
type Dependencies struct {
	Orders    domain.OrderRepository
	Outbox    domain.OutboxRepository
	Timeline  domain.TimelineRepository
	Tasks     domain.TaskRepository
	Inventory domain.InventoryService
	Cart      domain.CartService
}

// Option настраивает оркестратор.
type Option func(*orchestrator)

// WithMetrics включает запись prometheus-метрик саги.
func WithMetrics(m *metrics.SagaMetrics) Option {
	return func(o *orchestrator) { o.metrics = m }
}

// WithKafkaProducer включает публикацию шагов саги в TopicSagaEvents.
func WithKafkaProducer(p *kafka.Producer) Option {
	return func(o *orchestrator) { o.kafkaProducer = p }
}

// WithCallTimeout задаёт таймаут одного обращения к складу или корзине.
func WithCallTimeout(d time.Duration) Option {
	return func(o *orchestrator) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

// WithRetryConfig задаёт повторы записи заказа при конфликте версий.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(o *orchestrator) { o.retry = cfg }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(o *orchestrator) { o.now = now }
}

// WithIDGenerator подменяет генератор идентификаторов заказов и строк.
func WithIDGenerator(newID func() string) Option {
	return func(o *orchestrator) { o.newID = newID }
}

// WithoutFinalizeGuard отключает флаг финализации: повторный FinalizePayment снова
// отправляет списания партий. Нужен только для воспроизведения поведения без флага.
func WithoutFinalizeGuard() Option {
	return func(o *orchestrator) { o.finalizeGuard = false }
}

type orchestrator struct {
	orders        domain.OrderRepository
	outbox        domain.OutboxRepository
	timeline      domain.TimelineRepository
	tasks         domain.TaskRepository
	inventory     domain.InventoryService
	cart          domain.CartService
	logger        *log.Entry
	metrics       *metrics.SagaMetrics
	kafkaProducer *kafka.Producer

	callTimeout   time.Duration
	retry         RetryConfig
	finalizeGuard bool
	now           func() time.Time
	newID         func() string
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора.
func NewOrchestrator(deps Dependencies, logger *log.Entry, opts ...Option) Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "saga")
	}
	o := &orchestrator{
		orders:        deps.Orders,
		outbox:        deps.Outbox,
		timeline:      deps.Timeline,
		tasks:         deps.Tasks,
		inventory:     deps.Inventory,
		cart:          deps.Cart,
		logger:        logger,
		callTimeout:   DefaultCallTimeout,
		retry:         DefaultRetryConfig(),
		finalizeGuard: true,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// call выполняет обращение к внешнему сервису с собственным таймаутом.
// Истечение таймаута означает неизвестный результат, а не отказ.
func (o *orchestrator) call(ctx context.Context, step domain.SagaStep, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	started := time.Now()
	err := fn(callCtx)
	if o.metrics != nil {
		o.metrics.RecordStepDuration(string(step), time.Since(started))
	}
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrOutcomeUnknown) {
		return fmt.Errorf("%w: %s: %w", domain.ErrOutcomeUnknown, step, err)
	}
	return err
}

func (o *orchestrator) sagaStarted(operation string) time.Time {
	if o.metrics != nil {
		o.metrics.RecordSagaStarted(operation)
	}
	return time.Now()
}

func (o *orchestrator) sagaCompleted(operation string, started time.Time) {
	if o.metrics != nil {
		o.metrics.RecordSagaCompleted(operation, time.Since(started))
	}
}

func (o *orchestrator) sagaFailed(operation string, step domain.SagaStep, started time.Time) {
	if o.metrics != nil {
		o.metrics.RecordSagaFailed(operation, string(step), time.Since(started))
	}
}

func (o *orchestrator) emitStatusEvent(ctx context.Context, order *domain.Order, reason string) {
	payload := map[string]any{
		"status":     order.Status,
		"updated_at": order.UpdatedAt.Format(timeLayout),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	o.emitEvent(ctx, order, domain.EventOrderStatusChanged, payload)
}

// emitEvent пишет событие в outbox и timeline заказа. Ошибки записи не прерывают сагу,
// отмена клиентского запроса запись не прерывает.
func (o *orchestrator) emitEvent(ctx context.Context, order *domain.Order, eventType string, payload map[string]any) {
	ctx = context.WithoutCancel(ctx)
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["order_id"] = order.ID
	if _, ok := payload["ts"]; !ok {
		payload["ts"] = o.now().Format(timeLayout)
	}
	fields := log.Fields{"order_id": order.ID, "event": eventType}

	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.WithError(err).WithFields(fields).Error("marshal event failed")
		return
	}

	if o.outbox != nil {
		msg := domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     eventType,
			Payload:       data,
		}
		if _, err := o.outbox.Enqueue(ctx, msg); err != nil {
			o.logger.WithError(err).WithFields(fields).Error("enqueue event failed")
		} else if o.metrics != nil {
			o.metrics.RecordOutboxEvent()
		}
	}

	if o.timeline == nil {
		return
	}
	reason, _ := payload["reason"].(string)
	occurred := o.now()
	if ts, ok := payload["ts"].(string); ok {
		if parsed, parseErr := time.Parse(timeLayout, ts); parseErr == nil {
			occurred = parsed
		}
	}
	event := domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     eventType,
		Status:   order.Status,
		Reason:   reason,
		Occurred: occurred,
	}
	if err := o.timeline.Append(ctx, event); err != nil {
		o.logger.WithError(err).WithFields(fields).Warn("append timeline event failed")
	} else if o.metrics != nil {
		o.metrics.RecordTimelineEvent()
	}
}

// publishSagaEvent публикует событие саги в Kafka (если producer настроен)
func (o *orchestrator) publishSagaEvent(eventType kafka.EventType, orderID string, metadata map[string]any) {
	if o.kafkaProducer == nil {
		return
	}

	event := kafka.NewSagaEvent(eventType, orderID, metadata)
	if err := o.kafkaProducer.PublishEvent(kafka.TopicSagaEvents, orderID, event); err != nil {
		// Kafka опциональна: сага не прерывается.
		o.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   orderID,
		}).Warn("failed to publish saga event to kafka")
	}
}

// enqueueTask ставит неудавшийся вызов внешнего сервиса в очередь сверки.
func (o *orchestrator) enqueueTask(ctx context.Context, orderID string, kind domain.TaskKind, payload any) {
	fields := log.Fields{"order_id": orderID, "task_kind": kind}
	if o.tasks == nil {
		o.logger.WithFields(fields).Warn("downstream task queue is not configured, manual reconciliation required")
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.WithError(err).WithFields(fields).Error("marshal downstream task failed")
		return
	}
	task, err := o.tasks.Enqueue(ctx, domain.DownstreamTask{
		Kind:    kind,
		OrderID: orderID,
		Payload: data,
	})
	if err != nil {
		o.logger.WithError(err).WithFields(fields).Error("enqueue downstream task failed")
		return
	}
	o.logger.WithFields(fields).WithField("task_id", task.ID).Info("downstream task queued")
}

var _ Orchestrator = (*orchestrator)(nil)
