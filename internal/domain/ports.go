package domain

import (
	"context"
	"time"
)

// InventoryService описывает обращения к сервису склада.
type InventoryService interface {
	// GetAvailableLots возвращает партии товара с положительным остатком, по возрастанию срока годности.
	GetAvailableLots(ctx context.Context, itemID string) ([]Lot, error)
	// DecrementLot атомарно списывает остаток партии или возвращает ErrInsufficientLotQuantity.
	DecrementLot(ctx context.Context, req DecrementRequest) error
}

// CartService описывает обращения к сервису корзины.
type CartService interface {
	GetCartLines(ctx context.Context, userID string) ([]CartLine, error)
	ClearCart(ctx context.Context, userID string) error
}

// PaymentGateway: внешний платёжный провайдер.
type PaymentGateway interface {
	// Charge списывает деньги. Отказ провайдера возвращается как ErrPaymentDeclined.
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	// Refund возвращает ранее списанную сумму.
	Refund(ctx context.Context, payment Payment) (ChargeResult, error)
}

// OrderFinalizer: финализация заказа после успешной оплаты (вызов сервиса заказов).
type OrderFinalizer interface {
	FinalizePayment(ctx context.Context, orderID, userID string) error
}

// OrderReader читает заказ от имени пользователя. Чужой заказ даёт ErrUnauthorized,
// отсутствующий: ErrOrderNotFound.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID, userID string) (Order, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, statusCode int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, statusCode int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// TaskRepository: очередь повторной доставки вызовов внешних сервисов.
type TaskRepository interface {
	Enqueue(ctx context.Context, task DownstreamTask) (DownstreamTask, error)
	// PullDue возвращает задачи в статусе pending, у которых наступило время попытки.
	PullDue(ctx context.Context, now time.Time, limit int) ([]DownstreamTask, error)
	MarkDone(ctx context.Context, id string) error
	// Reschedule увеличивает счётчик попыток и переносит следующую попытку.
	Reschedule(ctx context.Context, id string, next time.Time, lastErr string) error
	MarkDead(ctx context.Context, id string, lastErr string) error
	Stats(ctx context.Context) (TaskStats, error)
}

// SagaStep задаёт константы шагов для метрик/логов.
type SagaStep string

const (
	SagaStepValidate  SagaStep = "validate"
	SagaStepAllocate  SagaStep = "allocate"
	SagaStepPersist   SagaStep = "persist"
	SagaStepConfirm   SagaStep = "confirm"
	SagaStepDecrement SagaStep = "decrement"
	SagaStepCartClear SagaStep = "cart_clear"
	SagaStepPay       SagaStep = "pay"
	SagaStepRefund    SagaStep = "refund"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStatus: стадия доставки outbox-сообщения. Из pending сообщение переходит
// в sent или failed и больше не меняется.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// Типы событий outbox, по которым строится сверка.
const (
	EventOrderPlaced           = "OrderPlaced"
	EventOrderConfirmed        = "OrderConfirmed"
	EventOrderStatusChanged    = "OrderStatusChanged"
	EventOrderUpdated          = "OrderUpdated"
	EventLotDecrementFailed    = "LotDecrementFailed"
	EventCartClearFailed       = "CartClearFailed"
	EventFinalizeConfirmFailed = "FinalizeConfirmFailed"
	EventDownstreamTaskDead    = "DownstreamTaskDead"
	EventPaymentSucceeded      = "PaymentSucceeded"
	EventPaymentFailed         = "PaymentFailed"
	EventPaymentFinalizeFailed = "PaymentFinalizeFailed"
	EventPaymentRefunded       = "PaymentRefunded"
)
