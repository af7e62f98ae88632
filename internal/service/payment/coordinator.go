// Package payment реализует идемпотентную обработку платежей: один платёж на заказ,
// журнал операций и финализацию заказа после успешного списания.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/client/resilience"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const (
	// DefaultChargeTimeout ограничивает обращение к шлюзу.
	DefaultChargeTimeout = 10 * time.Second
	// DefaultFinalizeTimeout ограничивает вызов сервиса заказов.
	DefaultFinalizeTimeout = 5 * time.Second
	// DefaultProcessingLease: сколько захват платежа в PROCESSING считается живым.
	DefaultProcessingLease = 2 * time.Minute
	// DefaultCurrency подставляется, если валюта не указана.
	DefaultCurrency = "USD"

	defaultListLimit = 50
	maxListLimit     = 200
)

// ProcessRequest: запрос на оплату заказа.
type ProcessRequest struct {
	OrderID     string
	UserID      string
	AmountMinor int64
	Currency    string
	Method      string
}

// Dependencies: хранилища и внешние сервисы координатора.
type Dependencies struct {
	Payments     domain.PaymentRepository
	Transactions domain.TransactionRepository
	Outbox       domain.OutboxRepository
	Gateway      domain.PaymentGateway
	Finalizer    domain.OrderFinalizer
	// Orders сверяет владельца, статус и сумму заказа до списания.
	Orders domain.OrderReader
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.SagaMetrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(gen func() string) Option {
	return func(c *Coordinator) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithChargeTimeout задаёт таймаут обращения к шлюзу.
func WithChargeTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.chargeTimeout = d
		}
	}
}

// WithFinalizeTimeout задаёт таймаут финализации заказа.
func WithFinalizeTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.finalizeTimeout = d
		}
	}
}

// WithProcessingLease задаёт срок, после которого зависший захват можно перехватить.
func WithProcessingLease(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.lease = d
		}
	}
}

// Coordinator проводит платежи с гарантией «один успешный платёж на заказ».
type Coordinator struct {
	payments     domain.PaymentRepository
	transactions domain.TransactionRepository
	outbox       domain.OutboxRepository
	gateway      domain.PaymentGateway
	finalizer    domain.OrderFinalizer
	orders       domain.OrderReader

	metrics         *metrics.SagaMetrics
	logger          *log.Entry
	now             func() time.Time
	newID           func() string
	chargeTimeout   time.Duration
	finalizeTimeout time.Duration
	lease           time.Duration
}

// NewCoordinator создаёт координатор платежей.
func NewCoordinator(deps Dependencies, logger *log.Entry, opts ...Option) *Coordinator {
	if logger == nil {
		logger = log.WithField("component", "payment-coordinator")
	}
	c := &Coordinator{
		payments:        deps.Payments,
		transactions:    deps.Transactions,
		outbox:          deps.Outbox,
		gateway:         deps.Gateway,
		finalizer:       deps.Finalizer,
		orders:          deps.Orders,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
		newID:           uuid.NewString,
		chargeTimeout:   DefaultChargeTimeout,
		finalizeTimeout: DefaultFinalizeTimeout,
		lease:           DefaultProcessingLease,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessPayment оплачивает заказ.
//
// Успешный платёж по заказу возвращается как есть без повторного списания. Незавершённый
// платёж захватывается условным обновлением по версии; живой захват другого запроса
// даёт ErrPaymentAlreadyExists. До списания заказ сверяется с сервисом заказов: чужой
// заказ даёт ErrUnauthorized, сумма не равная итогу заказа даёт ErrPaymentAmountMismatch,
// новое списание по заказу не в статусе PENDING даёт ErrInvalidTransition. Отказ шлюза сохраняется как FAILED и возвращается без
// ошибки. Таймаут шлюза оставляет платёж в PROCESSING и возвращает ErrPaymentIndeterminate.
func (c *Coordinator) ProcessPayment(ctx context.Context, req ProcessRequest) (domain.Payment, error) {
	started := c.now()
	c.record(func(m *metrics.SagaMetrics) { m.RecordSagaStarted(metrics.OperationProcessPayment) })
	logger := c.logger.WithFields(log.Fields{"order_id": req.OrderID, "user_id": req.UserID})

	if err := validate(&req); err != nil {
		c.failed(domain.SagaStepValidate, started)
		return domain.Payment{}, err
	}

	order, err := c.loadOrder(ctx, req)
	if err != nil {
		c.failed(domain.SagaStepValidate, started)
		logger.WithError(err).Info("payment request rejected")
		return domain.Payment{}, err
	}

	payment, replay, err := c.claim(ctx, req, order)
	if err != nil {
		c.failed(domain.SagaStepPay, started)
		if errors.Is(err, domain.ErrPaymentAlreadyExists) {
			logger.Info("payment for order is already in progress")
		}
		return domain.Payment{}, err
	}
	if replay {
		logger.WithField("payment_id", payment.ID).Info("payment already succeeded, returning stored result")
		c.completed(started)
		return payment, nil
	}

	logger = logger.WithFields(log.Fields{"payment_id": payment.ID, "transaction_id": payment.TransactionID})
	result, chargeErr := c.charge(ctx, payment)

	switch {
	case chargeErr == nil:
		payment, err = c.succeed(ctx, payment, result)
		if err != nil {
			logger.WithError(err).Error("charge succeeded but payment was not recorded")
			c.failed(domain.SagaStepPay, started)
			return domain.Payment{}, err
		}
		logger.Info("payment succeeded")
		c.finalize(ctx, payment, logger)
		c.completed(started)
		return payment, nil

	case errors.Is(chargeErr, domain.ErrOutcomeUnknown):
		logger.WithError(chargeErr).Warn("payment outcome unknown, leaving payment in processing")
		c.appendTransaction(ctx, payment, domain.TransactionTypePayment, domain.TransactionStatusPending,
			"Payment outcome unknown: "+chargeErr.Error())
		c.failed(domain.SagaStepPay, started)
		return payment, fmt.Errorf("%w: %w", domain.ErrPaymentIndeterminate, chargeErr)

	default:
		payment, err = c.fail(ctx, payment, reasonOf(chargeErr))
		if err != nil {
			c.failed(domain.SagaStepPay, started)
			return domain.Payment{}, err
		}
		logger.WithError(chargeErr).Info("payment failed")
		c.completed(started)
		return payment, nil
	}
}

// loadOrder читает заказ от имени плательщика и сверяет сумму с итогом заказа.
func (c *Coordinator) loadOrder(ctx context.Context, req ProcessRequest) (domain.Order, error) {
	if c.orders == nil {
		return domain.Order{}, errors.New("payment coordinator: order reader is not configured")
	}
	order, err := c.orders.GetOrder(ctx, req.OrderID, req.UserID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order %s: %w", req.OrderID, err)
	}
	if order.UserID != req.UserID {
		return domain.Order{}, domain.ErrUnauthorized
	}
	if req.AmountMinor != order.TotalMinor {
		return domain.Order{}, fmt.Errorf("%w: got %d, order total %d",
			domain.ErrPaymentAmountMismatch, req.AmountMinor, order.TotalMinor)
	}
	return order, nil
}

// awaitsPayment: новое списание допустимо только по заказу в PENDING.
func awaitsPayment(order domain.Order) error {
	if order.Status != domain.OrderStatusPending {
		return fmt.Errorf("%w: order %s is %s", domain.ErrInvalidTransition, order.ID, order.Status)
	}
	return nil
}

// claim находит или заводит платёж и переводит его в PROCESSING с новым transaction_id.
// replay == true: платёж уже успешен и возвращается без изменений.
func (c *Coordinator) claim(ctx context.Context, req ProcessRequest, order domain.Order) (domain.Payment, bool, error) {
	now := c.now()
	existing, err := c.payments.GetByOrderID(ctx, req.OrderID)
	switch {
	case err == nil:
		return c.reclaim(ctx, existing, req, order, now)
	case !errors.Is(err, domain.ErrPaymentNotFound):
		return domain.Payment{}, false, fmt.Errorf("load payment for order %s: %w", req.OrderID, err)
	}
	if err := awaitsPayment(order); err != nil {
		return domain.Payment{}, false, err
	}

	fresh := domain.Payment{
		ID:            c.newID(),
		OrderID:       req.OrderID,
		UserID:        req.UserID,
		AmountMinor:   req.AmountMinor,
		Currency:      req.Currency,
		Status:        domain.PaymentStatusProcessing,
		Method:        req.Method,
		TransactionID: c.newID(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	stored, created, err := c.payments.CreateIfAbsent(ctx, fresh)
	if err != nil {
		return domain.Payment{}, false, fmt.Errorf("create payment for order %s: %w", req.OrderID, err)
	}
	if created {
		return stored, false, nil
	}

	// Параллельный запрос успел вставить платёж первым.
	if stored.UserID != req.UserID {
		return domain.Payment{}, false, domain.ErrUnauthorized
	}
	if stored.Status == domain.PaymentStatusSuccess {
		c.recordPayment(stored.Status)
		return stored, true, nil
	}
	return domain.Payment{}, false, fmt.Errorf("%w: order %s", domain.ErrPaymentAlreadyExists, req.OrderID)
}

func (c *Coordinator) reclaim(ctx context.Context, existing domain.Payment, req ProcessRequest, order domain.Order, now time.Time) (domain.Payment, bool, error) {
	if existing.UserID != req.UserID {
		return domain.Payment{}, false, domain.ErrUnauthorized
	}
	switch existing.Status {
	case domain.PaymentStatusSuccess:
		c.recordPayment(existing.Status)
		return existing, true, nil
	case domain.PaymentStatusRefunded:
		return domain.Payment{}, false, fmt.Errorf("%w: payment %s was refunded", domain.ErrPaymentAlreadyExists, existing.ID)
	case domain.PaymentStatusProcessing:
		if now.Sub(existing.UpdatedAt) < c.lease {
			return domain.Payment{}, false, fmt.Errorf("%w: payment %s is processing", domain.ErrPaymentAlreadyExists, existing.ID)
		}
		c.logger.WithFields(log.Fields{
			"payment_id":     existing.ID,
			"transaction_id": existing.TransactionID,
		}).Warn("processing lease expired, taking over payment")
	}
	if err := awaitsPayment(order); err != nil {
		return domain.Payment{}, false, err
	}

	existing.Status = domain.PaymentStatusProcessing
	existing.TransactionID = c.newID()
	existing.AmountMinor = req.AmountMinor
	existing.Currency = req.Currency
	existing.Method = req.Method
	existing.FailureReason = ""
	existing.UpdatedAt = now
	if err := c.payments.Save(ctx, existing); err != nil {
		if domain.IsVersionConflict(err) {
			return domain.Payment{}, false, fmt.Errorf("%w: payment %s claimed concurrently", domain.ErrPaymentAlreadyExists, existing.ID)
		}
		return domain.Payment{}, false, fmt.Errorf("claim payment %s: %w", existing.ID, err)
	}
	existing.Version++
	return existing, false, nil
}

func (c *Coordinator) charge(ctx context.Context, payment domain.Payment) (domain.ChargeResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.chargeTimeout)
	defer cancel()

	result, err := c.gateway.Charge(callCtx, domain.ChargeRequest{
		OrderID:       payment.OrderID,
		TransactionID: payment.TransactionID,
		AmountMinor:   payment.AmountMinor,
		Currency:      payment.Currency,
		Method:        payment.Method,
	})
	if err != nil && resilience.IsTimeout(err) && !errors.Is(err, domain.ErrOutcomeUnknown) {
		err = fmt.Errorf("%w: %w", domain.ErrOutcomeUnknown, err)
	}
	return result, err
}

func (c *Coordinator) succeed(ctx context.Context, payment domain.Payment, result domain.ChargeResult) (domain.Payment, error) {
	c.appendTransaction(ctx, payment, domain.TransactionTypePayment, domain.TransactionStatusSuccess,
		"Payment processed for order "+payment.OrderID)

	now := c.now()
	payment.Status = domain.PaymentStatusSuccess
	payment.ExternalRef = result.ExternalRef
	payment.PaidAt = &now
	payment.UpdatedAt = now
	if err := c.payments.Save(ctx, payment); err != nil {
		return domain.Payment{}, fmt.Errorf("%w: record successful charge %s: %w", domain.ErrPaymentIndeterminate, payment.ID, err)
	}
	payment.Version++

	c.recordPayment(payment.Status)
	c.emit(ctx, payment, domain.EventPaymentSucceeded, "")
	return payment, nil
}

func (c *Coordinator) fail(ctx context.Context, payment domain.Payment, reason string) (domain.Payment, error) {
	c.appendTransaction(ctx, payment, domain.TransactionTypePayment, domain.TransactionStatusFailed,
		"Payment failed: "+reason)

	payment.Status = domain.PaymentStatusFailed
	payment.FailureReason = reason
	payment.UpdatedAt = c.now()
	if err := c.payments.Save(ctx, payment); err != nil {
		return domain.Payment{}, fmt.Errorf("record failed payment %s: %w", payment.ID, err)
	}
	payment.Version++

	c.recordPayment(payment.Status)
	c.emit(ctx, payment, domain.EventPaymentFailed, reason)
	return payment, nil
}

// finalize подтверждает заказ. Ошибка не отменяет успешный платёж: она уходит в outbox,
// а order-service получит PaymentSucceeded вторым путём.
func (c *Coordinator) finalize(ctx context.Context, payment domain.Payment, logger *log.Entry) {
	if c.finalizer == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.finalizeTimeout)
	defer cancel()

	if err := c.finalizer.FinalizePayment(callCtx, payment.OrderID, payment.UserID); err != nil {
		logger.WithError(err).Warn("order finalization failed after successful payment")
		c.record(func(m *metrics.SagaMetrics) { m.RecordReconciliation("finalize") })
		c.emit(ctx, payment, domain.EventPaymentFinalizeFailed, err.Error())
	}
}

// Refund возвращает успешный платёж целиком.
func (c *Coordinator) Refund(ctx context.Context, paymentID, reason string) (domain.Payment, error) {
	payment, err := c.payments.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment.Status != domain.PaymentStatusSuccess {
		return domain.Payment{}, fmt.Errorf("%w: status %s", domain.ErrPaymentNotRefundable, payment.Status)
	}
	logger := c.logger.WithFields(log.Fields{"payment_id": payment.ID, "order_id": payment.OrderID})

	callCtx, cancel := context.WithTimeout(ctx, c.chargeTimeout)
	defer cancel()
	result, err := c.gateway.Refund(callCtx, payment)
	if err != nil {
		logger.WithError(err).Warn("refund failed")
		c.appendTransaction(ctx, payment, domain.TransactionTypeRefund, domain.TransactionStatusFailed,
			"Refund failed: "+reasonOf(err))
		return domain.Payment{}, fmt.Errorf("refund payment %s: %w", payment.ID, err)
	}

	description := "Refund for payment " + payment.ID
	if reason != "" {
		description += ": " + reason
	}
	c.appendTransaction(ctx, payment, domain.TransactionTypeRefund, domain.TransactionStatusSuccess, description)

	payment.Status = domain.PaymentStatusRefunded
	payment.UpdatedAt = c.now()
	if result.ExternalRef != "" && payment.ExternalRef == "" {
		payment.ExternalRef = result.ExternalRef
	}
	if err := c.payments.Save(ctx, payment); err != nil {
		return domain.Payment{}, fmt.Errorf("record refund %s: %w", payment.ID, err)
	}
	payment.Version++

	logger.Info("payment refunded")
	c.recordPayment(payment.Status)
	c.emit(ctx, payment, domain.EventPaymentRefunded, reason)
	return payment, nil
}

// Get возвращает платёж владельцу.
func (c *Coordinator) Get(ctx context.Context, paymentID, userID string) (domain.Payment, error) {
	payment, err := c.payments.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment.UserID != userID {
		return domain.Payment{}, domain.ErrUnauthorized
	}
	return payment, nil
}

// GetByOrder возвращает платёж заказа владельцу.
func (c *Coordinator) GetByOrder(ctx context.Context, orderID, userID string) (domain.Payment, error) {
	if orderID == "" {
		return domain.Payment{}, domain.ErrOrderIDRequired
	}
	payment, err := c.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment.UserID != userID {
		return domain.Payment{}, domain.ErrUnauthorized
	}
	return payment, nil
}

// ListUser возвращает платежи пользователя, новые первыми.
func (c *Coordinator) ListUser(ctx context.Context, userID string, limit int) ([]domain.Payment, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return c.payments.ListByUser(ctx, userID, limit)
}

// ListTransactions возвращает журнал операций платежа владельцу.
func (c *Coordinator) ListTransactions(ctx context.Context, paymentID, userID string) ([]domain.Transaction, error) {
	if _, err := c.Get(ctx, paymentID, userID); err != nil {
		return nil, err
	}
	return c.transactions.ListByPayment(ctx, paymentID)
}

func (c *Coordinator) appendTransaction(ctx context.Context, payment domain.Payment, typ domain.TransactionType, status domain.TransactionStatus, description string) {
	tx := domain.Transaction{
		ID:          c.newID(),
		PaymentID:   payment.ID,
		Type:        typ,
		AmountMinor: payment.AmountMinor,
		Status:      status,
		Description: description,
		CreatedAt:   c.now(),
	}
	if err := c.transactions.Append(context.WithoutCancel(ctx), tx); err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"payment_id": payment.ID,
			"type":       typ,
			"status":     status,
		}).Error("append payment transaction failed")
	}
}

func (c *Coordinator) emit(ctx context.Context, payment domain.Payment, eventType, reason string) {
	if c.outbox == nil {
		return
	}
	data, err := json.Marshal(messaging.PaymentEvent{
		PaymentID:   payment.ID,
		OrderID:     payment.OrderID,
		UserID:      payment.UserID,
		AmountMinor: payment.AmountMinor,
		Status:      string(payment.Status),
		Reason:      reason,
	})
	if err != nil {
		c.logger.WithError(err).WithField("event", eventType).Error("marshal payment event failed")
		return
	}
	_, err = c.outbox.Enqueue(context.WithoutCancel(ctx), domain.OutboxMessage{
		AggregateType: "payment",
		AggregateID:   payment.ID,
		EventType:     eventType,
		Payload:       data,
	})
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{"payment_id": payment.ID, "event": eventType}).Error("enqueue payment event failed")
		return
	}
	c.record(func(m *metrics.SagaMetrics) { m.RecordOutboxEvent() })
}

func (c *Coordinator) record(fn func(m *metrics.SagaMetrics)) {
	if c.metrics != nil {
		fn(c.metrics)
	}
}

func (c *Coordinator) recordPayment(status domain.PaymentStatus) {
	c.record(func(m *metrics.SagaMetrics) { m.RecordPayment(string(status)) })
}

func (c *Coordinator) completed(started time.Time) {
	c.record(func(m *metrics.SagaMetrics) {
		m.RecordSagaCompleted(metrics.OperationProcessPayment, c.now().Sub(started))
	})
}

func (c *Coordinator) failed(step domain.SagaStep, started time.Time) {
	c.record(func(m *metrics.SagaMetrics) {
		m.RecordSagaFailed(metrics.OperationProcessPayment, string(step), c.now().Sub(started))
	})
}

func validate(req *ProcessRequest) error {
	var errs []error
	if req.OrderID == "" {
		errs = append(errs, domain.ErrOrderIDRequired)
	}
	if req.UserID == "" {
		errs = append(errs, domain.ErrUserRequired)
	}
	if req.AmountMinor <= 0 {
		errs = append(errs, domain.ErrPaymentAmountInvalid)
	}
	if strings.TrimSpace(req.Method) == "" {
		errs = append(errs, domain.ErrPaymentMethodRequired)
	}
	if req.Currency == "" {
		req.Currency = DefaultCurrency
	}
	return errors.Join(errs...)
}

// reasonOf возвращает текст отказа без обёрток доменной ошибки.
func reasonOf(err error) string {
	msg := err.Error()
	for _, prefix := range []string{domain.ErrPaymentDeclined.Error() + ": ", domain.ErrPaymentTemporary.Error() + ": "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}
