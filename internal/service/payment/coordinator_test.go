package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type finalizerFunc func(ctx context.Context, orderID, userID string) error

func (f finalizerFunc) FinalizePayment(ctx context.Context, orderID, userID string) error {
	return f(ctx, orderID, userID)
}

// orderBook отдаёт заказы так же, как клиент сервиса заказов.
type orderBook struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newOrderBook(orders ...domain.Order) *orderBook {
	b := &orderBook{orders: make(map[string]domain.Order, len(orders))}
	for _, o := range orders {
		b.orders[o.ID] = o
	}
	return b
}

func (b *orderBook) GetOrder(_ context.Context, orderID, userID string) (domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if order.UserID != userID {
		return domain.Order{}, domain.ErrUnauthorized
	}
	return order, nil
}

func (b *orderBook) setStatus(orderID string, status domain.OrderStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	order := b.orders[orderID]
	order.Status = status
	b.orders[orderID] = order
}

func pendingOrder(id string) domain.Order {
	return domain.Order{ID: id, UserID: "user-1", Status: domain.OrderStatusPending, TotalMinor: 3000}
}

type harness struct {
	payments     domain.PaymentRepository
	transactions domain.TransactionRepository
	outbox       *memory.OutboxRepository
	gateway      *MockGateway
	orders       *orderBook

	mu        sync.Mutex
	finalized []string
	finalErr  error

	clock       atomic.Pointer[time.Time]
	coordinator *Coordinator
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		payments:     memory.NewPaymentRepository(),
		transactions: memory.NewTransactionRepository(),
		outbox:       memory.NewOutboxRepository(),
		gateway:      NewMockGateway(),
		orders:       newOrderBook(pendingOrder("ord-1"), pendingOrder("ord-2")),
	}
	now := fixedNow
	h.clock.Store(&now)

	var seq atomic.Int64
	base := []Option{
		WithClock(func() time.Time { return *h.clock.Load() }),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
		WithMetrics(metrics.NewSagaMetricsWithRegisterer(prometheus.NewRegistry())),
	}
	h.coordinator = NewCoordinator(Dependencies{
		Payments:     h.payments,
		Transactions: h.transactions,
		Outbox:       h.outbox,
		Gateway:      h.gateway,
		Orders:       h.orders,
		Finalizer: finalizerFunc(func(_ context.Context, orderID, _ string) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.finalized = append(h.finalized, orderID)
			if h.finalErr != nil {
				return h.finalErr
			}
			h.orders.setStatus(orderID, domain.OrderStatusConfirmed)
			return nil
		}),
	}, nil, append(base, opts...)...)
	return h
}

func (h *harness) advance(d time.Duration) {
	next := h.clock.Load().Add(d)
	h.clock.Store(&next)
}

func (h *harness) finalizeCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.finalized)
}

func request(orderID string) ProcessRequest {
	return ProcessRequest{OrderID: orderID, UserID: "user-1", AmountMinor: 3000, Method: "card"}
}

func TestProcessPayment_Success(t *testing.T) {
	h := newHarness(t)

	payment, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusSuccess, payment.Status)
	require.Equal(t, "ext-charge", payment.ExternalRef)
	require.Equal(t, DefaultCurrency, payment.Currency)
	require.NotNil(t, payment.PaidAt)
	require.NotEmpty(t, payment.TransactionID)

	stored, err := h.payments.GetByOrderID(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, payment.Version, stored.Version)
	require.Equal(t, domain.PaymentStatusSuccess, stored.Status)

	txs, err := h.transactions.ListByPayment(context.Background(), payment.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, domain.TransactionTypePayment, txs[0].Type)
	require.Equal(t, domain.TransactionStatusSuccess, txs[0].Status)
	require.Equal(t, "Payment processed for order ord-1", txs[0].Description)

	require.Equal(t, 1, h.finalizeCalls())
	events := h.outbox.ByType(domain.EventPaymentSucceeded)
	require.Len(t, events, 1)
	var event messaging.PaymentEvent
	require.NoError(t, json.Unmarshal(events[0].Payload, &event))
	require.Equal(t, "ord-1", event.OrderID)
	require.Equal(t, "user-1", event.UserID)
	require.Equal(t, string(domain.PaymentStatusSuccess), event.Status)

	require.Len(t, h.gateway.Charges, 1)
	require.Equal(t, payment.TransactionID, h.gateway.Charges[0].TransactionID)
}

func TestProcessPayment_ReplayAfterSuccess(t *testing.T) {
	h := newHarness(t)

	first, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.NoError(t, err)
	second, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, h.gateway.ChargeCalls(), "replay must not charge again")
	require.Equal(t, 1, h.finalizeCalls())

	all, err := h.payments.ListByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestProcessPayment_ConcurrentFirstCalls(t *testing.T) {
	h := newHarness(t)
	h.gateway.Block = make(chan struct{})

	type outcome struct {
		payment domain.Payment
		err     error
	}
	results := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			p, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
			results <- outcome{p, err}
		}()
	}

	// Один вызов дошёл до шлюза и ждёт, второй должен получить отказ сразу.
	loser := <-results
	require.ErrorIs(t, loser.err, domain.ErrPaymentAlreadyExists)
	close(h.gateway.Block)
	winner := <-results
	require.NoError(t, winner.err)
	require.Equal(t, domain.PaymentStatusSuccess, winner.payment.Status)

	require.Equal(t, 1, h.gateway.ChargeCalls())
	all, err := h.payments.ListByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestProcessPayment_Declined(t *testing.T) {
	h := newHarness(t)
	h.gateway.ChargeErr = fmt.Errorf("%w: card expired", domain.ErrPaymentDeclined)

	payment, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusFailed, payment.Status)
	require.Equal(t, "card expired", payment.FailureReason)
	require.Zero(t, h.finalizeCalls())

	txs, err := h.transactions.ListByPayment(context.Background(), payment.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, domain.TransactionStatusFailed, txs[0].Status)
	require.Equal(t, "Payment failed: card expired", txs[0].Description)
	require.Len(t, h.outbox.ByType(domain.EventPaymentFailed), 1)
	require.Empty(t, h.outbox.ByType(domain.EventPaymentSucceeded))
}

func TestProcessPayment_RetryAfterDeclineReusesRow(t *testing.T) {
	h := newHarness(t)
	h.gateway.ChargeErr = domain.ErrPaymentDeclined

	failed, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusFailed, failed.Status)

	h.gateway.ChargeErr = nil
	retry := request("ord-1")
	retry.Method = "card-2"
	paid, err := h.coordinator.ProcessPayment(context.Background(), retry)
	require.NoError(t, err)

	require.Equal(t, failed.ID, paid.ID)
	require.NotEqual(t, failed.TransactionID, paid.TransactionID, "every attempt gets a new transaction id")
	require.Equal(t, domain.PaymentStatusSuccess, paid.Status)
	require.Equal(t, "card-2", paid.Method)
	require.Empty(t, paid.FailureReason)

	txs, err := h.transactions.ListByPayment(context.Background(), paid.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
}

func TestProcessPayment_TimeoutIsIndeterminate(t *testing.T) {
	h := newHarness(t, WithChargeTimeout(20*time.Millisecond))
	h.gateway.Block = make(chan struct{})
	defer close(h.gateway.Block)

	payment, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.ErrorIs(t, err, domain.ErrPaymentIndeterminate)
	require.ErrorIs(t, err, domain.ErrOutcomeUnknown)
	require.Equal(t, domain.PaymentStatusProcessing, payment.Status)

	stored, err := h.payments.GetByOrderID(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusProcessing, stored.Status)

	txs, err := h.transactions.ListByPayment(context.Background(), payment.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, domain.TransactionStatusPending, txs[0].Status)
	require.Zero(t, h.finalizeCalls())

	// Пока захват жив, повтор отклоняется.
	_, err = h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.ErrorIs(t, err, domain.ErrPaymentAlreadyExists)
}

func TestProcessPayment_ExpiredLeaseIsTakenOver(t *testing.T) {
	h := newHarness(t, WithChargeTimeout(20*time.Millisecond), WithProcessingLease(time.Minute))
	h.gateway.Block = make(chan struct{})

	stuck, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.ErrorIs(t, err, domain.ErrPaymentIndeterminate)

	close(h.gateway.Block)
	h.gateway.Block = nil
	h.advance(2 * time.Minute)

	paid, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.NoError(t, err)
	require.Equal(t, stuck.ID, paid.ID)
	require.Equal(t, domain.PaymentStatusSuccess, paid.Status)
	require.NotEqual(t, stuck.TransactionID, paid.TransactionID)
}

func TestProcessPayment_FinalizeFailureKeepsPayment(t *testing.T) {
	h := newHarness(t)
	h.finalErr = domain.ErrOrderServiceTemporary

	payment, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusSuccess, payment.Status)

	require.Len(t, h.outbox.ByType(domain.EventPaymentSucceeded), 1, "second delivery path is always recorded")
	failed := h.outbox.ByType(domain.EventPaymentFinalizeFailed)
	require.Len(t, failed, 1)
	var event messaging.PaymentEvent
	require.NoError(t, json.Unmarshal(failed[0].Payload, &event))
	require.Contains(t, event.Reason, domain.ErrOrderServiceTemporary.Error())
}

func TestProcessPayment_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := h.coordinator.ProcessPayment(context.Background(), ProcessRequest{})
	require.ErrorIs(t, err, domain.ErrOrderIDRequired)
	require.ErrorIs(t, err, domain.ErrUserRequired)
	require.ErrorIs(t, err, domain.ErrPaymentAmountInvalid)
	require.ErrorIs(t, err, domain.ErrPaymentMethodRequired)
	require.Zero(t, h.gateway.ChargeCalls())
}

func TestProcessPayment_ForeignOrderIsNotCharged(t *testing.T) {
	h := newHarness(t)

	other := request("ord-1")
	other.UserID = "user-2"
	_, err := h.coordinator.ProcessPayment(context.Background(), other)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	require.Zero(t, h.gateway.ChargeCalls())
	_, err = h.payments.GetByOrderID(context.Background(), "ord-1")
	require.ErrorIs(t, err, domain.ErrPaymentNotFound, "no payment row may be created for another user's order")

	// Владелец по-прежнему может оплатить свой заказ.
	payment, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusSuccess, payment.Status)
	require.Equal(t, "user-1", payment.UserID)

	_, err = h.coordinator.ProcessPayment(context.Background(), other)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	require.Equal(t, 1, h.gateway.ChargeCalls())
}

func TestProcessPayment_UnknownOrder(t *testing.T) {
	h := newHarness(t)

	_, err := h.coordinator.ProcessPayment(context.Background(), request("ord-missing"))
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	require.Zero(t, h.gateway.ChargeCalls())
	_, err = h.payments.GetByOrderID(context.Background(), "ord-missing")
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestProcessPayment_AmountMustMatchOrderTotal(t *testing.T) {
	for _, amount := range []int64{1, 2999, 3001} {
		t.Run(fmt.Sprint(amount), func(t *testing.T) {
			h := newHarness(t)
			req := request("ord-1")
			req.AmountMinor = amount

			_, err := h.coordinator.ProcessPayment(context.Background(), req)
			require.ErrorIs(t, err, domain.ErrPaymentAmountMismatch)
			require.Zero(t, h.gateway.ChargeCalls())
			_, err = h.payments.GetByOrderID(context.Background(), "ord-1")
			require.ErrorIs(t, err, domain.ErrPaymentNotFound)
			require.Zero(t, h.finalizeCalls())
		})
	}
}

func TestProcessPayment_OrderNotAwaitingPayment(t *testing.T) {
	h := newHarness(t)
	h.orders.setStatus("ord-1", domain.OrderStatusCancelled)

	_, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.Zero(t, h.gateway.ChargeCalls())
	_, err = h.payments.GetByOrderID(context.Background(), "ord-1")
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestProcessPayment_DeclinedThenCancelledIsNotRecharged(t *testing.T) {
	h := newHarness(t)
	h.gateway.ChargeErr = domain.ErrPaymentDeclined

	failed, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusFailed, failed.Status)

	h.gateway.ChargeErr = nil
	h.orders.setStatus("ord-1", domain.OrderStatusCancelled)
	_, err = h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.Equal(t, 1, h.gateway.ChargeCalls())

	stored, err := h.payments.GetByOrderID(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusFailed, stored.Status)
}

func TestProcessPayment_ReplayAfterOrderConfirmed(t *testing.T) {
	h := newHarness(t)
	first, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.NoError(t, err)

	order, err := h.orders.GetOrder(context.Background(), "ord-1", "user-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, order.Status)

	again, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, 1, h.gateway.ChargeCalls())
}

func TestProcessPayment_RequiresOrderReader(t *testing.T) {
	c := NewCoordinator(Dependencies{
		Payments:     memory.NewPaymentRepository(),
		Transactions: memory.NewTransactionRepository(),
		Gateway:      NewMockGateway(),
	}, nil)

	_, err := c.ProcessPayment(context.Background(), request("ord-1"))
	require.Error(t, err)
}

func TestRefund(t *testing.T) {
	h := newHarness(t)
	payment, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.NoError(t, err)

	refunded, err := h.coordinator.Refund(context.Background(), payment.ID, "customer request")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusRefunded, refunded.Status)
	require.Len(t, h.gateway.Refunds, 1)
	require.Len(t, h.outbox.ByType(domain.EventPaymentRefunded), 1)

	txs, err := h.coordinator.ListTransactions(context.Background(), payment.ID, "user-1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, domain.TransactionTypeRefund, txs[1].Type)
	require.Equal(t, "Refund for payment "+payment.ID+": customer request", txs[1].Description)

	_, err = h.coordinator.Refund(context.Background(), payment.ID, "again")
	require.ErrorIs(t, err, domain.ErrPaymentNotRefundable)

	_, err = h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.ErrorIs(t, err, domain.ErrPaymentAlreadyExists, "refunded order is not charged again")
}

func TestRefund_GatewayError(t *testing.T) {
	h := newHarness(t)
	payment, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.NoError(t, err)

	h.gateway.RefundErr = errors.New("provider down")
	_, err = h.coordinator.Refund(context.Background(), payment.ID, "")
	require.Error(t, err)

	stored, err := h.payments.Get(context.Background(), payment.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusSuccess, stored.Status)

	_, err = h.coordinator.Refund(context.Background(), "missing", "")
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestQueries(t *testing.T) {
	h := newHarness(t)
	first, err := h.coordinator.ProcessPayment(context.Background(), request("ord-1"))
	require.NoError(t, err)
	h.advance(time.Second)
	second, err := h.coordinator.ProcessPayment(context.Background(), request("ord-2"))
	require.NoError(t, err)

	got, err := h.coordinator.Get(context.Background(), first.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
	_, err = h.coordinator.Get(context.Background(), first.ID, "user-2")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	byOrder, err := h.coordinator.GetByOrder(context.Background(), "ord-2", "user-1")
	require.NoError(t, err)
	require.Equal(t, second.ID, byOrder.ID)
	_, err = h.coordinator.GetByOrder(context.Background(), "ord-3", "user-1")
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)

	list, err := h.coordinator.ListUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID, "newest first")

	_, err = h.coordinator.ListTransactions(context.Background(), first.ID, "user-2")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}
