package saga

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func statusPtr(s domain.OrderStatus) *domain.OrderStatus { return &s }

func TestGetOrder_Ownership(t *testing.T) {
	f := newFixture(t)
	f.inventory.AddLots(lot("L1", "A", "2025-01-01", 10))
	order := f.placeOrder(t, "user-1", domain.CartLine{ItemID: "A", Qty: 1, UnitPriceMinor: 100})

	got, err := f.orch.GetOrder(context.Background(), order.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, order.ID, got.ID)

	_, err = f.orch.GetOrder(context.Background(), order.ID, "user-2")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.orch.GetOrder(context.Background(), "", "user-1")
	require.ErrorIs(t, err, domain.ErrOrderIDRequired)
	_, err = f.orch.GetOrder(context.Background(), "missing", "user-1")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	f.inventory.AddLots(lot("L1", "A", "2025-01-01", 100))
	for i := 0; i < 3; i++ {
		f.placeOrder(t, "user-1", domain.CartLine{ItemID: "A", Qty: 1, UnitPriceMinor: 100})
	}
	f.placeOrder(t, "user-2", domain.CartLine{ItemID: "A", Qty: 1, UnitPriceMinor: 100})

	orders, err := f.orch.ListOrders(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, orders, 3)

	orders, err = f.orch.ListOrders(context.Background(), "user-1", 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	_, err = f.orch.ListOrders(context.Background(), "", 10)
	require.ErrorIs(t, err, domain.ErrUserRequired)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	f.inventory.AddLots(lot("L1", "A", "2025-01-01", 10))
	order := f.placeOrder(t, "user-1", domain.CartLine{ItemID: "A", Qty: 1, UnitPriceMinor: 100})

	_, err := f.orch.CancelOrder(context.Background(), order.ID, "user-2", "nope")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	cancelled, err := f.orch.CancelOrder(context.Background(), order.ID, "user-1", "changed my mind")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, cancelled.Status)

	again, err := f.orch.CancelOrder(context.Background(), order.ID, "user-1", "again")
	require.NoError(t, err)
	require.Equal(t, cancelled.Version, again.Version, "repeated cancel is a no-op")
	require.Len(t, f.outbox.ByType(domain.EventOrderStatusChanged), 1)

	events, err := f.orch.Timeline(context.Background(), order.ID, "user-1")
	require.NoError(t, err)
	last := events[len(events)-1]
	require.Equal(t, domain.EventOrderStatusChanged, last.Type)
	require.Equal(t, "changed my mind", last.Reason)
}

func TestCancelOrder_ConfirmedIsRejected(t *testing.T) {
	f := newFixture(t)
	f.inventory.AddLots(lot("L1", "A", "2025-01-01", 10))
	order := f.placeOrder(t, "user-1", domain.CartLine{ItemID: "A", Qty: 1, UnitPriceMinor: 100})
	require.NoError(t, f.orch.FinalizePayment(context.Background(), order.ID, "user-1"))

	_, err := f.orch.CancelOrder(context.Background(), order.ID, "user-1", "too late")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestUpdateOrderStatus_FollowsGraph(t *testing.T) {
	f := newFixture(t)
	f.inventory.AddLots(lot("L1", "A", "2025-01-01", 10))
	order := f.placeOrder(t, "user-1", domain.CartLine{ItemID: "A", Qty: 1, UnitPriceMinor: 100})

	_, err := f.orch.UpdateOrderStatus(context.Background(), order.ID, domain.OrderStatusConfirmed)
	require.ErrorIs(t, err, domain.ErrInvalidTransition, "admin cannot confirm a pending order")

	_, err = f.orch.UpdateOrderStatus(context.Background(), order.ID, domain.OrderStatusShipped)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.orch.UpdateOrderStatus(context.Background(), order.ID, domain.OrderStatus("lost"))
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	require.NoError(t, f.orch.FinalizePayment(context.Background(), order.ID, "user-1"))

	shipped, err := f.orch.UpdateOrderStatus(context.Background(), order.ID, domain.OrderStatusShipped)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusShipped, shipped.Status)

	delivered, err := f.orch.UpdateOrderStatus(context.Background(), order.ID, domain.OrderStatusDelivered)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusDelivered, delivered.Status)
	require.True(t, delivered.Finalized())

	_, err = f.orch.UpdateOrderStatus(context.Background(), order.ID, domain.OrderStatusCancelled)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	same, err := f.orch.UpdateOrderStatus(context.Background(), order.ID, domain.OrderStatusDelivered)
	require.NoError(t, err)
	require.Equal(t, delivered.Version, same.Version)

	require.Len(t, f.outbox.ByType(domain.EventOrderUpdated), 2)
}

func TestUpdateOrder_DeliveryDate(t *testing.T) {
	f := newFixture(t)
	f.inventory.AddLots(lot("L1", "A", "2025-01-01", 10))
	order := f.placeOrder(t, "user-1", domain.CartLine{ItemID: "A", Qty: 1, UnitPriceMinor: 100})

	moscow := time.FixedZone("MSK", 3*60*60)
	date := time.Date(2026, 5, 10, 12, 0, 0, 0, moscow)

	updated, err := f.orch.UpdateOrder(context.Background(), UpdateOrderRequest{OrderID: order.ID, DeliveryDate: &date})
	require.NoError(t, err)
	require.NotNil(t, updated.DeliveryDate)
	require.True(t, updated.DeliveryDate.Equal(date))
	require.Equal(t, time.UTC, updated.DeliveryDate.Location())
	require.Equal(t, domain.OrderStatusPending, updated.Status)

	same, err := f.orch.UpdateOrder(context.Background(), UpdateOrderRequest{OrderID: order.ID, DeliveryDate: &date})
	require.NoError(t, err)
	require.Equal(t, updated.Version, same.Version)

	empty, err := f.orch.UpdateOrder(context.Background(), UpdateOrderRequest{OrderID: order.ID})
	require.NoError(t, err)
	require.Equal(t, updated.Version, empty.Version)

	require.Len(t, f.outbox.ByType(domain.EventOrderUpdated), 1)
	require.Empty(t, f.outbox.ByType(domain.EventOrderStatusChanged))

	_, err = f.orch.UpdateOrder(context.Background(), UpdateOrderRequest{Status: statusPtr(domain.OrderStatusShipped)})
	require.ErrorIs(t, err, domain.ErrOrderIDRequired)
}
