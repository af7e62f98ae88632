package saga

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/cart"
	"github.com/vladislavdragonenkov/checkout/internal/service/inventory"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	orders    domain.OrderRepository
	outbox    *memory.OutboxRepository
	timeline  domain.TimelineRepository
	tasks     *memory.TaskRepository
	inventory *inventory.MockService
	cart      *cart.MockService
	orch      Orchestrator
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("id-%d", n.Add(1))
	}
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		orders:    memory.NewOrderRepository(),
		outbox:    memory.NewOutboxRepository(),
		timeline:  memory.NewTimelineRepository(),
		tasks:     memory.NewTaskRepository(),
		inventory: inventory.NewMockService(),
		cart:      cart.NewMockService(),
	}
	f.orch = f.build(opts...)
	return f
}

// build собирает оркестратор поверх тех же зависимостей с другими опциями.
func (f *fixture) build(opts ...Option) Orchestrator {
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(sequentialIDs()),
		WithRetryConfig(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}),
	}
	return NewOrchestrator(Dependencies{
		Orders:    f.orders,
		Outbox:    f.outbox,
		Timeline:  f.timeline,
		Tasks:     f.tasks,
		Inventory: f.inventory,
		Cart:      f.cart,
	}, log.WithField("component", "saga-test"), append(base, opts...)...)
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func lot(id, item, expires string, qty int32) domain.Lot {
	return domain.Lot{ID: id, ItemID: item, BatchNo: "B-" + id, ExpiresAt: day(expires), QtyAvailable: qty, QtyTotal: qty}
}

// placeOrder кладёт строки в корзину пользователя и оформляет заказ.
func (f *fixture) placeOrder(t *testing.T, userID string, lines ...domain.CartLine) domain.Order {
	t.Helper()
	f.cart.SetLines(userID, lines...)
	order, err := f.orch.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: userID, AddressID: "addr-1"})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	return order
}

// conflictingOrders возвращает ErrOrderVersionConflict на первые conflicts вызовов Save.
type conflictingOrders struct {
	domain.OrderRepository
	mu        sync.Mutex
	conflicts int
	saveErr   error
	saves     int
}

func (c *conflictingOrders) Save(ctx context.Context, order domain.Order) error {
	c.mu.Lock()
	c.saves++
	if c.saveErr != nil {
		c.mu.Unlock()
		return c.saveErr
	}
	if c.conflicts > 0 {
		c.conflicts--
		c.mu.Unlock()
		return domain.ErrOrderVersionConflict
	}
	c.mu.Unlock()
	return c.OrderRepository.Save(ctx, order)
}

// blockingInventory ждёт отмены контекста при списании.
type blockingInventory struct {
	*inventory.MockService
}

func (b blockingInventory) DecrementLot(ctx context.Context, req domain.DecrementRequest) error {
	_ = b.MockService.DecrementLot(ctx, req)
	<-ctx.Done()
	return ctx.Err()
}
