package domain

import (
	"fmt"
	"time"
)

// BuildOrderParams: входные данные сборщика заказа.
type BuildOrderParams struct {
	OrderID   string
	UserID    string
	AddressID string
	Lines     []CartLine
	// Plans[i] соответствует Lines[i].
	Plans []AllocationPlan
	Now   time.Time
	// NewLineID генерирует идентификаторы строк заказа.
	NewLineID func() string
}

// BuildOrder собирает снимок заказа в статусе pending из строк корзины и планов распределения.
// Сборка атомарна: при любой ошибке заказ не возвращается.
// Сумма считается один раз как сумма qty * unit price по всем строкам.
func BuildOrder(p BuildOrderParams) (Order, error) {
	if p.UserID == "" {
		return Order{}, ErrUserRequired
	}
	if p.AddressID == "" {
		return Order{}, ErrAddressRequired
	}
	if len(p.Lines) == 0 {
		return Order{}, ErrCartEmpty
	}
	if len(p.Plans) != len(p.Lines) {
		return Order{}, fmt.Errorf("build order: %d allocation plans for %d cart lines", len(p.Plans), len(p.Lines))
	}
	if p.NewLineID == nil {
		return Order{}, fmt.Errorf("build order: line id generator is required")
	}

	var (
		lines []OrderLine
		total int64
	)
	for i, cartLine := range p.Lines {
		if cartLine.Qty <= 0 {
			return Order{}, fmt.Errorf("%w: item %s", ErrInvalidQuantity, cartLine.ItemID)
		}
		if cartLine.UnitPriceMinor < 0 {
			return Order{}, fmt.Errorf("%w: item %s", ErrItemPriceInvalid, cartLine.ItemID)
		}
		plan := p.Plans[i]
		if plan.ItemID != "" && plan.ItemID != cartLine.ItemID {
			return Order{}, fmt.Errorf("build order: plan for item %s does not match cart line %s", plan.ItemID, cartLine.ItemID)
		}
		if allocated := plan.AllocatedQty(); allocated != cartLine.Qty {
			return Order{}, &ShortageError{ItemID: cartLine.ItemID, Requested: cartLine.Qty, Allocated: allocated}
		}
		for _, a := range plan.Allocations {
			if a.Qty <= 0 {
				return Order{}, fmt.Errorf("%w: allocation from lot %s", ErrInvalidQuantity, a.LotID)
			}
			subtotal := int64(a.Qty) * cartLine.UnitPriceMinor
			lines = append(lines, OrderLine{
				ID:             p.NewLineID(),
				ItemID:         cartLine.ItemID,
				LotID:          a.LotID,
				Qty:            a.Qty,
				UnitPriceMinor: cartLine.UnitPriceMinor,
				SubtotalMinor:  subtotal,
			})
			total += subtotal
		}
	}

	now := p.Now.UTC()
	return Order{
		ID:         p.OrderID,
		UserID:     p.UserID,
		AddressID:  p.AddressID,
		Status:     OrderStatusPending,
		TotalMinor: total,
		Lines:      lines,
		OrderedAt:  now,
		UpdatedAt:  now,
	}, nil
}
