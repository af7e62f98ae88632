// Package allocation распределяет запрошенное количество по партиям в порядке FIFO по сроку годности.
// Пакет не выполняет ввода-вывода и не меняет входные данные.
package allocation

import (
	"slices"
	"strings"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Allocate строит план распределения requested единиц по партиям.
// Партии сортируются по сроку годности, при равенстве по ID; партии без остатка пропускаются.
// Если остатка не хватает, возвращается *domain.ShortageError и пустой план.
func Allocate(requested int32, lots []domain.Lot) (domain.AllocationPlan, error) {
	if requested <= 0 {
		return domain.AllocationPlan{}, domain.ErrInvalidQuantity
	}

	sorted := slices.Clone(lots)
	slices.SortStableFunc(sorted, func(a, b domain.Lot) int {
		if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	plan := domain.AllocationPlan{Requested: requested}
	remaining := requested
	for _, lot := range sorted {
		if remaining == 0 {
			break
		}
		if lot.QtyAvailable <= 0 {
			continue
		}
		take := min(remaining, lot.QtyAvailable)
		plan.Allocations = append(plan.Allocations, domain.Allocation{LotID: lot.ID, Qty: take})
		remaining -= take
	}

	if remaining > 0 {
		return domain.AllocationPlan{}, &domain.ShortageError{
			Requested: requested,
			Allocated: requested - remaining,
		}
	}
	return plan, nil
}

// ForLine распределяет строку корзины и проставляет в план товар и цену строки.
func ForLine(line domain.CartLine, lots []domain.Lot) (domain.AllocationPlan, error) {
	plan, err := Allocate(line.Qty, lots)
	if err != nil {
		if shortage, ok := err.(*domain.ShortageError); ok {
			shortage.ItemID = line.ItemID
		}
		return domain.AllocationPlan{}, err
	}

	plan.ItemID = line.ItemID
	plan.UnitPriceMinor = line.UnitPriceMinor
	for i := range plan.Allocations {
		plan.Allocations[i].UnitPriceMinor = line.UnitPriceMinor
	}
	return plan, nil
}
