package domain

import "time"

// Lot: партия товара со своим сроком годности и остатком.
type Lot struct {
	ID           string
	ItemID       string
	BatchNo      string
	ExpiresAt    time.Time
	QtyAvailable int32
	QtyTotal     int32
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate проверяет поля партии перед сохранением.
func (l *Lot) Validate() []error {
	var errs []error
	if l.ItemID == "" {
		errs = append(errs, ErrItemRequired)
	}
	if l.QtyAvailable < 0 || l.QtyTotal < 0 || l.QtyAvailable > l.QtyTotal {
		errs = append(errs, ErrInvalidQuantity)
	}
	return errs
}

// DecrementRequest: запрос на атомарное списание остатка партии.
type DecrementRequest struct {
	LotID string
	Qty   int32
	// Reference делает списание идемпотентным: повтор с тем же значением не списывает повторно.
	Reference string
}

// CartLine: строка корзины со снимком цены на момент добавления.
type CartLine struct {
	UserID         string
	ItemID         string
	Qty            int32
	UnitPriceMinor int64
	AddedAt        time.Time
}

// SubtotalMinor возвращает стоимость строки.
func (c CartLine) SubtotalMinor() int64 {
	return int64(c.Qty) * c.UnitPriceMinor
}

// Allocation: часть строки корзины, закрываемая одной партией.
type Allocation struct {
	LotID          string
	Qty            int32
	UnitPriceMinor int64
}

// AllocationPlan: упорядоченный план покрытия строки корзины партиями.
// План не сохраняется и не резервирует остаток.
type AllocationPlan struct {
	ItemID         string
	Requested      int32
	UnitPriceMinor int64
	Allocations    []Allocation
}

// AllocatedQty возвращает суммарное распределённое количество.
func (p AllocationPlan) AllocatedQty() int32 {
	var total int32
	for _, a := range p.Allocations {
		total += a.Qty
	}
	return total
}
