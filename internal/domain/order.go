package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ оформлен, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed: оплата подтверждена, остатки списываются.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped: заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered: заказ доставлен.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled: заказ отменён.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderLine: часть заказа, закрываемая одной партией.
type OrderLine struct {
	ID             string
	ItemID         string
	LotID          string
	Qty            int32
	UnitPriceMinor int64
	// SubtotalMinor фиксируется при создании заказа: Qty * UnitPriceMinor.
	SubtotalMinor int64
}

// Order агрегирует состояние заказа и его строки.
type Order struct {
	ID         string
	UserID     string
	AddressID  string
	Status     OrderStatus
	TotalMinor int64
	Lines      []OrderLine
	// DeliveryDate выставляет администратор.
	DeliveryDate *time.Time
	// FinalizedAt выставляется один раз вместе с подтверждением оплаты.
	FinalizedAt *time.Time
	Version     int64
	OrderedAt   time.Time
	UpdatedAt   time.Time
}

// Finalized сообщает, прошёл ли заказ финализацию оплаты.
func (o *Order) Finalized() bool {
	return o.FinalizedAt != nil
}

// OwnedBy проверяет владельца заказа.
func (o *Order) OwnedBy(userID string) bool {
	return userID != "" && o.UserID == userID
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
// Сумма заказа не пересчитывается, только сверяется.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.AddressID == "" {
		errs = append(errs, ErrAddressRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrInvalidStatus)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	var calc int64
	for _, line := range o.Lines {
		if line.Qty <= 0 {
			errs = append(errs, ErrInvalidQuantity)
		}
		if line.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if line.SubtotalMinor != int64(line.Qty)*line.UnitPriceMinor {
			errs = append(errs, ErrSubtotalMismatch)
		}
		calc += line.SubtotalMinor
	}
	if calc != o.TotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// Clone возвращает копию заказа, не разделяющую срезы и указатели с оригиналом.
func (o Order) Clone() Order {
	out := o
	out.Lines = append([]OrderLine(nil), o.Lines...)
	if o.DeliveryDate != nil {
		d := *o.DeliveryDate
		out.DeliveryDate = &d
	}
	if o.FinalizedAt != nil {
		f := *o.FinalizedAt
		out.FinalizedAt = &f
	}
	return out
}
