package domain

import (
	"fmt"
	"strings"
	"time"
)

// Разрешённые переходы. Подтверждение выполняется только финализацией оплаты.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseOrderStatus разбирает строковое представление статуса без учёта регистра.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// CanTransition сообщает, разрешён ли переход from -> to.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionTo переводит заказ в новый статус. Повторная установка текущего статуса не ошибка.
func (o *Order) TransitionTo(to OrderStatus, now time.Time) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if o.Status == to {
		return nil
	}
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

// AdminTransition применяет правку статуса администратором.
// Подтверждение заказа в обход финализации запрещено: у него есть внешние эффекты.
func (o *Order) AdminTransition(to OrderStatus, now time.Time) error {
	if to == OrderStatusConfirmed && o.Status == OrderStatusPending {
		return fmt.Errorf("%w: confirmation requires payment finalization", ErrInvalidTransition)
	}
	return o.TransitionTo(to, now)
}

// MarkFinalized подтверждает заказ и ставит флаг финализации.
// Возвращает false, если заказ уже финализирован: повторный вызов ничего не меняет.
func (o *Order) MarkFinalized(now time.Time) (bool, error) {
	if o.Finalized() {
		return false, nil
	}
	if o.Status != OrderStatusConfirmed {
		if err := o.TransitionTo(OrderStatusConfirmed, now); err != nil {
			return false, err
		}
	}
	ts := now
	o.FinalizedAt = &ts
	o.UpdatedAt = now
	return true, nil
}
