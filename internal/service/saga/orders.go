package saga

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (o *orchestrator) GetOrder(ctx context.Context, orderID, userID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	order, err := o.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.OwnedBy(userID) {
		return domain.Order{}, domain.ErrUnauthorized
	}
	return order, nil
}

// ListOrders возвращает заказы пользователя, новые первыми.
func (o *orchestrator) ListOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return o.orders.ListByUser(ctx, userID, limit)
}

// Timeline возвращает историю заказа владельцу.
func (o *orchestrator) Timeline(ctx context.Context, orderID, userID string) ([]domain.TimelineEvent, error) {
	if _, err := o.GetOrder(ctx, orderID, userID); err != nil {
		return nil, err
	}
	if o.timeline == nil {
		return nil, nil
	}
	return o.timeline.List(ctx, orderID)
}

// CancelOrder отменяет заказ владельца. Отмена доступна только до оплаты:
// у подтверждённого заказа уже списаны остатки и деньги.
func (o *orchestrator) CancelOrder(ctx context.Context, orderID, userID, reason string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	order, changed, err := o.mutateOrder(ctx, orderID, func(order *domain.Order) error {
		if !order.OwnedBy(userID) {
			return domain.ErrUnauthorized
		}
		switch order.Status {
		case domain.OrderStatusCancelled:
			return errNoChange
		case domain.OrderStatusPending:
			return order.TransitionTo(domain.OrderStatusCancelled, o.now())
		default:
			return fmt.Errorf("%w: only pending orders can be cancelled by the owner, got %s", domain.ErrInvalidTransition, order.Status)
		}
	})
	if err != nil {
		return domain.Order{}, err
	}
	if !changed {
		return order, nil
	}

	o.logger.WithFields(log.Fields{"order_id": order.ID, "reason": reason}).Info("order cancelled by owner")
	o.emitStatusEvent(ctx, &order, reason)
	o.publishSagaEvent(kafka.EventTypeOrderCancelled, order.ID, map[string]any{
		"user_id": order.UserID,
		"reason":  reason,
	})
	return order, nil
}

// UpdateOrderStatus меняет статус по графу переходов. Подтверждение pending-заказа
// администратором запрещено: оно выполняется только финализацией оплаты.
func (o *orchestrator) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error) {
	return o.UpdateOrder(ctx, UpdateOrderRequest{OrderID: orderID, Status: &status})
}

// UpdateOrder применяет административную правку статуса и/или даты доставки.
// Пустой запрос и установка текущих значений ничего не меняют.
func (o *orchestrator) UpdateOrder(ctx context.Context, req UpdateOrderRequest) (domain.Order, error) {
	if req.OrderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	if req.Status != nil && !req.Status.Valid() {
		return domain.Order{}, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, *req.Status)
	}

	var previous domain.OrderStatus
	order, changed, err := o.mutateOrder(ctx, req.OrderID, func(order *domain.Order) error {
		previous = order.Status
		now := o.now()
		dirty := false

		if req.Status != nil && *req.Status != order.Status {
			if err := order.AdminTransition(*req.Status, now); err != nil {
				return err
			}
			dirty = true
		}
		if req.DeliveryDate != nil && !sameDate(order.DeliveryDate, req.DeliveryDate) {
			d := req.DeliveryDate.UTC()
			order.DeliveryDate = &d
			order.UpdatedAt = now
			dirty = true
		}
		if !dirty {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	if !changed {
		return order, nil
	}

	o.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     previous,
		"to":       order.Status,
	}).Info("order updated by admin")

	if order.Status != previous {
		o.emitStatusEvent(ctx, &order, "")
	}
	payload := map[string]any{"status": order.Status}
	if order.DeliveryDate != nil {
		payload["delivery_date"] = order.DeliveryDate.Format(timeLayout)
	}
	o.emitEvent(ctx, &order, domain.EventOrderUpdated, payload)
	return order, nil
}

func sameDate(current, next *time.Time) bool {
	if current == nil || next == nil {
		return current == next
	}
	return current.Equal(*next)
}
