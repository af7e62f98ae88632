package saga

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/allocation"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

// PlaceOrder читает корзину, распределяет каждую строку по партиям (FIFO по сроку годности)
// и сохраняет заказ в статусе pending. Остатки не резервируются: списание происходит
// только при финализации оплаты. При любой ошибке заказ не сохраняется.
func (o *orchestrator) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.Order, error) {
	started := o.sagaStarted(metrics.OperationPlaceOrder)
	logger := o.logger.WithField("user_id", req.UserID)

	fail := func(step domain.SagaStep, err error) (domain.Order, error) {
		o.sagaFailed(metrics.OperationPlaceOrder, step, started)
		entry := logger.WithError(err).WithField("step", step)
		if isBusinessError(err) {
			entry.Info("place order rejected")
		} else {
			entry.Warn("place order failed")
		}
		return domain.Order{}, err
	}

	if req.UserID == "" {
		return fail(domain.SagaStepValidate, domain.ErrUserRequired)
	}
	if req.AddressID == "" {
		return fail(domain.SagaStepValidate, domain.ErrAddressRequired)
	}

	var lines []domain.CartLine
	err := o.call(ctx, domain.SagaStepValidate, func(ctx context.Context) error {
		var err error
		lines, err = o.cart.GetCartLines(ctx, req.UserID)
		return err
	})
	if err != nil {
		return fail(domain.SagaStepValidate, fmt.Errorf("load cart: %w", err))
	}
	if len(lines) == 0 {
		return fail(domain.SagaStepValidate, domain.ErrCartEmpty)
	}

	plans := make([]domain.AllocationPlan, len(lines))
	for i, line := range lines {
		if line.Qty <= 0 {
			return fail(domain.SagaStepValidate, fmt.Errorf("%w: item %s", domain.ErrInvalidQuantity, line.ItemID))
		}
		var lots []domain.Lot
		err := o.call(ctx, domain.SagaStepAllocate, func(ctx context.Context) error {
			var err error
			lots, err = o.inventory.GetAvailableLots(ctx, line.ItemID)
			return err
		})
		if err != nil {
			return fail(domain.SagaStepAllocate, fmt.Errorf("load lots for item %s: %w", line.ItemID, err))
		}
		plan, err := allocation.ForLine(line, lots)
		if err != nil {
			return fail(domain.SagaStepAllocate, err)
		}
		plans[i] = plan
	}

	order, err := domain.BuildOrder(domain.BuildOrderParams{
		OrderID:   o.newID(),
		UserID:    req.UserID,
		AddressID: req.AddressID,
		Lines:     lines,
		Plans:     plans,
		Now:       o.now(),
		NewLineID: o.newID,
	})
	if err != nil {
		return fail(domain.SagaStepAllocate, err)
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return fail(domain.SagaStepValidate, errors.Join(errs...))
	}

	if err := o.orders.Create(ctx, order); err != nil {
		return fail(domain.SagaStepPersist, fmt.Errorf("persist order: %w", err))
	}

	logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"lines":       len(order.Lines),
		"total_minor": order.TotalMinor,
	}).Info("order placed")

	o.emitEvent(ctx, &order, domain.EventOrderPlaced, map[string]any{
		"user_id":     order.UserID,
		"total_minor": order.TotalMinor,
		"lines":       len(order.Lines),
		"ts":          order.OrderedAt.Format(timeLayout),
	})
	o.publishSagaEvent(kafka.EventTypeOrderPlaced, order.ID, map[string]any{
		"user_id":     order.UserID,
		"total_minor": order.TotalMinor,
	})
	o.sagaCompleted(metrics.OperationPlaceOrder, started)
	return order, nil
}

// isBusinessError: ошибка вызвана данными запроса, а не сбоем инфраструктуры.
func isBusinessError(err error) bool {
	return errors.Is(err, domain.ErrUserRequired) ||
		errors.Is(err, domain.ErrAddressRequired) ||
		errors.Is(err, domain.ErrCartEmpty) ||
		errors.Is(err, domain.ErrInvalidQuantity) ||
		errors.Is(err, domain.ErrItemPriceInvalid) ||
		errors.Is(err, domain.ErrInsufficientStock) ||
		errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrOrderNotFound)
}
