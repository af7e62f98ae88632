package saga

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

// DecrementReference: ключ идемпотентности списания строки заказа на складе.
func DecrementReference(orderID, lineID string) string {
	return orderID + "/" + lineID
}

// FinalizePayment подтверждает заказ после успешной оплаты.
//
// Запись подтверждения (статус confirmed + finalized_at) служит точкой фиксации: она выполняется
// первой, с проверкой версии, и атомарно выставляет флаг финализации. Если заказ уже
// финализирован, вызов ничего не делает и списаний не отправляет. После фиксации
// списания партий и очистка корзины выполняются по одному; неудачи не откатывают заказ,
// а уходят в outbox и очередь сверки.
func (o *orchestrator) FinalizePayment(ctx context.Context, orderID, userID string) error {
	started := o.sagaStarted(metrics.OperationFinalizePayment)
	logger := o.logger.WithFields(log.Fields{"order_id": orderID, "user_id": userID})

	if orderID == "" {
		o.sagaFailed(metrics.OperationFinalizePayment, domain.SagaStepValidate, started)
		return domain.ErrOrderIDRequired
	}
	if userID == "" {
		o.sagaFailed(metrics.OperationFinalizePayment, domain.SagaStepValidate, started)
		return domain.ErrUserRequired
	}

	order, first, err := o.confirm(ctx, orderID, userID)
	if err != nil {
		o.sagaFailed(metrics.OperationFinalizePayment, domain.SagaStepConfirm, started)
		return err
	}
	if !first {
		logger.Info("order already finalized, skipping side effects")
		if o.metrics != nil {
			o.metrics.RecordFinalizeReplay()
		}
		o.publishSagaEvent(kafka.EventTypeFinalizeReplayed, orderID, nil)
		o.sagaCompleted(metrics.OperationFinalizePayment, started)
		return nil
	}

	// Заказ подтверждён: побочные эффекты доводятся до конца даже при отмене запроса.
	sideCtx := context.WithoutCancel(ctx)
	failed := o.decrementLots(sideCtx, &order)
	if !o.clearCart(sideCtx, &order) {
		failed++
	}

	o.emitEvent(ctx, &order, domain.EventOrderConfirmed, map[string]any{
		"user_id":           order.UserID,
		"total_minor":       order.TotalMinor,
		"pending_followups": failed,
	})
	o.publishSagaEvent(kafka.EventTypeOrderFinalized, order.ID, map[string]any{
		"user_id":           order.UserID,
		"total_minor":       order.TotalMinor,
		"pending_followups": failed,
	})

	logger.WithField("pending_followups", failed).Info("order finalized")
	o.sagaCompleted(metrics.OperationFinalizePayment, started)
	return nil
}

// confirm выполняет запись подтверждения. first == false означает, что заказ уже был
// финализирован ранее и побочные эффекты выполнять не нужно.
func (o *orchestrator) confirm(ctx context.Context, orderID, userID string) (domain.Order, bool, error) {
	order, changed, err := o.mutateOrder(ctx, orderID, func(order *domain.Order) error {
		if !order.OwnedBy(userID) {
			return domain.ErrUnauthorized
		}
		if order.Status == domain.OrderStatusCancelled {
			return fmt.Errorf("%w: order %s is cancelled", domain.ErrInvalidTransition, order.ID)
		}

		if !o.finalizeGuard {
			// Без флага повторная запись статуса: no-op, а списания отправляются снова.
			if order.Status == domain.OrderStatusConfirmed {
				return errNoChange
			}
			return order.TransitionTo(domain.OrderStatusConfirmed, o.now())
		}

		first, err := order.MarkFinalized(o.now())
		if err != nil {
			return err
		}
		if !first {
			return errNoChange
		}
		return nil
	})

	switch {
	case err == nil && changed:
		o.emitStatusEvent(ctx, &order, "payment finalized")
		return order, true, nil
	case err == nil && !o.finalizeGuard:
		return order, true, nil
	case err == nil:
		return order, false, nil
	}

	if errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrInvalidTransition) {
		return domain.Order{}, false, err
	}

	o.logger.WithError(err).WithFields(log.Fields{
		"order_id": orderID,
		"step":     domain.SagaStepConfirm,
		"event":    domain.EventFinalizeConfirmFailed,
	}).Error("FinalizeConfirmFailed: order confirmation was not persisted")
	o.emitEvent(ctx, &domain.Order{ID: orderID}, domain.EventFinalizeConfirmFailed, map[string]any{
		"user_id": userID,
		"reason":  err.Error(),
	})
	return domain.Order{}, false, fmt.Errorf("%w: %w", domain.ErrOrderPersist, err)
}

// decrementLots отправляет списание по каждой строке заказа и возвращает число неудач.
func (o *orchestrator) decrementLots(ctx context.Context, order *domain.Order) int {
	failed := 0
	for _, line := range order.Lines {
		req := domain.DecrementRequest{
			LotID:     line.LotID,
			Qty:       line.Qty,
			Reference: DecrementReference(order.ID, line.ID),
		}
		err := o.call(ctx, domain.SagaStepDecrement, func(ctx context.Context) error {
			return o.inventory.DecrementLot(ctx, req)
		})
		if err == nil {
			continue
		}
		failed++

		o.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"line_id":  line.ID,
			"lot_id":   line.LotID,
			"qty":      line.Qty,
			"step":     domain.SagaStepDecrement,
		}).Warn("lot decrement failed, queued for reconciliation")
		o.emitEvent(ctx, order, domain.EventLotDecrementFailed, map[string]any{
			"line_id":   line.ID,
			"lot_id":    line.LotID,
			"qty":       line.Qty,
			"reference": req.Reference,
			"reason":    err.Error(),
		})
		if o.metrics != nil {
			o.metrics.RecordReconciliation(string(domain.SagaStepDecrement))
		}
		o.enqueueTask(ctx, order.ID, domain.TaskKindLotDecrement, domain.LotDecrementPayload{
			LotID:     req.LotID,
			Qty:       req.Qty,
			Reference: req.Reference,
		})
	}
	return failed
}

// clearCart очищает корзину владельца заказа; false: очистка ушла в очередь сверки.
func (o *orchestrator) clearCart(ctx context.Context, order *domain.Order) bool {
	err := o.call(ctx, domain.SagaStepCartClear, func(ctx context.Context) error {
		return o.cart.ClearCart(ctx, order.UserID)
	})
	if err == nil {
		return true
	}

	o.logger.WithError(err).WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"step":     domain.SagaStepCartClear,
	}).Warn("cart clear failed, queued for reconciliation")
	o.emitEvent(ctx, order, domain.EventCartClearFailed, map[string]any{
		"user_id": order.UserID,
		"reason":  err.Error(),
	})
	if o.metrics != nil {
		o.metrics.RecordReconciliation(string(domain.SagaStepCartClear))
	}
	o.enqueueTask(ctx, order.ID, domain.TaskKindCartClear, domain.CartClearPayload{UserID: order.UserID})
	return false
}
