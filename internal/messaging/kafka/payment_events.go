package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging"
)

// NewPaymentEventsHandler возвращает обработчик топика платежей для order-service.
// PaymentSucceeded служит вторым путём доставки финализации: если синхронный вызов из
// payment-service не дошёл, заказ подтвердится по событию. Финализация идемпотентна,
// поэтому повторная доставка безопасна. Битые сообщения помечаются Permanent и уходят в DLQ.
func NewPaymentEventsHandler(finalizer domain.OrderFinalizer, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "payment-events")
	}
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		envelope, err := ParseOutboxEnvelope(message)
		if err != nil {
			return Permanent(err)
		}
		if envelope.EventType != domain.EventPaymentSucceeded {
			return nil
		}

		var event messaging.PaymentEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return Permanent(fmt.Errorf("payment event %s: %w", envelope.ID, err))
		}
		if event.OrderID == "" || event.UserID == "" {
			return Permanent(fmt.Errorf("payment event %s has no order or user", envelope.ID))
		}

		err = finalizer.FinalizePayment(ctx, event.OrderID, event.UserID)
		switch {
		case err == nil:
			logger.WithField("order_id", event.OrderID).Debug("order finalized from payment event")
			return nil
		case isPermanentFinalizeError(err):
			logger.WithError(err).WithField("order_id", event.OrderID).Warn("payment event cannot finalize order")
			return nil
		default:
			return fmt.Errorf("finalize order %s: %w", event.OrderID, err)
		}
	}
}

func isPermanentFinalizeError(err error) bool {
	return errors.Is(err, domain.ErrOrderNotFound) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrInvalidTransition)
}
