package domain

import (
	"errors"
	"strings"
	"time"
)

// TimelineEvent описывает запись истории заказа: что произошло и в каком статусе заказ остался.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Status   OrderStatus
	Reason   string
	Occurred time.Time
}

// Validate проверяет, что событие привязано к заказу и имеет тип.
func (e TimelineEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.OrderID) == "":
		return errors.New("timeline event: order id is required")
	case strings.TrimSpace(e.Type) == "":
		return errors.New("timeline event: type is required")
	}
	return nil
}
