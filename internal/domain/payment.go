package domain

import "time"

// PaymentStatus описывает состояние платежа в системе.
type PaymentStatus string

const (
	// PaymentStatusPending: платёж заведён, но списание не начато.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusProcessing: идёт обращение к платёжному шлюзу.
	PaymentStatusProcessing PaymentStatus = "processing"
	// PaymentStatusSuccess: деньги списаны.
	PaymentStatusSuccess PaymentStatus = "success"
	// PaymentStatusFailed: провайдер отклонил платёж или произошла ошибка.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded: деньги возвращены клиенту.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Payment описывает платёж по заказу. На один заказ: одна запись.
type Payment struct {
	ID            string
	OrderID       string
	UserID        string
	AmountMinor   int64
	Currency      string
	Status        PaymentStatus
	Method        string
	TransactionID string
	// ExternalRef: идентификатор у провайдера, может быть пустым.
	ExternalRef   string
	FailureReason string
	PaidAt        *time.Time
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	if p.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if p.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if p.AmountMinor <= 0 {
		errs = append(errs, ErrPaymentAmountInvalid)
	}
	if p.Method == "" {
		errs = append(errs, ErrPaymentMethodRequired)
	}

	return errs
}

// TransactionType: тип записи в журнале платежей.
type TransactionType string

const (
	TransactionTypePayment    TransactionType = "payment"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// TransactionStatus: итог операции, записанной в журнал.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// Transaction: неизменяемая запись журнала операций по платежу.
type Transaction struct {
	ID          string
	PaymentID   string
	Type        TransactionType
	AmountMinor int64
	Status      TransactionStatus
	Description string
	CreatedAt   time.Time
}

// ChargeRequest: запрос на списание у платёжного шлюза.
type ChargeRequest struct {
	OrderID       string
	TransactionID string
	AmountMinor   int64
	Currency      string
	Method        string
}

// ChargeResult: ответ шлюза на списание или возврат.
type ChargeResult struct {
	ExternalRef string
	Status      PaymentStatus
}
