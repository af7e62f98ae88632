package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUserRequired: отсутствует идентификатор пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// ErrAddressRequired: не указан адрес доставки.
	ErrAddressRequired = errors.New("address_id is required")
	// ErrCartEmpty: корзина пользователя пуста, оформлять нечего.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrInvalidQuantity: количество должно быть строго положительным.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// ErrItemRequired: у строки корзины или партии не указан товар.
	ErrItemRequired = errors.New("item_id is required")
	// ErrItemPriceInvalid: цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("unit price must be non-negative")
	// ErrAmountNegative: отрицательная сумма заказа.
	ErrAmountNegative = errors.New("total_minor must be non-negative")
	// ErrAmountMismatch: сумма заказа не совпадает с суммой строк.
	ErrAmountMismatch = errors.New("order total does not match line subtotals")
	// ErrSubtotalMismatch: подытог строки не равен qty * unit price.
	ErrSubtotalMismatch = errors.New("line subtotal does not match qty * unit price")
	// ErrLinesRequired: заказ без строк.
	ErrLinesRequired = errors.New("order must contain at least one line")
	// ErrInvalidStatus: неизвестный статус заказа.
	ErrInvalidStatus = errors.New("unknown order status")
	// ErrInvalidTransition: переход между статусами не разрешён.
	ErrInvalidTransition = errors.New("order status transition is not allowed")
	// ErrUnauthorized: пользователь не владеет заказом или платежом.
	ErrUnauthorized = errors.New("user does not own the resource")

	// ErrInsufficientStock: партий не хватает на запрошенное количество.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientLotQuantity: атомарное списание партии отклонено, остаток меньше запрошенного.
	ErrInsufficientLotQuantity = errors.New("insufficient quantity in lot")
	// ErrLotNotFound: партия не найдена.
	ErrLotNotFound = errors.New("lot not found")
	// ErrLotExists: партия с таким batch_no уже заведена для товара.
	ErrLotExists = errors.New("lot already exists")

	// ErrOrderIDRequired: отсутствует идентификатор заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderPersist: не удалось зафиксировать подтверждение заказа.
	ErrOrderPersist = errors.New("order confirmation write failed")

	// ErrInventoryTemporary: временная ошибка при обращении к складу, можно повторить попытку.
	ErrInventoryTemporary = errors.New("inventory temporary error")
	// ErrCartTemporary: временная ошибка сервиса корзины.
	ErrCartTemporary = errors.New("cart temporary error")
	// ErrOrderServiceTemporary: сервис заказов недоступен, финализацию можно повторить.
	ErrOrderServiceTemporary = errors.New("order service temporary error")
	// ErrOutcomeUnknown: удалённый вызов не ответил вовремя, результат неизвестен.
	ErrOutcomeUnknown = errors.New("downstream call outcome unknown")

	// ErrPaymentAmountInvalid: сумма платежа должна быть положительной.
	ErrPaymentAmountInvalid = errors.New("payment amount must be greater than zero")
	// ErrPaymentAmountMismatch: сумма платежа не совпадает с итогом заказа.
	ErrPaymentAmountMismatch = errors.New("payment amount does not match order total")
	// ErrPaymentMethodRequired: не указан способ оплаты.
	ErrPaymentMethodRequired = errors.New("payment method is required")
	// ErrPaymentNotFound: платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentAlreadyExists: по заказу уже идёт оплата; клиент может повторить запрос позже.
	ErrPaymentAlreadyExists = errors.New("payment already exists for order")
	// ErrPaymentVersionConflict: платёж изменён параллельным запросом.
	ErrPaymentVersionConflict = errors.New("payment version conflict")
	// ErrPaymentNotRefundable: возврат возможен только для успешного платежа.
	ErrPaymentNotRefundable = errors.New("payment is not refundable")
	// ErrPaymentDeclined: платёж отклонён провайдером (бизнес-ошибка).
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrPaymentIndeterminate: неопределённый статус платежа; требуется reconcile.
	ErrPaymentIndeterminate = errors.New("payment indeterminate state")
	// ErrPaymentTemporary: временная ошибка платёжного провайдера.
	ErrPaymentTemporary = errors.New("payment temporary error")

	// ErrOutboxMessageNotFound: в outbox нет сообщения с таким id.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
	// ErrTaskNotFound: задача downstream-очереди не найдена.
	ErrTaskNotFound = errors.New("downstream task not found")
	// ErrUnknownTaskKind: для типа задачи не зарегистрирован исполнитель.
	ErrUnknownTaskKind = errors.New("unknown downstream task kind")

	// ErrIdempotencyKeyRequired: пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyKeyNotFound: запись по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists: ключ уже зарегистрирован другим запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyRequestHashRequired: не передан хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyHashMismatch: тот же ключ использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
)

// ShortageError описывает нехватку партий для строки корзины.
type ShortageError struct {
	ItemID    string
	Requested int32
	Allocated int32
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: requested %d, available %d", e.ItemID, e.Requested, e.Allocated)
}

// Is позволяет сравнивать ShortageError с ErrInsufficientStock через errors.Is.
func (e *ShortageError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrPaymentVersionConflict)
}

// IsRetryable отвечает, имеет ли смысл повторять вызов внешнего сервиса.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInventoryTemporary) ||
		errors.Is(err, ErrCartTemporary) ||
		errors.Is(err, ErrOrderServiceTemporary) ||
		errors.Is(err, ErrOutcomeUnknown) ||
		errors.Is(err, ErrPaymentTemporary)
}
