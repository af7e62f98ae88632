package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе со строками.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking, order.Version содержит ожидаемую версию.
	Save(ctx context.Context, order Order) error
}

// PaymentRepository: хранилище платежей; order_id уникален.
type PaymentRepository interface {
	// CreateIfAbsent вставляет платёж, если для заказа его ещё нет.
	// При created == false возвращается уже существующая запись.
	CreateIfAbsent(ctx context.Context, payment Payment) (stored Payment, created bool, err error)
	Get(ctx context.Context, id string) (Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (Payment, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Payment, error)
	// Save обновляет платёж с проверкой версии, payment.Version содержит ожидаемую версию.
	Save(ctx context.Context, payment Payment) error
}

// TransactionRepository: журнал операций по платежам, только добавление.
type TransactionRepository interface {
	Append(ctx context.Context, tx Transaction) error
	ListByPayment(ctx context.Context, paymentID string) ([]Transaction, error)
}

// LotRepository: хранилище партий на стороне склада.
type LotRepository interface {
	Create(ctx context.Context, lot Lot) error
	Get(ctx context.Context, id string) (Lot, error)
	// ListAvailable возвращает партии с положительным остатком по возрастанию срока годности, затем id.
	ListAvailable(ctx context.Context, itemID string) ([]Lot, error)
	// Decrement атомарно уменьшает остаток, только если его хватает.
	// Повтор с уже применённым Reference ничего не меняет.
	Decrement(ctx context.Context, req DecrementRequest) error
}

// CartRepository: хранилище корзин.
type CartRepository interface {
	Lines(ctx context.Context, userID string) ([]CartLine, error)
	// PutLine добавляет или заменяет строку; qty <= 0 удаляет её.
	PutLine(ctx context.Context, line CartLine) error
	RemoveLine(ctx context.Context, userID, itemID string) error
	Clear(ctx context.Context, userID string) error
}
