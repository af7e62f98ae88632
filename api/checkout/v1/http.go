package checkoutv1

import "time"

// Коды ошибок HTTP API склада и корзины.
const (
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeInsufficientQuantity = "INSUFFICIENT_QUANTITY"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeUnavailable          = "SERVICE_UNAVAILABLE"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// APIError: тело ошибки HTTP API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse: конверт ответа с ошибкой.
type ErrorResponse struct {
	Success   bool     `json:"success"`
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

// NewErrorResponse заполняет конверт ошибки.
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: APIError{Code: code, Message: message}}
}

// Lot: партия товара.
type Lot struct {
	ID           string    `json:"id"`
	ItemID       string    `json:"item_id"`
	BatchNo      string    `json:"batch_no,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	QtyAvailable int32     `json:"qty_available"`
	QtyTotal     int32     `json:"qty_total"`
}

// ListLotsResponse: партии товара с положительным остатком, по возрастанию срока годности.
type ListLotsResponse struct {
	Lots []Lot `json:"lots"`
}

// CreateLotRequest заводит партию; пустой ID генерируется сервисом.
type CreateLotRequest struct {
	ID        string    `json:"id,omitempty"`
	ItemID    string    `json:"item_id"`
	BatchNo   string    `json:"batch_no,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Quantity  int32     `json:"quantity"`
}

// DecrementLotRequest: атомарное списание; повтор с тем же reference ничего не списывает.
type DecrementLotRequest struct {
	Quantity  int32  `json:"quantity"`
	Reference string `json:"reference,omitempty"`
}

// CartLine: строка корзины.
type CartLine struct {
	ItemID         string    `json:"item_id"`
	Qty            int32     `json:"qty"`
	UnitPriceMinor int64     `json:"unit_price_minor"`
	AddedAt        time.Time `json:"added_at"`
}

// CartResponse: содержимое корзины пользователя.
type CartResponse struct {
	UserID     string     `json:"user_id"`
	Lines      []CartLine `json:"lines"`
	TotalMinor int64      `json:"total_minor"`
}

// PutCartLineRequest добавляет или заменяет строку; qty <= 0 удаляет её.
type PutCartLineRequest struct {
	Qty            int32 `json:"qty"`
	UnitPriceMinor int64 `json:"unit_price_minor"`
}
