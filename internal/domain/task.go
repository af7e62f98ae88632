package domain

import "time"

// TaskKind: тип отложенного вызова внешнего сервиса.
type TaskKind string

const (
	// TaskKindLotDecrement: повторное списание партии после неудачной финализации.
	TaskKindLotDecrement TaskKind = "lot_decrement"
	// TaskKindCartClear: повторная очистка корзины.
	TaskKindCartClear TaskKind = "cart_clear"
)

// TaskStatus: состояние задачи в очереди.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusDone    TaskStatus = "done"
	// TaskStatusDead: попытки исчерпаны, нужна ручная сверка.
	TaskStatusDead TaskStatus = "dead"
)

// DownstreamTask: вызов внешнего сервиса, который не удался во время саги
// и должен быть доставлен повторно.
type DownstreamTask struct {
	ID            string
	Kind          TaskKind
	OrderID       string
	Payload       []byte
	Status        TaskStatus
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LotDecrementPayload: полезная нагрузка задачи TaskKindLotDecrement.
type LotDecrementPayload struct {
	LotID     string `json:"lot_id"`
	Qty       int32  `json:"qty"`
	Reference string `json:"reference"`
}

// CartClearPayload: полезная нагрузка задачи TaskKindCartClear.
type CartClearPayload struct {
	UserID string `json:"user_id"`
}

// TaskStats: размер очереди для метрик.
type TaskStats struct {
	PendingCount int
	DeadCount    int
}
