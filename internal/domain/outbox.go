package domain

import "time"

// Типы интеграционных событий, которые сага пишет в outbox.
const (
	EventTypeOrderCreated   = "OrderCreated"
	EventTypeOrderConfirmed = "OrderConfirmed"
	EventTypeOrderCancelled = "OrderCancelled"
	EventTypeStockLow       = "StockLow"
)

// OutboxEvent — строка transactional outbox. Создаётся только в той же транзакции,
// что и бизнес-мутация; диспетчер обновляет её in place, строки не удаляются.
type OutboxEvent struct {
	ID      string
	Type    string
	Payload []byte
	// OccurredOn задаёт порядок выборки (oldest first).
	OccurredOn time.Time
	// ProcessedOn устанавливается диспетчером только после успешной обработки.
	ProcessedOn *time.Time
	// Error хранит текст последней ошибки обработки.
	Error string
	// AttemptCount считает попытки доставки для poison-pill защиты.
	AttemptCount int
}

// Processed сообщает, обработано ли событие.
func (e OutboxEvent) Processed() bool {
	return e.ProcessedOn != nil
}

// OrderCreatedPayload — полезная нагрузка события OrderCreated.
type OrderCreatedPayload struct {
	OrderID          string `json:"order_id"`
	StoreID          int64  `json:"store_id"`
	TotalAmountMinor int64  `json:"total_amount_minor"`
	Status           string `json:"status"`
}

// OrderStatePayload — полезная нагрузка OrderConfirmed / OrderCancelled.
type OrderStatePayload struct {
	OrderID string `json:"order_id"`
}

// StockLowPayload — полезная нагрузка события StockLow.
type StockLowPayload struct {
	StoreID      int64 `json:"store_id"`
	SkuID        int64 `json:"sku_id"`
	Available    int32 `json:"available"`
	ReorderPoint int32 `json:"reorder_point"`
}

// OutboxStats описывает backlog outbox для метрик.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
