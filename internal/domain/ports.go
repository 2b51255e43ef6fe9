package domain

import (
	"context"
	"time"
)

// SagaTx — операции, доступные внутри одной атомарной транзакции саги.
// Все мутации Order и Inventory проходят только через этот интерфейс;
// откат транзакции не оставляет частичных резервов.
type SagaTx interface {
	StoreExists(ctx context.Context, storeID int64) (bool, error)
	SKU(ctx context.Context, skuID int64) (SKU, error)
	// Inventory возвращает складскую запись и признак её существования.
	Inventory(ctx context.Context, storeID, skuID int64) (InventoryRecord, bool, error)
	// SaveInventory применяет compare-and-swap по Version; устаревший токен
	// приводит к ErrConcurrencyConflict.
	SaveInventory(ctx context.Context, rec InventoryRecord) error
	InsertOrder(ctx context.Context, order Order) error
	Order(ctx context.Context, orderID string) (Order, error)
	UpdateOrderStatus(ctx context.Context, order Order) error
	AppendMovement(ctx context.Context, m InventoryMovement) error
	AppendOutbox(ctx context.Context, e OutboxEvent) error
	AppendAudit(ctx context.Context, a AuditLog) error
}

// SagaStore открывает транзакционную границу саги.
type SagaStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx SagaTx) error) error
}

// OrderFilter ограничивает выборку заказов.
type OrderFilter struct {
	StoreID *int64
	Status  *OrderStatus
	Limit   int
}

// OrderReader — read-only проекция заказов для API.
type OrderReader interface {
	Get(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
}

// InventoryLevel — складская запись, обогащённая данными SKU для отчётности.
type InventoryLevel struct {
	InventoryRecord
	SkuCode string
	SkuName string
}

// InventoryReader — read-only проекция складских остатков.
type InventoryReader interface {
	ListByStore(ctx context.Context, storeID int64) ([]InventoryLevel, error)
}

// StoreReader возвращает список магазинов.
type StoreReader interface {
	ListStores(ctx context.Context) ([]Store, error)
}

// OutboxFilter ограничивает административную выборку событий.
type OutboxFilter struct {
	Type        string
	OnlyPending bool
	// OnlyExhausted выбирает события, помеченные обработанными с ошибкой
	// после исчерпания попыток доставки.
	OnlyExhausted bool
	Limit         int
}

// OutboxRepository управляет строками transactional outbox.
// Запись новых событий происходит только через SagaTx.AppendOutbox.
type OutboxRepository interface {
	// PullPending возвращает до limit необработанных событий, oldest first.
	PullPending(ctx context.Context, limit int) ([]OutboxEvent, error)
	// MarkProcessed помечает событие обработанным и очищает ошибку.
	MarkProcessed(ctx context.Context, id string) error
	// RecordFailure фиксирует ошибку и инкрементирует счётчик попыток,
	// оставляя событие в очереди для redelivery.
	RecordFailure(ctx context.Context, id, errMsg string) error
	// MarkExhausted помечает событие обработанным с сохранением ошибки
	// после исчерпания бюджета попыток.
	MarkExhausted(ctx context.Context, id, errMsg string) error
	// Requeue возвращает событие в очередь: сбрасывает processedOn, ошибку и попытки.
	Requeue(ctx context.Context, id string) error
	List(ctx context.Context, filter OutboxFilter) ([]OutboxEvent, error)
	Stats(ctx context.Context) (OutboxStats, error)
}

// AlertFilter ограничивает выборку стоковых алертов.
type AlertFilter struct {
	StoreID *int64
	Status  *AlertStatus
	Limit   int
}

// AlertRepository хранит стоковые алерты.
type AlertRepository interface {
	// CreateIfAbsent создаёт алерт, если незакрытого для (storeID, skuID, type)
	// ещё нет. Возвращает false без ошибки, если такой уже существует.
	CreateIfAbsent(ctx context.Context, alert StockAlert) (bool, error)
	List(ctx context.Context, filter AlertFilter) ([]StockAlert, error)
	SetStatus(ctx context.Context, id string, status AlertStatus) error
}

// IdempotencyRepository хранит состояние обработки запросов по Idempotency-Key.
type IdempotencyRepository interface {
	// CreateProcessing вставляет запись в статусе processing. Уникальность
	// ключа — механизм взаимного исключения: проигравшая вставка получает
	// ErrIdempotencyKeyAlreadyExists (или ErrIdempotencyHashMismatch) вместе
	// с существующей записью.
	CreateProcessing(ctx context.Context, rec IdempotencyRecord) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, statusCode int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, statusCode int) error
	// Reclaim переводит запись failed → processing, открывая повтор операции
	// с тем же ключом. Для записей в других статусах возвращает
	// ErrIdempotencyInProgress либо ErrIdempotencyKeyAlreadyExists.
	Reclaim(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// EventPublisher доставляет интеграционное событие внешнему брокеру.
type EventPublisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// AuditReader — read-only доступ к журналу аудита.
type AuditReader interface {
	List(ctx context.Context, filter AuditFilter) ([]AuditLog, error)
}

// AuditFilter ограничивает выборку журнала аудита.
type AuditFilter struct {
	Entity string
	Action string
	Limit  int
}
