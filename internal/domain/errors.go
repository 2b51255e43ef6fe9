package domain

import "errors"

var (
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если зафиксированная цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия subtotal позиции произведению qty * price.
	ErrSubtotalMismatch = errors.New("item subtotal does not match quantity * unit price")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка значения статуса вне закрытого множества.
	ErrOrderStatusInvalid = errors.New("order status is not a known value")

	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrStoreNotFound возвращается при ссылке на несуществующий магазин.
	ErrStoreNotFound = errors.New("store not found")
	// ErrSKUNotFound возвращается при ссылке на несуществующий SKU.
	ErrSKUNotFound = errors.New("sku not found")
	// ErrAlertNotFound возвращается, если стоковый алерт не найден.
	ErrAlertNotFound = errors.New("stock alert not found")

	// ErrInsufficientStock — бизнес-ошибка: доступного стока не хватает
	// или складская запись для пары (store, sku) отсутствует.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrReservationUnderflow сигнализирует о нарушении инварианта резерва:
	// попытка снять или списать больше, чем зарезервировано.
	ErrReservationUnderflow = errors.New("reservation underflow")
	// ErrConcurrencyConflict — токен конкурентности складской записи устарел;
	// транзакция откатывается целиком, запрос можно повторить.
	ErrConcurrencyConflict = errors.New("inventory was modified by another transaction")
	// ErrInvalidStateTransition — заказ не в том статусе, который требует операция.
	ErrInvalidStateTransition = errors.New("invalid order state transition")

	// ErrIdempotencyKeyRequired — пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — вставка проиграла гонку: ключ уже занят.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key was used with a different request payload")
	// ErrIdempotencyInProgress — первый запрос с этим ключом ещё обрабатывается.
	ErrIdempotencyInProgress = errors.New("request with this idempotency key is already in progress")

	// ErrOutboxEventNotFound возвращается при обновлении несуществующего события.
	ErrOutboxEventNotFound = errors.New("outbox event not found")
)

// IsConcurrencyConflict проверяет, является ли ошибка конфликтом конкурентности.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
