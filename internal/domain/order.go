package domain

import "time"

// OrderStatus описывает жизненный цикл розничного заказа.
type OrderStatus string

const (
	// OrderStatusDraft объявлен в модели, но ни одна операция его не порождает.
	// Статус сохранён для совместимости схемы; переходов из него не определено.
	OrderStatusDraft OrderStatus = "draft"
	// OrderStatusReserved — товар зарезервирован, заказ ждёт подтверждения или отмены.
	OrderStatusReserved OrderStatus = "reserved"
	// OrderStatusConfirmed — резерв превращён в списание; терминальный статус.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusCancelled — резерв снят; терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к закрытому множеству значений.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusDraft, OrderStatusReserved, OrderStatusConfirmed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, допускает ли статус дальнейшие переходы.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusCancelled
}

// CanTransitionTo валидирует переход (from, to) по закрытой таблице переходов.
// Разрешены только reserved → confirmed и reserved → cancelled.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s != OrderStatusReserved {
		return false
	}
	return next == OrderStatusConfirmed || next == OrderStatusCancelled
}

// OrderItem представляет одну позицию заказа. Позиции неизменяемы после создания:
// цена фиксируется в момент резервирования.
type OrderItem struct {
	ID             string
	OrderID        string
	SkuID          int64
	Quantity       int32
	UnitPriceMinor int64
	SubtotalMinor  int64
	CreatedAt      time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID               string
	StoreID          int64
	Status           OrderStatus
	TotalAmountMinor int64
	Items            []OrderItem
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ValidateInvariants проверяет арифметику заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusInvalid)
	}

	var calc int64
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.SubtotalMinor != int64(item.Quantity)*item.UnitPriceMinor {
			errs = append(errs, ErrSubtotalMismatch)
		}
		calc += item.SubtotalMinor
	}
	if calc != o.TotalAmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
