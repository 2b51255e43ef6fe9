package domain

import "time"

// InventoryRecord — складской счётчик пары (магазин, SKU).
// Единственный по-настоящему конкурентный ресурс ядра: все мутации идут через
// сагу и защищены optimistic-locking версией записи.
type InventoryRecord struct {
	StoreID      int64
	SkuID        int64
	OnHand       int32
	Reserved     int32
	ReorderPoint int32
	// Version — токен конкурентности; сравнивается-и-обновляется при записи.
	Version int64
}

// Available возвращает доступное количество: onHand − reserved.
func (r InventoryRecord) Available() int32 {
	return r.OnHand - r.Reserved
}

// Reserve увеличивает резерв на qty, если доступного стока хватает.
func (r *InventoryRecord) Reserve(qty int32) error {
	if qty <= 0 {
		return ErrItemQtyInvalid
	}
	if r.Available() < qty {
		return ErrInsufficientStock
	}
	r.Reserved += qty
	return nil
}

// Release снимает резерв (отмена заказа). OnHand не меняется.
func (r *InventoryRecord) Release(qty int32) error {
	if qty <= 0 {
		return ErrItemQtyInvalid
	}
	if r.Reserved < qty {
		return ErrReservationUnderflow
	}
	r.Reserved -= qty
	return nil
}

// Consume списывает зарезервированный товар (подтверждение заказа):
// onHand и reserved уменьшаются синхронно, доступный сток не меняется.
func (r *InventoryRecord) Consume(qty int32) error {
	if qty <= 0 {
		return ErrItemQtyInvalid
	}
	if r.Reserved < qty || r.OnHand < qty {
		return ErrReservationUnderflow
	}
	r.OnHand -= qty
	r.Reserved -= qty
	return nil
}

// LowStock сообщает, опустился ли доступный сток до точки дозаказа.
func (r InventoryRecord) LowStock() bool {
	return r.Available() <= r.ReorderPoint
}

// MovementType — тип записи в журнале движений склада.
type MovementType string

const (
	MovementReserve MovementType = "reserve"
	MovementConfirm MovementType = "confirm"
	MovementCancel  MovementType = "cancel"
)

// InventoryMovement — append-only запись о каждом изменении резерва.
// Записи никогда не изменяются и не удаляются.
type InventoryMovement struct {
	ID        string
	StoreID   int64
	SkuID     int64
	Type      MovementType
	Quantity  int32
	Reference string
	CreatedAt time.Time
}
