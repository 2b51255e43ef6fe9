package domain

import (
	"fmt"
	"time"
)

// AlertStatus описывает жизненный цикл стокового алерта.
type AlertStatus string

const (
	AlertStatusOpen         AlertStatus = "open"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// AlertTypeStockLow — единственный тип алерта, который порождает диспетчер.
const AlertTypeStockLow = "stock_low"

// StockAlert создаётся диспетчером при обработке StockLow-события.
// На пару (storeID, skuID, type) допускается не более одной незакрытой записи;
// инвариант закреплён частичным уникальным индексом в хранилище.
type StockAlert struct {
	ID        string
	StoreID   int64
	SkuID     int64
	Type      string
	Status    AlertStatus
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStockLowAlert формирует открытый алерт по данным StockLow-события.
func NewStockLowAlert(id string, p StockLowPayload, now time.Time) StockAlert {
	return StockAlert{
		ID:      id,
		StoreID: p.StoreID,
		SkuID:   p.SkuID,
		Type:    AlertTypeStockLow,
		Status:  AlertStatusOpen,
		Message: fmt.Sprintf("Critical stock: only %d units left (reorder point: %d)",
			p.Available, p.ReorderPoint),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
