package domain

import (
	"context"
	"time"
)

// CriticalStockRow — строка отчёта о критических остатках.
type CriticalStockRow struct {
	StoreID      int64
	SkuID        int64
	SkuCode      string
	Available    int32
	ReorderPoint int32
}

// OrdersSummary — агрегат по заказам за период.
type OrdersSummary struct {
	TotalOrders      int
	TotalAmountMinor int64
	ByStatus         map[OrderStatus]int
}

// TopSKURow — строка отчёта о самых продаваемых SKU.
type TopSKURow struct {
	SkuID         int64
	SkuCode       string
	TotalQuantity int64
	TotalMinor    int64
}

// ReportsReader — read-only отчёты поверх текущего состояния.
// Никаких обязательств, кроме «никогда не мутировать».
type ReportsReader interface {
	CriticalStock(ctx context.Context, storeID *int64, limit int) ([]CriticalStockRow, error)
	OrdersSummary(ctx context.Context, storeID *int64, from, to *time.Time) (OrdersSummary, error)
	TopSKUs(ctx context.Context, storeID *int64, from, to *time.Time, limit int) ([]TopSKURow, error)
}
