package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// CriticalStock возвращает складские записи с остатком не выше точки дозаказа.
func (s *Store) CriticalStock(_ context.Context, storeID *int64, limit int) ([]domain.CriticalStockRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CriticalStockRow, 0)
	for key, rec := range s.st.inventory {
		if storeID != nil && key.storeID != *storeID {
			continue
		}
		if !rec.LowStock() {
			continue
		}
		row := domain.CriticalStockRow{
			StoreID:      rec.StoreID,
			SkuID:        rec.SkuID,
			Available:    rec.Available(),
			ReorderPoint: rec.ReorderPoint,
		}
		if sku, ok := s.st.skus[key.skuID]; ok {
			row.SkuCode = sku.Code
		}
		result = append(result, row)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Available == result[j].Available {
			return result[i].SkuID < result[j].SkuID
		}
		return result[i].Available < result[j].Available
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// OrdersSummary агрегирует заказы за период по количеству, сумме и статусам.
func (s *Store) OrdersSummary(_ context.Context, storeID *int64, from, to *time.Time) (domain.OrdersSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.OrdersSummary{ByStatus: make(map[domain.OrderStatus]int)}
	for _, order := range s.st.orders {
		if !orderMatches(order, storeID, from, to) {
			continue
		}
		summary.TotalOrders++
		summary.TotalAmountMinor += order.TotalAmountMinor
		summary.ByStatus[order.Status]++
	}
	return summary, nil
}

// TopSKUs возвращает SKU, отсортированные по проданному количеству.
// Учитываются только заказы, не дошедшие до отмены.
func (s *Store) TopSKUs(_ context.Context, storeID *int64, from, to *time.Time, limit int) ([]domain.TopSKURow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bysku := make(map[int64]*domain.TopSKURow)
	for _, order := range s.st.orders {
		if order.Status == domain.OrderStatusCancelled {
			continue
		}
		if !orderMatches(order, storeID, from, to) {
			continue
		}
		for _, item := range order.Items {
			row, ok := bysku[item.SkuID]
			if !ok {
				row = &domain.TopSKURow{SkuID: item.SkuID}
				if sku, found := s.st.skus[item.SkuID]; found {
					row.SkuCode = sku.Code
				}
				bysku[item.SkuID] = row
			}
			row.TotalQuantity += int64(item.Quantity)
			row.TotalMinor += item.SubtotalMinor
		}
	}

	result := make([]domain.TopSKURow, 0, len(bysku))
	for _, row := range bysku {
		result = append(result, *row)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalQuantity == result[j].TotalQuantity {
			return result[i].SkuID < result[j].SkuID
		}
		return result[i].TotalQuantity > result[j].TotalQuantity
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func orderMatches(order domain.Order, storeID *int64, from, to *time.Time) bool {
	if storeID != nil && order.StoreID != *storeID {
		return false
	}
	if from != nil && order.CreatedAt.Before(*from) {
		return false
	}
	if to != nil && order.CreatedAt.After(*to) {
		return false
	}
	return true
}

var _ domain.ReportsReader = (*Store)(nil)
