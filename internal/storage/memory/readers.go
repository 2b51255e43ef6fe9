package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// orderView адаптирует Store к domain.OrderReader.
type orderView struct {
	*Store
}

// Orders возвращает read-only проекцию заказов.
func (s *Store) Orders() domain.OrderReader {
	return orderView{s}
}

// Get возвращает заказ вместе с позициями.
func (v orderView) Get(_ context.Context, id string) (domain.Order, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	order, ok := v.st.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	return order, nil
}

// List возвращает заказы по фильтру, новые первыми.
func (v orderView) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	result := make([]domain.Order, 0, len(v.st.orders))
	for _, order := range v.st.orders {
		if filter.StoreID != nil && order.StoreID != *filter.StoreID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		order.Items = append([]domain.OrderItem(nil), order.Items...)
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ domain.OrderReader = orderView{}

// ListByStore возвращает складские остатки магазина, обогащённые данными SKU.
func (s *Store) ListByStore(_ context.Context, storeID int64) ([]domain.InventoryLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.st.stores[storeID]; !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrStoreNotFound, storeID)
	}

	result := make([]domain.InventoryLevel, 0)
	for key, rec := range s.st.inventory {
		if key.storeID != storeID {
			continue
		}
		level := domain.InventoryLevel{InventoryRecord: rec}
		if sku, ok := s.st.skus[key.skuID]; ok {
			level.SkuCode = sku.Code
			level.SkuName = sku.Name
		}
		result = append(result, level)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SkuID < result[j].SkuID
	})
	return result, nil
}

// ListStores возвращает все магазины, отсортированные по идентификатору.
func (s *Store) ListStores(_ context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Store, 0, len(s.st.stores))
	for _, store := range s.st.stores {
		result = append(result, store)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

var (
	_ domain.InventoryReader = (*Store)(nil)
	_ domain.StoreReader     = (*Store)(nil)
)
