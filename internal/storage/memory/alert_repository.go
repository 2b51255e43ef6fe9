package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// alertView адаптирует Store к domain.AlertRepository.
type alertView struct {
	*Store
}

// Alerts возвращает репозиторий стоковых алертов.
func (s *Store) Alerts() domain.AlertRepository {
	return alertView{s}
}

// CreateIfAbsent создаёт алерт, если незакрытого для (storeID, skuID, type)
// ещё нет. Возвращает false без ошибки, если такой уже существует.
func (v alertView) CreateIfAbsent(_ context.Context, alert domain.StockAlert) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, existing := range v.st.alerts {
		if existing.StoreID == alert.StoreID &&
			existing.SkuID == alert.SkuID &&
			existing.Type == alert.Type &&
			existing.Status != domain.AlertStatusResolved {
			return false, nil
		}
	}

	v.st.alerts[alert.ID] = alert
	v.st.alertOrder = append(v.st.alertOrder, alert.ID)
	return true, nil
}

// List возвращает алерты по фильтру, новые первыми.
func (v alertView) List(_ context.Context, filter domain.AlertFilter) ([]domain.StockAlert, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	result := make([]domain.StockAlert, 0)
	for _, id := range v.st.alertOrder {
		alert := v.st.alerts[id]
		if filter.StoreID != nil && alert.StoreID != *filter.StoreID {
			continue
		}
		if filter.Status != nil && alert.Status != *filter.Status {
			continue
		}
		result = append(result, alert)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// SetStatus переводит алерт в указанный статус.
func (v alertView) SetStatus(_ context.Context, id string, status domain.AlertStatus) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	alert, ok := v.st.alerts[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAlertNotFound, id)
	}
	alert.Status = status
	alert.UpdatedAt = time.Now().UTC()
	v.st.alerts[id] = alert
	return nil
}

var _ domain.AlertRepository = alertView{}
