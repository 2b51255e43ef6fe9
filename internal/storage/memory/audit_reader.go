package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// auditView адаптирует Store к domain.AuditReader.
type auditView struct {
	*Store
}

// Audit возвращает read-only доступ к журналу аудита.
func (s *Store) Audit() domain.AuditReader {
	return auditView{s}
}

// List возвращает записи журнала по фильтру, новые первыми.
func (v auditView) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditLog, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	result := make([]domain.AuditLog, 0, len(v.st.audit))
	for _, entry := range v.st.audit {
		if filter.Entity != "" && entry.EntityName != filter.Entity {
			continue
		}
		if filter.Action != "" && string(entry.Action) != filter.Action {
			continue
		}
		result = append(result, entry)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OccurredAt.After(result[j].OccurredAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ domain.AuditReader = auditView{}
