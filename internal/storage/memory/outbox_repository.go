package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// PullPending возвращает до limit необработанных событий, oldest first.
func (s *Store) PullPending(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	result := make([]domain.OutboxEvent, 0, limit)
	for _, id := range s.st.outboxOrder {
		event := s.st.outbox[id]
		if event.Processed() {
			continue
		}
		result = append(result, event)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OccurredOn.Before(result[j].OccurredOn)
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkProcessed помечает событие обработанным и очищает текст ошибки.
func (s *Store) MarkProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.st.outbox[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOutboxEventNotFound, id)
	}
	now := time.Now().UTC()
	event.ProcessedOn = &now
	event.Error = ""
	s.st.outbox[id] = event
	return nil
}

// RecordFailure фиксирует ошибку доставки, оставляя событие в очереди.
func (s *Store) RecordFailure(_ context.Context, id, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.st.outbox[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOutboxEventNotFound, id)
	}
	event.Error = errMsg
	event.AttemptCount++
	s.st.outbox[id] = event
	return nil
}

// MarkExhausted выводит событие из очереди с сохранением ошибки.
func (s *Store) MarkExhausted(_ context.Context, id, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.st.outbox[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOutboxEventNotFound, id)
	}
	now := time.Now().UTC()
	event.ProcessedOn = &now
	event.Error = errMsg
	event.AttemptCount++
	s.st.outbox[id] = event
	return nil
}

// Requeue возвращает событие в очередь: сбрасывает processedOn, ошибку и попытки.
func (s *Store) Requeue(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.st.outbox[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOutboxEventNotFound, id)
	}
	event.ProcessedOn = nil
	event.Error = ""
	event.AttemptCount = 0
	s.st.outbox[id] = event
	return nil
}

// ListOutbox возвращает события по административному фильтру, новые первыми.
func (s *Store) ListOutbox(_ context.Context, filter domain.OutboxFilter) ([]domain.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.OutboxEvent, 0)
	for _, id := range s.st.outboxOrder {
		event := s.st.outbox[id]
		if filter.Type != "" && event.Type != filter.Type {
			continue
		}
		if filter.OnlyPending && event.Processed() {
			continue
		}
		if filter.OnlyExhausted && (!event.Processed() || event.Error == "") {
			continue
		}
		result = append(result, event)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OccurredOn.After(result[j].OccurredOn)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// OutboxStats возвращает размер и возраст backlog-а.
func (s *Store) OutboxStats(_ context.Context) (domain.OutboxStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.OutboxStats
	for _, id := range s.st.outboxOrder {
		event := s.st.outbox[id]
		if event.Processed() {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || event.OccurredOn.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = event.OccurredOn
		}
	}
	return stats, nil
}

// outboxView адаптирует Store к domain.OutboxRepository: имена List и Stats
// на самом Store заняты другими портами.
type outboxView struct {
	*Store
}

// OutboxRepository возвращает представление хранилища для диспетчера outbox.
func (s *Store) OutboxRepository() domain.OutboxRepository {
	return outboxView{s}
}

func (v outboxView) List(ctx context.Context, filter domain.OutboxFilter) ([]domain.OutboxEvent, error) {
	return v.ListOutbox(ctx, filter)
}

func (v outboxView) Stats(ctx context.Context) (domain.OutboxStats, error) {
	return v.OutboxStats(ctx)
}

var _ domain.OutboxRepository = outboxView{}
