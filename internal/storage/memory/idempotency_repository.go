package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// idempotencyView адаптирует Store к domain.IdempotencyRepository.
type idempotencyView struct {
	*Store
}

// Idempotency возвращает репозиторий ключей идемпотентности.
func (s *Store) Idempotency() domain.IdempotencyRepository {
	return idempotencyView{s}
}

// CreateProcessing вставляет запись в статусе processing. Уже занятый ключ
// возвращается вместе с ошибкой: ErrIdempotencyHashMismatch, если тело запроса
// отличается, иначе ErrIdempotencyKeyAlreadyExists.
func (v idempotencyView) CreateProcessing(_ context.Context, rec domain.IdempotencyRecord) (domain.IdempotencyRecord, error) {
	if rec.Key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if rec.RequestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if existing, ok := v.st.idempotency[rec.Key]; ok {
		if existing.RequestHash != rec.RequestHash {
			return existing, domain.ErrIdempotencyHashMismatch
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	now := time.Now().UTC()
	rec.Status = domain.IdempotencyStatusProcessing
	rec.CreatedAt = now
	rec.UpdatedAt = now
	v.st.idempotency[rec.Key] = rec
	return rec, nil
}

// Get возвращает запись по ключу.
func (v idempotencyView) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	rec, ok := v.st.idempotency[key]
	if !ok {
		return domain.IdempotencyRecord{}, fmt.Errorf("%w: %s", domain.ErrIdempotencyKeyNotFound, key)
	}
	return rec, nil
}

// MarkDone сохраняет успешный ответ для будущих replay.
func (v idempotencyView) MarkDone(_ context.Context, key string, responseBody []byte, statusCode int) error {
	return v.finish(key, responseBody, statusCode, domain.IdempotencyStatusDone)
}

// MarkFailed фиксирует неуспешный исход; повтор с тем же ключом разрешён.
func (v idempotencyView) MarkFailed(_ context.Context, key string, responseBody []byte, statusCode int) error {
	return v.finish(key, responseBody, statusCode, domain.IdempotencyStatusFailed)
}

func (v idempotencyView) finish(key string, responseBody []byte, statusCode int, status domain.IdempotencyStatus) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	rec, ok := v.st.idempotency[key]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrIdempotencyKeyNotFound, key)
	}
	rec.ResponseBody = responseBody
	rec.StatusCode = statusCode
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	v.st.idempotency[key] = rec
	return nil
}

// Reclaim переводит запись failed → processing, открывая повтор операции.
func (v idempotencyView) Reclaim(_ context.Context, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	rec, ok := v.st.idempotency[key]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrIdempotencyKeyNotFound, key)
	}
	switch rec.Status {
	case domain.IdempotencyStatusProcessing:
		return domain.ErrIdempotencyInProgress
	case domain.IdempotencyStatusDone:
		return domain.ErrIdempotencyKeyAlreadyExists
	}

	rec.Status = domain.IdempotencyStatusProcessing
	rec.ResponseBody = nil
	rec.StatusCode = 0
	rec.UpdatedAt = time.Now().UTC()
	v.st.idempotency[key] = rec
	return nil
}

// DeleteExpired удаляет до limit записей с истёкшим TTL и возвращает их число.
func (v idempotencyView) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	deleted := 0
	for key, rec := range v.st.idempotency {
		if rec.TTLAt.After(before) {
			continue
		}
		delete(v.st.idempotency, key)
		deleted++
		if deleted >= limit {
			break
		}
	}
	return deleted, nil
}

var _ domain.IdempotencyRepository = idempotencyView{}
