package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

const defaultTTL = 24 * time.Hour

// Operation выполняет защищаемую бизнес-операцию и возвращает HTTP-статус
// и тело ответа, пригодные для сохранения и replay.
type Operation func(ctx context.Context) (int, []byte, error)

// Outcome — результат выполнения под защитой ключа идемпотентности.
type Outcome struct {
	// Replayed истинно, если ответ взят из сохранённой записи,
	// а операция не выполнялась.
	Replayed   bool
	StatusCode int
	Body       []byte
}

// Guard реализует insert-first протокол дедупликации: владение ключом
// разыгрывается вставкой записи, а не проверкой её существования, поэтому
// гонка двух одинаковых запросов разрешается в хранилище.
type Guard struct {
	repo   domain.IdempotencyRepository
	logger *log.Entry
	ttl    time.Duration
}

// NewGuard создаёт guard с TTL хранения ключей.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{repo: repo, logger: logger, ttl: ttl}
}

// RequestHash считает отпечаток запроса: метод, путь и тело.
// Повтор ключа с другим отпечатком — перманентный конфликт.
func RequestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{':'})
	h.Write([]byte(path))
	h.Write([]byte{':'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Execute выполняет op не более одного успешного раза на ключ.
// Дубликат завершённого запроса получает сохранённый ответ; дубликат
// выполняющегося — ErrIdempotencyInProgress; повтор после неуспеха
// переоткрывает запись и выполняет операцию заново.
func (g *Guard) Execute(ctx context.Context, key, method, path string, body []byte, op Operation) (Outcome, error) {
	if key == "" {
		return Outcome{}, domain.ErrIdempotencyKeyRequired
	}

	hash := RequestHash(method, path, body)
	now := time.Now().UTC()

	existing, err := g.repo.CreateProcessing(ctx, domain.IdempotencyRecord{
		Key:         key,
		Method:      method,
		Path:        path,
		RequestHash: hash,
		TTLAt:       now.Add(g.ttl),
	})
	switch {
	case err == nil:
		return g.run(ctx, key, op)
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return Outcome{}, err
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		return g.resolveExisting(ctx, key, existing, op)
	default:
		return Outcome{}, fmt.Errorf("claim idempotency key: %w", err)
	}
}

// resolveExisting обрабатывает проигранную вставку по состоянию владельца ключа.
func (g *Guard) resolveExisting(ctx context.Context, key string, existing domain.IdempotencyRecord, op Operation) (Outcome, error) {
	switch existing.Status {
	case domain.IdempotencyStatusDone:
		g.logger.WithField("key", key).Debug("replaying stored response")
		return Outcome{Replayed: true, StatusCode: existing.StatusCode, Body: existing.ResponseBody}, nil

	case domain.IdempotencyStatusProcessing:
		return Outcome{}, domain.ErrIdempotencyInProgress

	case domain.IdempotencyStatusFailed:
		if err := g.repo.Reclaim(ctx, key); err != nil {
			// Гонку за переоткрытие мог выиграть другой повтор
			if errors.Is(err, domain.ErrIdempotencyInProgress) {
				return Outcome{}, domain.ErrIdempotencyInProgress
			}
			if errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
				rec, getErr := g.repo.Get(ctx, key)
				if getErr != nil {
					return Outcome{}, fmt.Errorf("reload idempotency record: %w", getErr)
				}
				if rec.Status == domain.IdempotencyStatusDone {
					return Outcome{Replayed: true, StatusCode: rec.StatusCode, Body: rec.ResponseBody}, nil
				}
				return Outcome{}, domain.ErrIdempotencyInProgress
			}
			return Outcome{}, fmt.Errorf("reclaim idempotency key: %w", err)
		}
		return g.run(ctx, key, op)

	default:
		return Outcome{}, fmt.Errorf("idempotency record %q has unknown status %q", key, existing.Status)
	}
}

// run выполняет операцию владельцем ключа и фиксирует исход.
func (g *Guard) run(ctx context.Context, key string, op Operation) (Outcome, error) {
	status, body, err := op(ctx)
	if err != nil {
		if markErr := g.repo.MarkFailed(ctx, key, body, status); markErr != nil {
			g.logger.WithError(markErr).WithField("key", key).Warn("failed to mark idempotency record failed")
		}
		return Outcome{}, err
	}

	if markErr := g.repo.MarkDone(ctx, key, body, status); markErr != nil {
		// Операция уже выполнена; потеря записи ответа не делает её неуспешной
		g.logger.WithError(markErr).WithField("key", key).Warn("failed to mark idempotency record done")
	}
	return Outcome{StatusCode: status, Body: body}, nil
}
