package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

type idempotencyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.DB()}
}

// CreateProcessing разыгрывает владение ключом через INSERT: победитель
// получает запись в статусе processing, проигравший — существующую запись
// вместе с ошибкой о занятом ключе или несовпавшем отпечатке запроса.
func (r *idempotencyRepository) CreateProcessing(ctx context.Context, rec domain.IdempotencyRecord) (domain.IdempotencyRecord, error) {
	rec.Key = strings.TrimSpace(rec.Key)
	rec.RequestHash = strings.TrimSpace(rec.RequestHash)

	if rec.Key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if rec.RequestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if rec.TTLAt.IsZero() {
		rec.TTLAt = now.Add(24 * time.Hour)
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(queryCtx, `
		INSERT INTO idempotency_keys (
			key, method, path, request_hash, response_body, status_code, status, ttl_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, NULL, 0, $5, $6, $7, $8)
	`,
		rec.Key, rec.Method, rec.Path, rec.RequestHash,
		string(domain.IdempotencyStatusProcessing), rec.TTLAt, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := r.Get(ctx, rec.Key)
			if getErr != nil {
				return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
			}
			if existing.RequestHash != rec.RequestHash {
				return existing, domain.ErrIdempotencyHashMismatch
			}
			return existing, domain.ErrIdempotencyKeyAlreadyExists
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}

	rec.Status = domain.IdempotencyStatusProcessing
	rec.ResponseBody = nil
	rec.StatusCode = 0
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return rec, nil
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		record    domain.IdempotencyRecord
		statusRaw string
	)
	err := r.db.QueryRowContext(queryCtx, `
		SELECT key, method, path, request_hash, response_body, status_code, status, ttl_at, created_at, updated_at
		FROM idempotency_keys
		WHERE key = $1
	`, key).Scan(
		&record.Key, &record.Method, &record.Path, &record.RequestHash,
		&record.ResponseBody, &record.StatusCode, &statusRaw,
		&record.TTLAt, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IdempotencyRecord{}, fmt.Errorf("%w: %s", domain.ErrIdempotencyKeyNotFound, key)
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}

	record.Status = domain.IdempotencyStatus(statusRaw)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency record %q has unknown status %q", key, statusRaw)
	}
	return record, nil
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, statusCode int) error {
	return r.finish(ctx, key, responseBody, statusCode, domain.IdempotencyStatusDone)
}

func (r *idempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, statusCode int) error {
	return r.finish(ctx, key, responseBody, statusCode, domain.IdempotencyStatusFailed)
}

func (r *idempotencyRepository) finish(ctx context.Context, key string, responseBody []byte, statusCode int, status domain.IdempotencyStatus) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(queryCtx, `
		UPDATE idempotency_keys
		SET response_body = $2, status_code = $3, status = $4, updated_at = NOW()
		WHERE key = $1
	`, key, responseBody, statusCode, string(status))
	if err != nil {
		return fmt.Errorf("finish idempotency record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrIdempotencyKeyNotFound, key)
	}
	return nil
}

// Reclaim переоткрывает только записи в статусе failed; CAS по статусу
// разрешает гонку между несколькими повторами одного ключа.
func (r *idempotencyRepository) Reclaim(ctx context.Context, key string) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(queryCtx, `
		UPDATE idempotency_keys
		SET status = $2, response_body = NULL, status_code = 0, updated_at = NOW()
		WHERE key = $1 AND status = $3
	`, key, string(domain.IdempotencyStatusProcessing), string(domain.IdempotencyStatusFailed))
	if err != nil {
		return fmt.Errorf("reclaim idempotency record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	existing, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	switch existing.Status {
	case domain.IdempotencyStatusProcessing:
		return domain.ErrIdempotencyInProgress
	case domain.IdempotencyStatusDone:
		return domain.ErrIdempotencyKeyAlreadyExists
	default:
		return domain.ErrIdempotencyInProgress
	}
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	if before.IsZero() {
		before = time.Now().UTC()
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(queryCtx, `
		DELETE FROM idempotency_keys
		WHERE key IN (
			SELECT key FROM idempotency_keys
			WHERE ttl_at <= $1
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idempotency rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
