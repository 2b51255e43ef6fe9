package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository создаёт PostgreSQL-реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB()}
}

func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(queryCtx, `
		SELECT id, event_type, payload, occurred_on, processed_on, error, attempt_count
		FROM outbox_events
		WHERE processed_on IS NULL
		ORDER BY occurred_on
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox events: %w", err)
	}
	defer rows.Close()

	return scanOutboxEvents(rows)
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id string) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(queryCtx, `
		UPDATE outbox_events
		SET processed_on = $2, error = ''
		WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
	}
	return requireOutboxRow(res, id)
}

func (r *outboxRepository) RecordFailure(ctx context.Context, id, errMsg string) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(queryCtx, `
		UPDATE outbox_events
		SET error = $2, attempt_count = attempt_count + 1
		WHERE id = $1
	`, id, errMsg)
	if err != nil {
		return fmt.Errorf("record outbox failure: %w", err)
	}
	return requireOutboxRow(res, id)
}

func (r *outboxRepository) MarkExhausted(ctx context.Context, id, errMsg string) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(queryCtx, `
		UPDATE outbox_events
		SET processed_on = $2, error = $3, attempt_count = attempt_count + 1
		WHERE id = $1
	`, id, time.Now().UTC(), errMsg)
	if err != nil {
		return fmt.Errorf("mark outbox event exhausted: %w", err)
	}
	return requireOutboxRow(res, id)
}

func (r *outboxRepository) Requeue(ctx context.Context, id string) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(queryCtx, `
		UPDATE outbox_events
		SET processed_on = NULL, error = '', attempt_count = 0
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("requeue outbox event: %w", err)
	}
	return requireOutboxRow(res, id)
}

func (r *outboxRepository) List(ctx context.Context, filter domain.OutboxFilter) ([]domain.OutboxEvent, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		conditions []string
		args       []any
	)
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, "event_type = $"+strconv.Itoa(len(args)))
	}
	if filter.OnlyPending {
		conditions = append(conditions, "processed_on IS NULL")
	}
	if filter.OnlyExhausted {
		conditions = append(conditions, "processed_on IS NOT NULL AND error <> ''")
	}

	query := `
		SELECT id, event_type, payload, occurred_on, processed_on, error, attempt_count
		FROM outbox_events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY occurred_on DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outbox events: %w", err)
	}
	defer rows.Close()

	return scanOutboxEvents(rows)
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	err := r.db.QueryRowContext(queryCtx, `
		SELECT COUNT(*), MIN(occurred_on)
		FROM outbox_events
		WHERE processed_on IS NULL
	`).Scan(&stats.PendingCount, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("query outbox stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time
	}
	return stats, nil
}

func scanOutboxEvents(rows *sql.Rows) ([]domain.OutboxEvent, error) {
	events := make([]domain.OutboxEvent, 0)
	for rows.Next() {
		var (
			event       domain.OutboxEvent
			processedOn sql.NullTime
		)
		if err := rows.Scan(
			&event.ID, &event.Type, &event.Payload, &event.OccurredOn,
			&processedOn, &event.Error, &event.AttemptCount,
		); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		if processedOn.Valid {
			t := processedOn.Time
			event.ProcessedOn = &t
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return events, nil
}

func requireOutboxRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("outbox rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrOutboxEventNotFound, id)
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
