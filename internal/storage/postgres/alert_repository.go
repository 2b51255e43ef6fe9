package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

type alertRepository struct {
	db *sql.DB
}

// NewAlertRepository создаёт PostgreSQL-реализацию AlertRepository.
func NewAlertRepository(store *Store) domain.AlertRepository {
	return &alertRepository{db: store.DB()}
}

// CreateIfAbsent полагается на частичный уникальный индекс по незакрытым
// алертам: проигранная гонка вставки — это не ошибка, а сигнал "уже есть".
func (r *alertRepository) CreateIfAbsent(ctx context.Context, alert domain.StockAlert) (bool, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(queryCtx, `
		INSERT INTO stock_alerts (id, store_id, sku_id, alert_type, status, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, alert.ID, alert.StoreID, alert.SkuID, alert.Type, string(alert.Status),
		alert.Message, alert.CreatedAt, alert.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert stock alert: %w", err)
	}
	return true, nil
}

func (r *alertRepository) List(ctx context.Context, filter domain.AlertFilter) ([]domain.StockAlert, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		conditions []string
		args       []any
	)
	if filter.StoreID != nil {
		args = append(args, *filter.StoreID)
		conditions = append(conditions, "store_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
	}

	query := `
		SELECT id, store_id, sku_id, alert_type, status, message, created_at, updated_at
		FROM stock_alerts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stock alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]domain.StockAlert, 0)
	for rows.Next() {
		var (
			alert     domain.StockAlert
			statusRaw string
		)
		if err := rows.Scan(
			&alert.ID, &alert.StoreID, &alert.SkuID, &alert.Type,
			&statusRaw, &alert.Message, &alert.CreatedAt, &alert.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stock alert: %w", err)
		}
		alert.Status = domain.AlertStatus(statusRaw)
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock alerts: %w", err)
	}
	return alerts, nil
}

func (r *alertRepository) SetStatus(ctx context.Context, id string, status domain.AlertStatus) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(queryCtx, `
		UPDATE stock_alerts
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("update stock alert status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("stock alert rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAlertNotFound, id)
	}
	return nil
}

var _ domain.AlertRepository = (*alertRepository)(nil)
