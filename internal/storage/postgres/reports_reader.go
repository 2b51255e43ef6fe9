package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

type reportsReader struct {
	db *sql.DB
}

// NewReportsReader создаёт PostgreSQL-реализацию ReportsReader.
func NewReportsReader(store *Store) domain.ReportsReader {
	return &reportsReader{db: store.DB()}
}

func (r *reportsReader) CriticalStock(ctx context.Context, storeID *int64, limit int) ([]domain.CriticalStockRow, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT i.store_id, i.sku_id, COALESCE(s.code, ''), i.on_hand - i.reserved, i.reorder_point
		FROM inventory i
		LEFT JOIN skus s ON s.id = i.sku_id
		WHERE i.on_hand - i.reserved <= i.reorder_point`
	var args []any
	if storeID != nil {
		args = append(args, *storeID)
		query += " AND i.store_id = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY i.on_hand - i.reserved, i.sku_id"
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query critical stock: %w", err)
	}
	defer rows.Close()

	result := make([]domain.CriticalStockRow, 0)
	for rows.Next() {
		var row domain.CriticalStockRow
		if err := rows.Scan(&row.StoreID, &row.SkuID, &row.SkuCode, &row.Available, &row.ReorderPoint); err != nil {
			return nil, fmt.Errorf("scan critical stock row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate critical stock rows: %w", err)
	}
	return result, nil
}

func (r *reportsReader) OrdersSummary(ctx context.Context, storeID *int64, from, to *time.Time) (domain.OrdersSummary, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT status, COUNT(*), COALESCE(SUM(total_amount_minor), 0)
		FROM orders
		WHERE 1=1`
	var args []any
	if storeID != nil {
		args = append(args, *storeID)
		query += " AND store_id = $" + strconv.Itoa(len(args))
	}
	if from != nil {
		args = append(args, *from)
		query += " AND created_at >= $" + strconv.Itoa(len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += " AND created_at <= $" + strconv.Itoa(len(args))
	}
	query += " GROUP BY status"

	rows, err := r.db.QueryContext(queryCtx, query, args...)
	if err != nil {
		return domain.OrdersSummary{}, fmt.Errorf("query orders summary: %w", err)
	}
	defer rows.Close()

	summary := domain.OrdersSummary{ByStatus: make(map[domain.OrderStatus]int)}
	for rows.Next() {
		var (
			statusRaw string
			count     int
			amount    int64
		)
		if err := rows.Scan(&statusRaw, &count, &amount); err != nil {
			return domain.OrdersSummary{}, fmt.Errorf("scan orders summary row: %w", err)
		}
		summary.ByStatus[domain.OrderStatus(statusRaw)] = count
		summary.TotalOrders += count
		summary.TotalAmountMinor += amount
	}
	if err := rows.Err(); err != nil {
		return domain.OrdersSummary{}, fmt.Errorf("iterate orders summary rows: %w", err)
	}
	return summary, nil
}

func (r *reportsReader) TopSKUs(ctx context.Context, storeID *int64, from, to *time.Time, limit int) ([]domain.TopSKURow, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT oi.sku_id, COALESCE(s.code, ''), SUM(oi.quantity), SUM(oi.subtotal_minor)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		LEFT JOIN skus s ON s.id = oi.sku_id
		WHERE o.status <> 'cancelled'`
	var args []any
	if storeID != nil {
		args = append(args, *storeID)
		query += " AND o.store_id = $" + strconv.Itoa(len(args))
	}
	if from != nil {
		args = append(args, *from)
		query += " AND o.created_at >= $" + strconv.Itoa(len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += " AND o.created_at <= $" + strconv.Itoa(len(args))
	}
	query += `
		GROUP BY oi.sku_id, s.code
		ORDER BY SUM(oi.quantity) DESC, oi.sku_id`
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query top skus: %w", err)
	}
	defer rows.Close()

	result := make([]domain.TopSKURow, 0)
	for rows.Next() {
		var row domain.TopSKURow
		if err := rows.Scan(&row.SkuID, &row.SkuCode, &row.TotalQuantity, &row.TotalMinor); err != nil {
			return nil, fmt.Errorf("scan top sku row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top sku rows: %w", err)
	}
	return result, nil
}

var _ domain.ReportsReader = (*reportsReader)(nil)
