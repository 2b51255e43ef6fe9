package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// WithinTx открывает транзакцию саги. Ошибка fn откатывает транзакцию
// целиком; commit-ошибка возвращается вызывающему.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.SagaTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin saga tx: %w", err)
	}

	if err := fn(ctx, &sagaTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit saga tx: %w", err)
	}
	return nil
}

var _ domain.SagaStore = (*Store)(nil)

// sagaTx — domain.SagaTx поверх одной SQL-транзакции.
type sagaTx struct {
	tx *sql.Tx
}

func (t *sagaTx) StoreExists(ctx context.Context, storeID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM stores WHERE id = $1)`, storeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check store exists: %w", err)
	}
	return exists, nil
}

func (t *sagaTx) SKU(ctx context.Context, skuID int64) (domain.SKU, error) {
	var sku domain.SKU
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, code, name, price_minor
		FROM skus
		WHERE id = $1
	`, skuID).Scan(&sku.ID, &sku.Code, &sku.Name, &sku.PriceMinor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SKU{}, fmt.Errorf("%w: %d", domain.ErrSKUNotFound, skuID)
		}
		return domain.SKU{}, fmt.Errorf("select sku: %w", err)
	}
	return sku, nil
}

func (t *sagaTx) Inventory(ctx context.Context, storeID, skuID int64) (domain.InventoryRecord, bool, error) {
	var rec domain.InventoryRecord
	err := t.tx.QueryRowContext(ctx, `
		SELECT store_id, sku_id, on_hand, reserved, reorder_point, version
		FROM inventory
		WHERE store_id = $1 AND sku_id = $2
	`, storeID, skuID).Scan(
		&rec.StoreID, &rec.SkuID, &rec.OnHand, &rec.Reserved, &rec.ReorderPoint, &rec.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InventoryRecord{}, false, nil
		}
		return domain.InventoryRecord{}, false, fmt.Errorf("select inventory: %w", err)
	}
	return rec, true, nil
}

// SaveInventory применяет compare-and-swap по version: ноль затронутых строк
// означает, что запись успела измениться, и сага должна откатиться.
func (t *sagaTx) SaveInventory(ctx context.Context, rec domain.InventoryRecord) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE inventory
		SET on_hand = $3, reserved = $4, reorder_point = $5, version = version + 1
		WHERE store_id = $1 AND sku_id = $2 AND version = $6
	`, rec.StoreID, rec.SkuID, rec.OnHand, rec.Reserved, rec.ReorderPoint, rec.Version)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update inventory rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrConcurrencyConflict
	}
	return nil
}

func (t *sagaTx) InsertOrder(ctx context.Context, order domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, store_id, status, total_amount_minor, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, order.ID, order.StoreID, string(order.Status), order.TotalAmountMinor, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, sku_id, quantity, unit_price_minor, subtotal_minor, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, item.ID, order.ID, item.SkuID, item.Quantity, item.UnitPriceMinor, item.SubtotalMinor, item.CreatedAt); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (t *sagaTx) Order(ctx context.Context, orderID string) (domain.Order, error) {
	var (
		order     domain.Order
		statusRaw string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, store_id, status, total_amount_minor, created_at, updated_at
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID).Scan(
		&order.ID, &order.StoreID, &statusRaw, &order.TotalAmountMinor, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	order.Status = domain.OrderStatus(statusRaw)

	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, order_id, sku_id, quantity, unit_price_minor, subtotal_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.SkuID, &item.Quantity,
			&item.UnitPriceMinor, &item.SubtotalMinor, &item.CreatedAt,
		); err != nil {
			return domain.Order{}, fmt.Errorf("scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("iterate order items: %w", err)
	}

	return order, nil
}

func (t *sagaTx) UpdateOrderStatus(ctx context.Context, order domain.Order) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, order.ID, string(order.Status), order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, order.ID)
	}
	return nil
}

func (t *sagaTx) AppendMovement(ctx context.Context, m domain.InventoryMovement) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (id, store_id, sku_id, movement_type, quantity, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.StoreID, m.SkuID, string(m.Type), m.Quantity, m.Reference, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert inventory movement: %w", err)
	}
	return nil
}

func (t *sagaTx) AppendOutbox(ctx context.Context, e domain.OutboxEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_events (id, event_type, payload, occurred_on)
		VALUES ($1, $2, $3, $4)
	`, e.ID, e.Type, e.Payload, e.OccurredOn)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (t *sagaTx) AppendAudit(ctx context.Context, a domain.AuditLog) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, entity_name, entity_id, action, changes, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.EntityName, a.EntityID, string(a.Action), a.Changes, a.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

var _ domain.SagaTx = (*sagaTx)(nil)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
