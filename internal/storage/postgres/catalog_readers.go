package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

type inventoryReader struct {
	db *sql.DB
}

// NewInventoryReader создаёт PostgreSQL-реализацию InventoryReader.
func NewInventoryReader(store *Store) domain.InventoryReader {
	return &inventoryReader{db: store.DB()}
}

func (r *inventoryReader) ListByStore(ctx context.Context, storeID int64) ([]domain.InventoryLevel, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := r.db.QueryRowContext(queryCtx,
		`SELECT EXISTS (SELECT 1 FROM stores WHERE id = $1)`, storeID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check store exists: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %d", domain.ErrStoreNotFound, storeID)
	}

	rows, err := r.db.QueryContext(queryCtx, `
		SELECT i.store_id, i.sku_id, i.on_hand, i.reserved, i.reorder_point, i.version,
		       COALESCE(s.code, ''), COALESCE(s.name, '')
		FROM inventory i
		LEFT JOIN skus s ON s.id = i.sku_id
		WHERE i.store_id = $1
		ORDER BY i.sku_id
	`, storeID)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	levels := make([]domain.InventoryLevel, 0)
	for rows.Next() {
		var level domain.InventoryLevel
		if err := rows.Scan(
			&level.StoreID, &level.SkuID, &level.OnHand, &level.Reserved,
			&level.ReorderPoint, &level.Version, &level.SkuCode, &level.SkuName,
		); err != nil {
			return nil, fmt.Errorf("scan inventory level: %w", err)
		}
		levels = append(levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory levels: %w", err)
	}
	return levels, nil
}

var _ domain.InventoryReader = (*inventoryReader)(nil)

type storeReader struct {
	db *sql.DB
}

// NewStoreReader создаёт PostgreSQL-реализацию StoreReader.
func NewStoreReader(store *Store) domain.StoreReader {
	return &storeReader{db: store.DB()}
}

func (r *storeReader) ListStores(ctx context.Context) ([]domain.Store, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(queryCtx, `
		SELECT id, name, code
		FROM stores
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	stores := make([]domain.Store, 0)
	for rows.Next() {
		var store domain.Store
		if err := rows.Scan(&store.ID, &store.Name, &store.Code); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, store)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stores: %w", err)
	}
	return stores, nil
}

var _ domain.StoreReader = (*storeReader)(nil)
