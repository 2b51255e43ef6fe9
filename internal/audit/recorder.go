package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// RecordingStore — декоратор вокруг SagaStore: каждая мутация заказа или
// складской записи получает запись в журнале аудита в той же транзакции,
// что и само изменение. Откат транзакции откатывает и аудит.
type RecordingStore struct {
	inner domain.SagaStore
}

// NewRecordingStore оборачивает store журналированием мутаций.
func NewRecordingStore(inner domain.SagaStore) *RecordingStore {
	return &RecordingStore{inner: inner}
}

// WithinTx открывает транзакцию и подменяет SagaTx записывающей обёрткой.
func (s *RecordingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.SagaTx) error) error {
	return s.inner.WithinTx(ctx, func(ctx context.Context, tx domain.SagaTx) error {
		return fn(ctx, &recordingTx{SagaTx: tx})
	})
}

var _ domain.SagaStore = (*RecordingStore)(nil)

// recordingTx перехватывает мутирующие операции SagaTx.
type recordingTx struct {
	domain.SagaTx
}

func (t *recordingTx) InsertOrder(ctx context.Context, order domain.Order) error {
	if err := t.SagaTx.InsertOrder(ctx, order); err != nil {
		return err
	}
	return t.append(ctx, "order", order.ID, domain.AuditActionCreate, map[string]any{
		"status":             string(order.Status),
		"store_id":           order.StoreID,
		"total_amount_minor": order.TotalAmountMinor,
		"items":              len(order.Items),
	})
}

func (t *recordingTx) UpdateOrderStatus(ctx context.Context, order domain.Order) error {
	if err := t.SagaTx.UpdateOrderStatus(ctx, order); err != nil {
		return err
	}
	return t.append(ctx, "order", order.ID, domain.AuditActionUpdate, map[string]any{
		"status": string(order.Status),
	})
}

func (t *recordingTx) SaveInventory(ctx context.Context, rec domain.InventoryRecord) error {
	if err := t.SagaTx.SaveInventory(ctx, rec); err != nil {
		return err
	}
	entityID := strconv.FormatInt(rec.StoreID, 10) + ":" + strconv.FormatInt(rec.SkuID, 10)
	return t.append(ctx, "inventory", entityID, domain.AuditActionUpdate, map[string]any{
		"on_hand":  rec.OnHand,
		"reserved": rec.Reserved,
	})
}

func (t *recordingTx) append(ctx context.Context, entity, entityID string, action domain.AuditAction, changes map[string]any) error {
	data, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}
	return t.AppendAudit(ctx, domain.AuditLog{
		ID:         uuid.NewString(),
		EntityName: entity,
		EntityID:   entityID,
		Action:     action,
		Changes:    data,
		OccurredAt: time.Now().UTC(),
	})
}
