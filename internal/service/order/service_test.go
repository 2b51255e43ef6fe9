package order

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/storage/memory"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()

	store := memory.NewStore()
	store.SeedStore(domain.Store{ID: 1, Name: "Main", Code: "MAIN"})
	store.SeedSKU(domain.SKU{ID: 10, Code: "SKU-10", Name: "Widget", PriceMinor: 1500})
	store.SeedSKU(domain.SKU{ID: 20, Code: "SKU-20", Name: "Gadget", PriceMinor: 2500})
	store.SeedInventory(domain.InventoryRecord{StoreID: 1, SkuID: 10, OnHand: 100, Reserved: 0, ReorderPoint: 5})
	store.SeedInventory(domain.InventoryRecord{StoreID: 1, SkuID: 20, OnHand: 3, Reserved: 0, ReorderPoint: 1})
	return store
}

func newTestService(store *memory.Store, name string) *Service {
	return NewServiceWithoutMetrics(store, log.New().WithField("test", name))
}

func pendingEvents(t *testing.T, store *memory.Store) []domain.OutboxEvent {
	t.Helper()

	events, err := store.PullPending(context.Background(), 100)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	return events
}

func TestCreateOrder_Success(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store, "create_success")

	result, err := svc.CreateOrder(context.Background(), CreateRequest{
		StoreID: 1,
		Items: []CreateItem{
			{SkuID: 10, Quantity: 2},
			{SkuID: 20, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if result.Status != domain.OrderStatusReserved {
		t.Fatalf("expected status reserved, got %s", result.Status)
	}

	// 2*1500 + 1*2500
	if result.TotalAmountMinor != 5500 {
		t.Fatalf("expected total 5500, got %d", result.TotalAmountMinor)
	}

	inv, ok := store.InventoryAt(1, 10)
	if !ok {
		t.Fatal("inventory record for sku 10 missing")
	}
	if inv.Reserved != 2 || inv.OnHand != 100 {
		t.Fatalf("expected reserved=2 onHand=100, got reserved=%d onHand=%d", inv.Reserved, inv.OnHand)
	}
	if inv.Version != 1 {
		t.Fatalf("expected version bump to 1, got %d", inv.Version)
	}

	saved, err := store.Orders().Get(context.Background(), result.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(saved.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(saved.Items))
	}
	if errs := saved.ValidateInvariants(); len(errs) > 0 {
		t.Fatalf("saved order violates invariants: %v", errs)
	}
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store, "create_empty")

	_, err := svc.CreateOrder(context.Background(), CreateRequest{StoreID: 1})
	if !errors.Is(err, domain.ErrItemsRequired) {
		t.Fatalf("expected ErrItemsRequired, got %v", err)
	}

	if events := pendingEvents(t, store); len(events) != 0 {
		t.Fatalf("expected no outbox events, got %d", len(events))
	}
}

func TestCreateOrder_UnknownStore(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store, "create_unknown_store")

	_, err := svc.CreateOrder(context.Background(), CreateRequest{
		StoreID: 99,
		Items:   []CreateItem{{SkuID: 10, Quantity: 1}},
	})
	if !errors.Is(err, domain.ErrStoreNotFound) {
		t.Fatalf("expected ErrStoreNotFound, got %v", err)
	}
}

func TestCreateOrder_InsufficientStockRollsBackEverything(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store, "create_rollback")

	// Первая позиция резервируется успешно, вторая превышает доступный сток.
	_, err := svc.CreateOrder(context.Background(), CreateRequest{
		StoreID: 1,
		Items: []CreateItem{
			{SkuID: 10, Quantity: 5},
			{SkuID: 20, Quantity: 10},
		},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// Откат не оставляет частичных резервов
	inv, _ := store.InventoryAt(1, 10)
	if inv.Reserved != 0 {
		t.Fatalf("expected no reservation on sku 10 after rollback, got %d", inv.Reserved)
	}
	if inv.Version != 0 {
		t.Fatalf("expected version untouched after rollback, got %d", inv.Version)
	}

	orders, err := store.Orders().List(context.Background(), domain.OrderFilter{})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected no orders after rollback, got %d", len(orders))
	}

	if events := pendingEvents(t, store); len(events) != 0 {
		t.Fatalf("expected no outbox events after rollback, got %d", len(events))
	}

	if movements := store.Movements(); len(movements) != 0 {
		t.Fatalf("expected no movements after rollback, got %d", len(movements))
	}
}

func TestCreateOrder_MissingInventoryRecord(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store, "create_missing_inventory")

	_, err := svc.CreateOrder(context.Background(), CreateRequest{
		StoreID: 1,
		Items:   []CreateItem{{SkuID: 777, Quantity: 1}},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for missing record, got %v", err)
	}
}

func TestCreateOrder_EmitsOrderCreatedEvent(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store, "create_event")

	result, err := svc.CreateOrder(context.Background(), CreateRequest{
		StoreID: 1,
		Items:   []CreateItem{{SkuID: 10, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	events := pendingEvents(t, store)
	if len(events) != 1 {
		t.Fatalf("expected 1 outbox event, got %d", len(events))
	}
	if events[0].Type != domain.EventTypeOrderCreated {
		t.Fatalf("expected OrderCreated, got %s", events[0].Type)
	}

	var payload domain.OrderCreatedPayload
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.OrderID != result.OrderID {
		t.Fatalf("payload order id mismatch: %s != %s", payload.OrderID, result.OrderID)
	}
	if payload.TotalAmountMinor != 1500 {
		t.Fatalf("expected payload total 1500, got %d", payload.TotalAmountMinor)
	}
}

func TestCreateOrder_StockLowEventDedupedPerSku(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store, "create_stocklow")

	// Две позиции одного SKU: резерв 2 из 3 оставляет available=1 на точке
	// дозаказа. Должно получиться ровно одно StockLow-событие.
	_, err := svc.CreateOrder(context.Background(), CreateRequest{
		StoreID: 1,
		Items: []CreateItem{
			{SkuID: 20, Quantity: 1},
			{SkuID: 20, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	events := pendingEvents(t, store)
	stockLow := 0
	for _, event := range events {
		if event.Type != domain.EventTypeStockLow {
			continue
		}
		stockLow++

		var payload domain.StockLowPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.SkuID != 20 {
			t.Fatalf("expected sku 20, got %d", payload.SkuID)
		}
		if payload.Available != 1 {
			t.Fatalf("expected available 1 in payload, got %d", payload.Available)
		}
	}

	if stockLow != 1 {
		t.Fatalf("expected exactly 1 StockLow event, got %d", stockLow)
	}
}

func TestCreateOrder_MissingSkuPriceSnapshotsZero(t *testing.T) {
	store := newTestStore(t)
	store.SeedInventory(domain.InventoryRecord{StoreID: 1, SkuID: 30, OnHand: 10, ReorderPoint: 0})
	svc := newTestService(store, "create_zero_price")

	result, err := svc.CreateOrder(context.Background(), CreateRequest{
		StoreID: 1,
		Items:   []CreateItem{{SkuID: 30, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if result.TotalAmountMinor != 0 {
		t.Fatalf("expected zero total for unpriced sku, got %d", result.TotalAmountMinor)
	}
}

func TestConfirmOrder_ConsumesReservation(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store, "confirm")

	result, err := svc.CreateOrder(context.Background(), CreateRequest{
		StoreID: 1,
		Items:   []CreateItem{{SkuID: 10, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := svc.ConfirmOrder(context.Background(), result.OrderID); err != nil {
		t.Fatalf("confirm order: %v", err)
	}

	inv, _ := store.InventoryAt(1, 10)
	if inv.OnHand != 96 || inv.Reserved != 0 {
		t.Fatalf("expected onHand=96 reserved=0, got onHand=%d reserved=%d", inv.OnHand, inv.Reserved)
	}
	// Available не меняется при подтверждении
	if inv.Available() != 96 {
		t.Fatalf("expected available 96, got %d", inv.Available())
	}

	saved, err := store.Orders().Get(context.Background(), result.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if saved.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected status confirmed, got %s", saved.Status)
	}

	events := pendingEvents(t, store)
	hasConfirmed := false
	for _, event := range events {
		if event.Type == domain.EventTypeOrderConfirmed {
			hasConfirmed = true
		}
	}
	if !hasConfirmed {
		t.Fatal("expected OrderConfirmed event")
	}
}

func TestCancelOrder_ReleasesReservation(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store, "cancel")

	result, err := svc.CreateOrder(context.Background(), CreateRequest{
		StoreID: 1,
		Items:   []CreateItem{{SkuID: 10, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := svc.CancelOrder(context.Background(), result.OrderID); err != nil {
		t.Fatalf("cancel order: %v", err)
	}

	inv, _ := store.InventoryAt(1, 10)
	if inv.OnHand != 100 || inv.Reserved != 0 {
		t.Fatalf("expected onHand=100 reserved=0, got onHand=%d reserved=%d", inv.OnHand, inv.Reserved)
	}

	saved, err := store.Orders().Get(context.Background(), result.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if saved.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected status cancelled, got %s", saved.Status)
	}
}

func TestConfirmOrder_InvalidTransition(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store, "confirm_invalid")

	result, err := svc.CreateOrder(context.Background(), CreateRequest{
		StoreID: 1,
		Items:   []CreateItem{{SkuID: 10, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := svc.CancelOrder(context.Background(), result.OrderID); err != nil {
		t.Fatalf("cancel order: %v", err)
	}

	// Отменённый заказ нельзя подтвердить
	err = svc.ConfirmOrder(context.Background(), result.OrderID)
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}

	// ... и нельзя отменить повторно
	err = svc.CancelOrder(context.Background(), result.OrderID)
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestConfirmOrder_NotFound(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store, "confirm_missing")

	err := svc.ConfirmOrder(context.Background(), "no-such-order")
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestCreateOrder_MovementsRecorded(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store, "movements")

	result, err := svc.CreateOrder(context.Background(), CreateRequest{
		StoreID: 1,
		Items:   []CreateItem{{SkuID: 10, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := svc.ConfirmOrder(context.Background(), result.OrderID); err != nil {
		t.Fatalf("confirm order: %v", err)
	}

	movements := store.Movements()
	if len(movements) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(movements))
	}
	if movements[0].Type != domain.MovementReserve {
		t.Fatalf("expected first movement reserve, got %s", movements[0].Type)
	}
	if movements[1].Type != domain.MovementConfirm {
		t.Fatalf("expected second movement confirm, got %s", movements[1].Type)
	}
}
