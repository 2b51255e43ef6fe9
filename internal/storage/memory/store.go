package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

type invKey struct {
	storeID int64
	skuID   int64
}

// state — всё содержимое in-memory хранилища. Транзакция работает
// с глубокой копией и подменяет оригинал только при успешном коммите.
type state struct {
	stores      map[int64]domain.Store
	skus        map[int64]domain.SKU
	inventory   map[invKey]domain.InventoryRecord
	orders      map[string]domain.Order
	movements   []domain.InventoryMovement
	outbox      map[string]domain.OutboxEvent
	outboxOrder []string
	alerts      map[string]domain.StockAlert
	alertOrder  []string
	idempotency map[string]domain.IdempotencyRecord
	audit       []domain.AuditLog
}

func newState() *state {
	return &state{
		stores:      make(map[int64]domain.Store),
		skus:        make(map[int64]domain.SKU),
		inventory:   make(map[invKey]domain.InventoryRecord),
		orders:      make(map[string]domain.Order),
		outbox:      make(map[string]domain.OutboxEvent),
		alerts:      make(map[string]domain.StockAlert),
		idempotency: make(map[string]domain.IdempotencyRecord),
	}
}

func (s *state) clone() *state {
	c := &state{
		stores:      make(map[int64]domain.Store, len(s.stores)),
		skus:        make(map[int64]domain.SKU, len(s.skus)),
		inventory:   make(map[invKey]domain.InventoryRecord, len(s.inventory)),
		orders:      make(map[string]domain.Order, len(s.orders)),
		movements:   append([]domain.InventoryMovement(nil), s.movements...),
		outbox:      make(map[string]domain.OutboxEvent, len(s.outbox)),
		outboxOrder: append([]string(nil), s.outboxOrder...),
		alerts:      make(map[string]domain.StockAlert, len(s.alerts)),
		alertOrder:  append([]string(nil), s.alertOrder...),
		idempotency: make(map[string]domain.IdempotencyRecord, len(s.idempotency)),
		audit:       append([]domain.AuditLog(nil), s.audit...),
	}
	for k, v := range s.stores {
		c.stores[k] = v
	}
	for k, v := range s.skus {
		c.skus[k] = v
	}
	for k, v := range s.inventory {
		c.inventory[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]domain.OrderItem(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	for k, v := range s.alerts {
		c.alerts[k] = v
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	return c
}

// Store — in-memory реализация всех портов хранения. Используется в тестах
// и в режиме STORAGE_MODE=memory; семантика совпадает с postgres-реализацией,
// включая конфликт версий складской записи.
type Store struct {
	mu sync.RWMutex
	st *state
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{st: newState()}
}

// SeedStore регистрирует магазин.
func (s *Store) SeedStore(store domain.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.stores[store.ID] = store
}

// SeedSKU регистрирует торговую позицию.
func (s *Store) SeedSKU(sku domain.SKU) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.skus[sku.ID] = sku
}

// SeedInventory создаёт или замещает складскую запись.
func (s *Store) SeedInventory(rec domain.InventoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.inventory[invKey{rec.StoreID, rec.SkuID}] = rec
}

// WithinTx исполняет fn над копией состояния и атомарно подменяет оригинал
// при успехе. Ошибка fn отбрасывает копию целиком — частичных изменений
// не бывает. Транзакции сериализуются глобальным мьютексом.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.SagaTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	staged := s.st.clone()
	if err := fn(ctx, &sagaTx{st: staged}); err != nil {
		return err
	}
	s.st = staged
	return nil
}

var _ domain.SagaStore = (*Store)(nil)

// sagaTx — SagaTx поверх staged-копии состояния.
type sagaTx struct {
	st *state
}

func (t *sagaTx) StoreExists(_ context.Context, storeID int64) (bool, error) {
	_, ok := t.st.stores[storeID]
	return ok, nil
}

func (t *sagaTx) SKU(_ context.Context, skuID int64) (domain.SKU, error) {
	sku, ok := t.st.skus[skuID]
	if !ok {
		return domain.SKU{}, fmt.Errorf("%w: %d", domain.ErrSKUNotFound, skuID)
	}
	return sku, nil
}

func (t *sagaTx) Inventory(_ context.Context, storeID, skuID int64) (domain.InventoryRecord, bool, error) {
	rec, ok := t.st.inventory[invKey{storeID, skuID}]
	return rec, ok, nil
}

// SaveInventory применяет compare-and-swap по Version: запись с устаревшим
// токеном отклоняется, как это делает UPDATE ... WHERE version = $n в postgres.
func (t *sagaTx) SaveInventory(_ context.Context, rec domain.InventoryRecord) error {
	key := invKey{rec.StoreID, rec.SkuID}
	current, ok := t.st.inventory[key]
	if !ok {
		return fmt.Errorf("%w: no inventory record for sku %d in store %d",
			domain.ErrInsufficientStock, rec.SkuID, rec.StoreID)
	}
	if current.Version != rec.Version {
		return domain.ErrConcurrencyConflict
	}
	rec.Version++
	t.st.inventory[key] = rec
	return nil
}

func (t *sagaTx) InsertOrder(_ context.Context, order domain.Order) error {
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	t.st.orders[order.ID] = order
	return nil
}

func (t *sagaTx) Order(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := t.st.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	return order, nil
}

func (t *sagaTx) UpdateOrderStatus(_ context.Context, order domain.Order) error {
	existing, ok := t.st.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, order.ID)
	}
	existing.Status = order.Status
	existing.UpdatedAt = order.UpdatedAt
	t.st.orders[order.ID] = existing
	return nil
}

func (t *sagaTx) AppendMovement(_ context.Context, m domain.InventoryMovement) error {
	t.st.movements = append(t.st.movements, m)
	return nil
}

func (t *sagaTx) AppendOutbox(_ context.Context, e domain.OutboxEvent) error {
	t.st.outbox[e.ID] = e
	t.st.outboxOrder = append(t.st.outboxOrder, e.ID)
	return nil
}

func (t *sagaTx) AppendAudit(_ context.Context, a domain.AuditLog) error {
	t.st.audit = append(t.st.audit, a)
	return nil
}

var _ domain.SagaTx = (*sagaTx)(nil)

// Movements возвращает копию журнала движений склада (используется в тестах).
func (s *Store) Movements() []domain.InventoryMovement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.InventoryMovement(nil), s.st.movements...)
}

// InventoryAt возвращает текущую складскую запись (используется в тестах).
func (s *Store) InventoryAt(storeID, skuID int64) (domain.InventoryRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.st.inventory[invKey{storeID, skuID}]
	return rec, ok
}
