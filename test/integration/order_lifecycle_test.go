package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/retailops/internal/audit"
	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/service/idempotency"
	"github.com/vladislavdragonenkov/retailops/internal/service/order"
	"github.com/vladislavdragonenkov/retailops/internal/service/outbox"
	"github.com/vladislavdragonenkov/retailops/internal/storage/memory"
)

// capturingPublisher собирает опубликованные события вместо реального брокера.
type capturingPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxEvent
}

func (p *capturingPublisher) Publish(_ context.Context, event domain.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) published() []domain.OutboxEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.OutboxEvent, len(p.events))
	copy(out, p.events)
	return out
}

// OrderLifecycleTestSuite тестирует полный цикл: сага, outbox, алерты, идемпотентность.
type OrderLifecycleTestSuite struct {
	suite.Suite
	store      *memory.Store
	service    *order.Service
	dispatcher *outbox.Dispatcher
	guard      *idempotency.Guard
	publisher  *capturingPublisher
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	s.store = memory.NewStore()
	s.store.SeedStore(domain.Store{ID: 1, Name: "Flagship", Code: "FL-01"})
	s.store.SeedSKU(domain.SKU{ID: 10, Code: "SKU-10", Name: "Espresso beans", PriceMinor: 1500})
	s.store.SeedSKU(domain.SKU{ID: 20, Code: "SKU-20", Name: "Ceramic mug", PriceMinor: 2500})
	s.store.SeedInventory(domain.InventoryRecord{StoreID: 1, SkuID: 10, OnHand: 100, ReorderPoint: 5})
	s.store.SeedInventory(domain.InventoryRecord{StoreID: 1, SkuID: 20, OnHand: 4, ReorderPoint: 2})

	s.publisher = &capturingPublisher{}
	s.service = order.NewServiceWithoutMetrics(audit.NewRecordingStore(s.store), logger)
	s.dispatcher = outbox.NewDispatcher(s.store.OutboxRepository(), s.store.Alerts(),
		outbox.WithLogger(logger),
		outbox.WithPublisher(s.publisher),
	)
	s.guard = idempotency.NewGuard(s.store.Idempotency(), time.Hour, logger)
}

func (s *OrderLifecycleTestSuite) TestReservationThroughConfirmation() {
	ctx := context.Background()

	result, err := s.service.CreateOrder(ctx, order.CreateRequest{
		StoreID: 1,
		Items: []order.CreateItem{
			{SkuID: 10, Quantity: 2},
			{SkuID: 20, Quantity: 1},
		},
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.OrderStatusReserved, result.Status)
	require.Equal(s.T(), int64(5500), result.TotalAmountMinor)

	inv, ok := s.store.InventoryAt(1, 10)
	require.True(s.T(), ok)
	require.Equal(s.T(), int32(2), inv.Reserved)

	require.NoError(s.T(), s.service.ConfirmOrder(ctx, result.OrderID))

	inv, _ = s.store.InventoryAt(1, 10)
	require.Equal(s.T(), int32(98), inv.OnHand)
	require.Equal(s.T(), int32(0), inv.Reserved)

	// Диспетчер доставляет события и чистит бэклог
	s.dispatcher.ProcessOnce(ctx)

	published := s.publisher.published()
	require.GreaterOrEqual(s.T(), len(published), 2)
	types := map[string]int{}
	for _, e := range published {
		types[e.Type]++
	}
	require.Equal(s.T(), 1, types[domain.EventTypeOrderCreated])
	require.Equal(s.T(), 1, types[domain.EventTypeOrderConfirmed])

	stats, err := s.store.OutboxRepository().Stats(ctx)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 0, stats.PendingCount)

	// Аудит фиксирует создание заказа и все изменения склада
	entries, err := s.store.Audit().List(ctx, domain.AuditFilter{Entity: "order"})
	require.NoError(s.T(), err)
	require.NotEmpty(s.T(), entries)
}

func (s *OrderLifecycleTestSuite) TestCancellationReleasesReservation() {
	ctx := context.Background()

	result, err := s.service.CreateOrder(ctx, order.CreateRequest{
		StoreID: 1,
		Items:   []order.CreateItem{{SkuID: 10, Quantity: 5}},
	})
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.service.CancelOrder(ctx, result.OrderID))

	inv, _ := s.store.InventoryAt(1, 10)
	require.Equal(s.T(), int32(100), inv.OnHand)
	require.Equal(s.T(), int32(0), inv.Reserved)

	// Отменённый заказ нельзя подтвердить
	err = s.service.ConfirmOrder(ctx, result.OrderID)
	require.ErrorIs(s.T(), err, domain.ErrInvalidStateTransition)
}

func (s *OrderLifecycleTestSuite) TestInsufficientStockLeavesNoTrace() {
	ctx := context.Background()

	_, err := s.service.CreateOrder(ctx, order.CreateRequest{
		StoreID: 1,
		Items: []order.CreateItem{
			{SkuID: 10, Quantity: 1},
			{SkuID: 20, Quantity: 50},
		},
	})
	require.ErrorIs(s.T(), err, domain.ErrInsufficientStock)

	// Первая позиция тоже откатилась: частичных резервов не бывает
	inv, _ := s.store.InventoryAt(1, 10)
	require.Equal(s.T(), int32(0), inv.Reserved)

	orders, err := s.store.Orders().List(ctx, domain.OrderFilter{})
	require.NoError(s.T(), err)
	require.Empty(s.T(), orders)

	stats, err := s.store.OutboxRepository().Stats(ctx)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 0, stats.PendingCount)
}

func (s *OrderLifecycleTestSuite) TestStockLowAlertMaterializedOnce() {
	ctx := context.Background()

	// Резерв опускает доступный остаток SKU 20 до точки дозаказа
	_, err := s.service.CreateOrder(ctx, order.CreateRequest{
		StoreID: 1,
		Items:   []order.CreateItem{{SkuID: 20, Quantity: 2}},
	})
	require.NoError(s.T(), err)

	s.dispatcher.ProcessOnce(ctx)

	alerts, err := s.store.Alerts().List(ctx, domain.AlertFilter{})
	require.NoError(s.T(), err)
	require.Len(s.T(), alerts, 1)
	require.Equal(s.T(), domain.AlertStatusOpen, alerts[0].Status)
	require.Equal(s.T(), int64(20), alerts[0].SkuID)

	// Ещё один резерв ниже порога не создаёт второй открытый алерт
	_, err = s.service.CreateOrder(ctx, order.CreateRequest{
		StoreID: 1,
		Items:   []order.CreateItem{{SkuID: 20, Quantity: 1}},
	})
	require.NoError(s.T(), err)
	s.dispatcher.ProcessOnce(ctx)

	alerts, err = s.store.Alerts().List(ctx, domain.AlertFilter{})
	require.NoError(s.T(), err)
	require.Len(s.T(), alerts, 1)
}

func (s *OrderLifecycleTestSuite) TestIdempotentCreateExecutesOnce() {
	ctx := context.Background()
	body := []byte(`{"store_id":1,"items":[{"sku_id":10,"quantity":1}]}`)

	op := func(ctx context.Context) (int, []byte, error) {
		result, err := s.service.CreateOrder(ctx, order.CreateRequest{
			StoreID: 1,
			Items:   []order.CreateItem{{SkuID: 10, Quantity: 1}},
		})
		if err != nil {
			return 500, nil, err
		}
		return 201, []byte(result.OrderID), nil
	}

	first, err := s.guard.Execute(ctx, "integration-key", "POST", "/api/orders", body, op)
	require.NoError(s.T(), err)
	require.False(s.T(), first.Replayed)

	second, err := s.guard.Execute(ctx, "integration-key", "POST", "/api/orders", body, op)
	require.NoError(s.T(), err)
	require.True(s.T(), second.Replayed)
	require.Equal(s.T(), first.Body, second.Body)

	orders, err := s.store.Orders().List(ctx, domain.OrderFilter{})
	require.NoError(s.T(), err)
	require.Len(s.T(), orders, 1)
}

func TestOrderLifecycle(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
