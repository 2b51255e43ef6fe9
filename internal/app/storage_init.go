package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/audit"
	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/health"
	"github.com/vladislavdragonenkov/retailops/internal/storage/memory"
	"github.com/vladislavdragonenkov/retailops/internal/storage/postgres"
)

// storageBundle — собранный набор портов хранилища для одного драйвера.
type storageBundle struct {
	saga        domain.SagaStore
	orderRead   domain.OrderReader
	inventory   domain.InventoryReader
	stores      domain.StoreReader
	outbox      domain.OutboxRepository
	alerts      domain.AlertRepository
	idempotency domain.IdempotencyRepository
	audit       domain.AuditReader
	reports     domain.ReportsReader
	// pinger равен nil для памяти: проверять нечего.
	pinger health.Pinger
	close  func()
}

// initStorage собирает хранилище по конфигурации. Write-path саги всегда
// оборачивается аудит-декоратором.
func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*storageBundle, error) {
	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		return initPostgres(ctx, cfg, logger)
	case StorageDriverMemory, "":
		return initMemory(logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initPostgres(ctx context.Context, cfg Config, logger *log.Entry) (*storageBundle, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres driver requires RETAILOPS_POSTGRES_DSN")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	return &storageBundle{
		saga:        audit.NewRecordingStore(store),
		orderRead:   postgres.NewOrderReader(store),
		inventory:   postgres.NewInventoryReader(store),
		stores:      postgres.NewStoreReader(store),
		outbox:      postgres.NewOutboxRepository(store),
		alerts:      postgres.NewAlertRepository(store),
		idempotency: postgres.NewIdempotencyRepository(store),
		audit:       postgres.NewAuditReader(store),
		reports:     postgres.NewReportsReader(store),
		pinger:      store,
		close: func() {
			store.Close()
			logger.Info("postgres connection closed")
		},
	}, nil
}

func initMemory(logger *log.Entry) *storageBundle {
	store := memory.NewStore()
	seedDemoCatalog(store)
	logger.Warn("using in-memory storage with demo catalog; data is not persisted")

	return &storageBundle{
		saga:        audit.NewRecordingStore(store),
		orderRead:   store.Orders(),
		inventory:   store,
		stores:      store,
		outbox:      store.OutboxRepository(),
		alerts:      store.Alerts(),
		idempotency: store.Idempotency(),
		audit:       store.Audit(),
		reports:     store,
		close:       func() {},
	}
}

// seedDemoCatalog наполняет память минимальным каталогом для локальной разработки.
func seedDemoCatalog(store *memory.Store) {
	store.SeedStore(domain.Store{ID: 1, Name: "Flagship", Code: "FL-01"})
	store.SeedStore(domain.Store{ID: 2, Name: "Outlet", Code: "OU-02"})

	store.SeedSKU(domain.SKU{ID: 100, Code: "SKU-100", Name: "Espresso beans 1kg", PriceMinor: 159000})
	store.SeedSKU(domain.SKU{ID: 101, Code: "SKU-101", Name: "Paper filters 100pcs", PriceMinor: 45000})
	store.SeedSKU(domain.SKU{ID: 102, Code: "SKU-102", Name: "Ceramic mug", PriceMinor: 89000})

	store.SeedInventory(domain.InventoryRecord{StoreID: 1, SkuID: 100, OnHand: 50, ReorderPoint: 10})
	store.SeedInventory(domain.InventoryRecord{StoreID: 1, SkuID: 101, OnHand: 200, ReorderPoint: 20})
	store.SeedInventory(domain.InventoryRecord{StoreID: 1, SkuID: 102, OnHand: 8, ReorderPoint: 5})
	store.SeedInventory(domain.InventoryRecord{StoreID: 2, SkuID: 100, OnHand: 15, ReorderPoint: 10})
}
