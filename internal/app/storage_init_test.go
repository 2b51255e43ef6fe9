package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitStorage_Memory(t *testing.T) {
	logger := log.WithField("test", t.Name())

	bundle, err := initStorage(context.Background(), DefaultConfig(), logger)
	if err != nil {
		t.Fatalf("initStorage: %v", err)
	}
	defer bundle.close()

	if bundle.saga == nil {
		t.Error("saga store should not be nil")
	}
	if bundle.orderRead == nil || bundle.inventory == nil || bundle.stores == nil {
		t.Error("readers should not be nil")
	}
	if bundle.outbox == nil || bundle.alerts == nil || bundle.idempotency == nil {
		t.Error("repositories should not be nil")
	}
	if bundle.audit == nil || bundle.reports == nil {
		t.Error("audit and reports readers should not be nil")
	}
	if bundle.pinger != nil {
		t.Error("memory bundle should have no pinger")
	}

	// Демо-каталог содержит магазины
	stores, err := bundle.stores.ListStores(context.Background())
	if err != nil {
		t.Fatalf("list stores: %v", err)
	}
	if len(stores) == 0 {
		t.Error("expected demo catalog stores in memory mode")
	}
}

func TestInitStorage_UnsupportedDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "cassandra"

	if _, err := initStorage(context.Background(), cfg, log.WithField("test", t.Name())); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestInitStorage_PostgresRequiresDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = ""

	if _, err := initStorage(context.Background(), cfg, log.WithField("test", t.Name())); err == nil {
		t.Fatal("expected error when postgres DSN is missing")
	}
}
