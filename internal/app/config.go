package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// StorageDriver выбирает реализацию хранилища.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers — список брокеров через запятую; пустое значение
	// отключает публикацию, диспетчер работает в alert-only режиме.
	KafkaBrokers string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	// OutboxBacklogThreshold — глубина бэклога, с которой health
	// переходит в degraded.
	OutboxBacklogThreshold int
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		OutboxPollInterval:          5 * time.Second,
		OutboxBatchSize:             20,
		OutboxMaxAttempts:           10,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Hour,
		IdempotencyCleanupBatchSize: 500,
		OutboxBacklogThreshold:      1000,
	}
}

// ConfigFromEnv накладывает переменные окружения RETAILOPS_* на дефолты.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("RETAILOPS_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("RETAILOPS_METRICS_ADDR", cfg.MetricsAddr)

	if v := envString("RETAILOPS_STORAGE_DRIVER", string(cfg.StorageDriver)); v != "" {
		cfg.StorageDriver = StorageDriver(strings.ToLower(v))
	}
	cfg.PostgresDSN = envString("RETAILOPS_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresAutoMigrate = envBool("RETAILOPS_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)

	cfg.KafkaBrokers = envString("KAFKA_BROKERS", cfg.KafkaBrokers)

	cfg.OutboxPollInterval = envDuration("RETAILOPS_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("RETAILOPS_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxAttempts = envInt("RETAILOPS_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)

	cfg.IdempotencyTTL = envDuration("RETAILOPS_IDEMPOTENCY_TTL", cfg.IdempotencyTTL)
	cfg.IdempotencyCleanupInterval = envDuration("RETAILOPS_IDEMPOTENCY_CLEANUP_INTERVAL", cfg.IdempotencyCleanupInterval)
	cfg.IdempotencyCleanupBatchSize = envInt("RETAILOPS_IDEMPOTENCY_CLEANUP_BATCH", cfg.IdempotencyCleanupBatchSize)

	cfg.OutboxBacklogThreshold = envInt("RETAILOPS_OUTBOX_BACKLOG_THRESHOLD", cfg.OutboxBacklogThreshold)

	return cfg
}

func envString(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envBool(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func envDuration(name string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
