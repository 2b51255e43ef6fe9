package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/storage/postgres"
)

const (
	defaultLimit   = 100
	defaultTimeout = 30 * time.Second
)

type config struct {
	dsn       string
	eventType string
	eventID   string
	limit     int
	execute   bool
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		fail("outbox reprocess failed: %v", err)
	}
}

func readConfig() (config, error) {
	var cfg config

	flag.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN (fallback: RETAILOPS_POSTGRES_DSN)")
	flag.StringVar(&cfg.eventType, "type", "", "filter exhausted events by type (empty = all)")
	flag.StringVar(&cfg.eventID, "event", "", "requeue a single event by id")
	flag.IntVar(&cfg.limit, "limit", defaultLimit, "max number of events to scan/requeue")
	flag.BoolVar(&cfg.execute, "execute", false, "execute requeue; default is dry-run")
	flag.Parse()

	if strings.TrimSpace(cfg.dsn) == "" {
		cfg.dsn = strings.TrimSpace(os.Getenv("RETAILOPS_POSTGRES_DSN"))
	}
	if cfg.dsn == "" {
		return config{}, fmt.Errorf("RETAILOPS_POSTGRES_DSN (or -dsn) is required")
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("limit must be > 0")
	}

	return cfg, nil
}

// run возвращает исчерпанные события в очередь диспетчера. Requeue сбрасывает
// счётчик попыток, поэтому по умолчанию работаем в dry-run: сначала смотрим,
// что именно вернётся в обработку.
func run(ctx context.Context, cfg config) error {
	store, err := postgres.Open(ctx, cfg.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	repo := postgres.NewOutboxRepository(store)

	if cfg.eventID != "" {
		return requeueOne(ctx, repo, cfg)
	}

	events, err := repo.List(ctx, domain.OutboxFilter{
		Type:          cfg.eventType,
		OnlyExhausted: true,
		Limit:         cfg.limit,
	})
	if err != nil {
		return fmt.Errorf("list exhausted events: %w", err)
	}
	if len(events) == 0 {
		log.Info("no exhausted outbox events found")
		return nil
	}

	requeued := 0
	for _, event := range events {
		entry := log.WithFields(log.Fields{
			"event_id": event.ID,
			"type":     event.Type,
			"attempts": event.AttemptCount,
			"error":    event.Error,
		})

		if !cfg.execute {
			entry.Info("requeue candidate")
			continue
		}

		if err := repo.Requeue(ctx, event.ID); err != nil {
			return fmt.Errorf("requeue event %s: %w", event.ID, err)
		}
		entry.Info("event requeued")
		requeued++
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  len(events),
		"requeued": requeued,
	}).Info("outbox reprocess finished")

	return nil
}

func requeueOne(ctx context.Context, repo domain.OutboxRepository, cfg config) error {
	if !cfg.execute {
		log.WithField("event_id", cfg.eventID).Info("dry-run: pass -execute to requeue this event")
		return nil
	}
	if err := repo.Requeue(ctx, cfg.eventID); err != nil {
		return fmt.Errorf("requeue event %s: %w", cfg.eventID, err)
	}
	log.WithField("event_id", cfg.eventID).Info("event requeued")
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
