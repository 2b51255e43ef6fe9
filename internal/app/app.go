package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/api"
	healthcheck "github.com/vladislavdragonenkov/retailops/internal/health"
	"github.com/vladislavdragonenkov/retailops/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/retailops/internal/service/idempotency"
	"github.com/vladislavdragonenkov/retailops/internal/service/order"
	"github.com/vladislavdragonenkov/retailops/internal/service/outbox"
	"github.com/vladislavdragonenkov/retailops/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run собирает зависимости и держит приложение до отмены ctx:
// HTTP API, сервер метрик, диспетчер outbox и воркер очистки ключей.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	bundle, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer bundle.close()

	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(producer, logger)

	dispatcherOpts := []outbox.Option{
		outbox.WithLogger(log.WithField("component", "outbox-dispatcher")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
	}
	if producer != nil {
		dispatcherOpts = append(dispatcherOpts,
			outbox.WithPublisher(kafka.NewEventPublisher(producer)),
			outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer)),
		)
	} else {
		logger.Warn("kafka is not configured, outbox dispatcher runs in alert-only mode")
	}
	dispatcher := outbox.NewDispatcher(bundle.outbox, bundle.alerts, dispatcherOpts...)

	cleanupWorker := idempotency.NewCleanupWorker(bundle.idempotency,
		idempotency.WithLogger(log.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	router := api.NewRouter(api.Dependencies{
		Orders:    order.NewService(bundle.saga, log.WithField("component", "order-saga")),
		OrderRead: bundle.orderRead,
		Inventory: bundle.inventory,
		Stores:    bundle.stores,
		Outbox:    bundle.outbox,
		Alerts:    bundle.alerts,
		Audit:     bundle.audit,
		Reports:   bundle.reports,
		Guard:     idempotency.NewGuard(bundle.idempotency, cfg.IdempotencyTTL, log.WithField("component", "idempotency-guard")),
		Logger:    log.WithField("component", "api"),
	})

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if bundle.pinger != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewPingChecker("postgres", bundle.pinger))
	}
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker(bundle.outbox, cfg.OutboxBacklogThreshold))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanupWorker.Run(ctx)
	}()

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		wg.Wait()
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		wg.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчики /metrics и health-проб.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
