package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 20
	defaultMaxAttempts  = 10
)

var (
	outboxDispatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retailops_outbox_dispatch_attempts_total",
		Help: "Total number of outbox dispatch attempts grouped by result.",
	}, []string{"result"})
	outboxPendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "retailops_outbox_pending_records",
		Help: "Current number of pending records in transactional outbox.",
	})
	outboxOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "retailops_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending outbox record.",
	})
)

// DispatcherOptions задаёт параметры диспетчера outbox.
type DispatcherOptions struct {
	Logger       *log.Entry
	Publisher    domain.EventPublisher
	DLQPublisher domain.EventPublisher
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Option настраивает Dispatcher.
type Option func(*DispatcherOptions)

// WithLogger задаёт logger для диспетчера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *DispatcherOptions) {
		opts.Logger = logger
	}
}

// WithPublisher задаёт publisher для доставки событий в брокер.
func WithPublisher(publisher domain.EventPublisher) Option {
	return func(opts *DispatcherOptions) {
		opts.Publisher = publisher
	}
}

// WithDLQPublisher задаёт publisher для отправки в DLQ после исчерпания попыток.
func WithDLQPublisher(publisher domain.EventPublisher) Option {
	return func(opts *DispatcherOptions) {
		opts.DLQPublisher = publisher
	}
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *DispatcherOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт размер батча из outbox.
func WithBatchSize(batchSize int) Option {
	return func(opts *DispatcherOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts задаёт бюджет попыток доставки события.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *DispatcherOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// Dispatcher дренирует transactional outbox: обрабатывает pending-события
// oldest first и помечает их обработанными только после успеха. Ошибка одного
// события не прерывает обработку остального батча.
type Dispatcher struct {
	repo         domain.OutboxRepository
	alerts       domain.AlertRepository
	publisher    domain.EventPublisher
	dlqPublisher domain.EventPublisher
	logger       *log.Entry
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
}

// NewDispatcher создаёт диспетчер outbox.
func NewDispatcher(repo domain.OutboxRepository, alerts domain.AlertRepository, options ...Option) *Dispatcher {
	opts := DispatcherOptions{
		PollInterval: defaultPollInterval,
		BatchSize:    defaultBatchSize,
		MaxAttempts:  defaultMaxAttempts,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-dispatcher")
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}

	return &Dispatcher{
		repo:         repo,
		alerts:       alerts,
		publisher:    opts.Publisher,
		dlqPublisher: opts.DLQPublisher,
		logger:       logger,
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		maxAttempts:  opts.MaxAttempts,
	}
}

// Run запускает периодический polling outbox до отмены ctx.
func (d *Dispatcher) Run(ctx context.Context) {
	if d.repo == nil {
		d.logger.Warn("outbox dispatcher is disabled: repository is nil")
		return
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один polling-цикл.
func (d *Dispatcher) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	d.refreshBacklogMetrics(ctx)

	events, err := d.repo.PullPending(ctx, d.batchSize)
	if err != nil {
		d.logger.WithError(err).Warn("failed to pull pending outbox events")
		return
	}
	if len(events) == 0 {
		return
	}

	for _, event := range events {
		if ctx.Err() != nil {
			return
		}

		if err := d.handle(ctx, event); err != nil {
			d.failEvent(ctx, event, err)
			continue
		}

		if err := d.repo.MarkProcessed(ctx, event.ID); err != nil {
			d.logger.WithError(err).WithField("outbox_id", event.ID).Warn("failed to mark outbox event processed")
			continue
		}
		outboxDispatchAttempts.WithLabelValues("processed").Inc()
	}

	d.refreshBacklogMetrics(ctx)
}

// handle выполняет side effect события по закрытому множеству типов.
// StockLow дополнительно материализует стоковый алерт; известные типы
// публикуются в брокер, если publisher подключён. Событие неизвестного типа
// не уходит в брокер: warning в лог и mark processed, чтобы оно не крутилось
// в очереди до исчерпания попыток.
func (d *Dispatcher) handle(ctx context.Context, event domain.OutboxEvent) error {
	switch event.Type {
	case domain.EventTypeStockLow:
		if d.alerts != nil {
			if err := d.materializeAlert(ctx, event); err != nil {
				return err
			}
		}
	case domain.EventTypeOrderCreated, domain.EventTypeOrderConfirmed, domain.EventTypeOrderCancelled:
	default:
		d.logger.WithFields(log.Fields{
			"outbox_id":  event.ID,
			"event_type": event.Type,
		}).Warn("unknown outbox event type, skipping")
		outboxDispatchAttempts.WithLabelValues("skipped").Inc()
		return nil
	}

	if d.publisher == nil {
		return nil
	}
	if err := d.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

func (d *Dispatcher) materializeAlert(ctx context.Context, event domain.OutboxEvent) error {
	var payload domain.StockLowPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode StockLow payload: %w", err)
	}

	alert := domain.NewStockLowAlert(uuid.NewString(), payload, time.Now().UTC())
	created, err := d.alerts.CreateIfAbsent(ctx, alert)
	if err != nil {
		return fmt.Errorf("create stock alert: %w", err)
	}
	if created {
		d.logger.WithFields(log.Fields{
			"store_id":  payload.StoreID,
			"sku_id":    payload.SkuID,
			"available": payload.Available,
		}).Info("stock alert created")
	}
	return nil
}

// failEvent фиксирует ошибку доставки. Событие остаётся в очереди до
// исчерпания бюджета попыток, затем выводится из неё и уходит в DLQ.
func (d *Dispatcher) failEvent(ctx context.Context, event domain.OutboxEvent, handleErr error) {
	logger := d.logger.WithError(handleErr).WithFields(log.Fields{
		"outbox_id":  event.ID,
		"event_type": event.Type,
		"attempt":    event.AttemptCount + 1,
	})

	if event.AttemptCount+1 < d.maxAttempts {
		logger.Warn("outbox event dispatch failed, will retry")
		outboxDispatchAttempts.WithLabelValues("retry").Inc()
		if err := d.repo.RecordFailure(ctx, event.ID, handleErr.Error()); err != nil {
			d.logger.WithError(err).WithField("outbox_id", event.ID).Warn("failed to record outbox failure")
		}
		return
	}

	logger.Error("outbox event dispatch failed, attempts exhausted")
	outboxDispatchAttempts.WithLabelValues("exhausted").Inc()

	if err := d.publishToDLQ(ctx, event, handleErr); err != nil {
		d.logger.WithError(err).WithField("outbox_id", event.ID).Warn("failed to publish to DLQ")
		outboxDispatchAttempts.WithLabelValues("dlq_failed").Inc()
	}
	if err := d.repo.MarkExhausted(ctx, event.ID, handleErr.Error()); err != nil {
		d.logger.WithError(err).WithField("outbox_id", event.ID).Warn("failed to mark outbox event exhausted")
	}
}

func (d *Dispatcher) publishToDLQ(ctx context.Context, event domain.OutboxEvent, handleErr error) error {
	if d.dlqPublisher == nil {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"outbox_id":        event.ID,
		"event_type":       event.Type,
		"payload":          json.RawMessage(event.Payload),
		"dispatch_error":   handleErr.Error(),
		"attempt_count":    event.AttemptCount + 1,
		"dlq_published_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	dlqEvent := domain.OutboxEvent{
		ID:         event.ID,
		Type:       event.Type,
		Payload:    payload,
		OccurredOn: event.OccurredOn,
	}
	if err := d.dlqPublisher.Publish(ctx, dlqEvent); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

func (d *Dispatcher) refreshBacklogMetrics(ctx context.Context) {
	stats, err := d.repo.Stats(ctx)
	if err != nil {
		d.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	outboxPendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		outboxOldestPendingAge.Set(0)
		return
	}

	age := time.Since(stats.OldestPendingAt).Seconds()
	if age < 0 {
		age = 0
	}
	outboxOldestPendingAge.Set(age)
}
