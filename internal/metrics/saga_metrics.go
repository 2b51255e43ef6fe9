package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics содержит метрики саги резервирования.
type SagaMetrics struct {
	// Счётчики операций
	sagaStarted     prometheus.Counter
	sagaCompleted   prometheus.Counter
	sagaFailed      prometheus.Counter
	orderConfirmed  prometheus.Counter
	orderCancelled  prometheus.Counter
	versionConflict prometheus.Counter

	// Гистограммы времени выполнения
	sagaDuration prometheus.Histogram

	// Счётчик записанных событий outbox
	outboxEvents prometheus.Counter

	// Gauge для активных саг
	activeSagas prometheus.Gauge
}

// NewSagaMetrics создаёт новый экземпляр метрик саги.
func NewSagaMetrics() *SagaMetrics {
	return newSagaMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSagaMetricsWithRegisterer(registerer prometheus.Registerer) *SagaMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SagaMetrics{
		sagaStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retailops_saga_started_total",
			Help: "Total number of reservation sagas started",
		}),
		sagaCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retailops_saga_completed_total",
			Help: "Total number of reservation sagas completed successfully",
		}),
		sagaFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retailops_saga_failed_total",
			Help: "Total number of reservation sagas failed",
		}),
		orderConfirmed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retailops_orders_confirmed_total",
			Help: "Total number of orders confirmed",
		}),
		orderCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retailops_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		versionConflict: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retailops_version_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts",
		}),
		sagaDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "retailops_saga_duration_seconds",
			Help:    "Duration of reservation sagas in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retailops_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		activeSagas: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "retailops_active_sagas",
			Help: "Number of currently active reservation sagas",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSagaStarted увеличивает счётчик запущенных саг.
func (m *SagaMetrics) RecordSagaStarted() {
	m.sagaStarted.Inc()
	m.activeSagas.Inc()
}

// RecordSagaCompleted увеличивает счётчик завершённых саг.
func (m *SagaMetrics) RecordSagaCompleted() {
	m.sagaCompleted.Inc()
}

// RecordSagaFailed увеличивает счётчик неудачных саг.
func (m *SagaMetrics) RecordSagaFailed() {
	m.sagaFailed.Inc()
}

// RecordOrderConfirmed увеличивает счётчик подтверждённых заказов.
func (m *SagaMetrics) RecordOrderConfirmed() {
	m.orderConfirmed.Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *SagaMetrics) RecordOrderCancelled() {
	m.orderCancelled.Inc()
}

// RecordConcurrencyConflict увеличивает счётчик конфликтов версий.
func (m *SagaMetrics) RecordConcurrencyConflict() {
	m.versionConflict.Inc()
}

// RecordSagaDuration записывает время выполнения саги.
func (m *SagaMetrics) RecordSagaDuration(duration time.Duration) {
	m.sagaDuration.Observe(duration.Seconds())
	m.activeSagas.Dec()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *SagaMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
