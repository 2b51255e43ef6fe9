package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewSagaMetrics(t *testing.T) {
	metrics := NewSagaMetrics()

	if metrics == nil {
		t.Fatal("NewSagaMetrics should not return nil")
	}

	if metrics.sagaStarted == nil {
		t.Error("sagaStarted counter should not be nil")
	}

	if metrics.sagaCompleted == nil {
		t.Error("sagaCompleted counter should not be nil")
	}

	if metrics.sagaFailed == nil {
		t.Error("sagaFailed counter should not be nil")
	}

	if metrics.orderConfirmed == nil {
		t.Error("orderConfirmed counter should not be nil")
	}

	if metrics.orderCancelled == nil {
		t.Error("orderCancelled counter should not be nil")
	}

	if metrics.versionConflict == nil {
		t.Error("versionConflict counter should not be nil")
	}

	if metrics.sagaDuration == nil {
		t.Error("sagaDuration histogram should not be nil")
	}

	if metrics.outboxEvents == nil {
		t.Error("outboxEvents counter should not be nil")
	}

	if metrics.activeSagas == nil {
		t.Error("activeSagas gauge should not be nil")
	}
}

func TestRecordSagaStarted(t *testing.T) {
	// Create isolated metrics with a custom registry
	reg := prometheus.NewRegistry()

	sagaStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_saga_started_total",
		Help: "Test counter",
	})
	activeSagas := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_active_sagas",
		Help: "Test gauge",
	})

	reg.MustRegister(sagaStarted, activeSagas)

	metrics := &SagaMetrics{
		sagaStarted: sagaStarted,
		activeSagas: activeSagas,
	}

	// Record saga started
	metrics.RecordSagaStarted()

	// Check counter-value
	metric := &dto.Metric{}
	if err := sagaStarted.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1.0, got %f", metric.Counter.GetValue())
	}

	// Check active sagas increased
	gaugeMetric := &dto.Metric{}
	if err := activeSagas.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}

	if gaugeMetric.Gauge.GetValue() != 1.0 {
		t.Errorf("expected active sagas 1.0, got %f", gaugeMetric.Gauge.GetValue())
	}
}

func TestRecordSagaDuration(t *testing.T) {
	reg := prometheus.NewRegistry()

	sagaDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_saga_duration_seconds",
		Help:    "Test histogram",
		Buckets: prometheus.DefBuckets,
	})
	activeSagas := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_active_sagas_duration",
		Help: "Test gauge",
	})

	reg.MustRegister(sagaDuration, activeSagas)

	metrics := &SagaMetrics{
		sagaDuration: sagaDuration,
		activeSagas:  activeSagas,
	}

	activeSagas.Set(3)

	// Record some durations
	metrics.RecordSagaDuration(100 * time.Millisecond)
	metrics.RecordSagaDuration(500 * time.Millisecond)
	metrics.RecordSagaDuration(1 * time.Second)

	metric := &dto.Metric{}
	if err := sagaDuration.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Histogram.GetSampleCount() != 3 {
		t.Errorf("expected 3 samples, got %d", metric.Histogram.GetSampleCount())
	}

	// Check sum is approximately correct (0.1 + 0.5 + 1.0 = 1.6)
	sum := metric.Histogram.GetSampleSum()
	if sum < 1.5 || sum > 1.7 {
		t.Errorf("expected sum around 1.6, got %f", sum)
	}

	// Each finished saga leaves the in-flight gauge
	gaugeMetric := &dto.Metric{}
	if err := activeSagas.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}

	if gaugeMetric.Gauge.GetValue() != 0.0 {
		t.Errorf("expected 0 active sagas, got %f", gaugeMetric.Gauge.GetValue())
	}
}

func TestRecordConcurrencyConflict(t *testing.T) {
	reg := prometheus.NewRegistry()

	versionConflict := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_version_conflicts_total",
		Help: "Test counter",
	})

	reg.MustRegister(versionConflict)

	metrics := &SagaMetrics{
		versionConflict: versionConflict,
	}

	metrics.RecordConcurrencyConflict()
	metrics.RecordConcurrencyConflict()

	metric := &dto.Metric{}
	if err := versionConflict.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordOutboxEvent(t *testing.T) {
	reg := prometheus.NewRegistry()

	outboxEvents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_outbox_events_total",
		Help: "Test counter",
	})

	reg.MustRegister(outboxEvents)

	metrics := &SagaMetrics{
		outboxEvents: outboxEvents,
	}

	// Record multiple events
	metrics.RecordOutboxEvent()
	metrics.RecordOutboxEvent()

	metric := &dto.Metric{}
	if err := outboxEvents.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestSagaLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()

	activeSagas := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_saga_lifecycle_active",
		Help: "Test gauge",
	})
	sagaStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_saga_lifecycle_started",
		Help: "Test counter",
	})
	sagaCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_saga_lifecycle_completed",
		Help: "Test counter",
	})
	sagaDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_saga_lifecycle_duration",
		Help:    "Test histogram",
		Buckets: prometheus.DefBuckets,
	})

	reg.MustRegister(activeSagas, sagaStarted, sagaCompleted, sagaDuration)

	metrics := &SagaMetrics{
		activeSagas:   activeSagas,
		sagaStarted:   sagaStarted,
		sagaCompleted: sagaCompleted,
		sagaDuration:  sagaDuration,
	}

	// Simulate saga lifecycle
	metrics.RecordSagaStarted() // active: 1
	metrics.RecordSagaStarted() // active: 2
	metrics.RecordSagaStarted() // active: 3

	metrics.RecordSagaCompleted()
	metrics.RecordSagaDuration(50 * time.Millisecond) // active: 2
	metrics.RecordSagaCompleted()
	metrics.RecordSagaDuration(75 * time.Millisecond) // active: 1

	// Check active sagas
	gaugeMetric := &dto.Metric{}
	if err := activeSagas.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}

	if gaugeMetric.Gauge.GetValue() != 1.0 {
		t.Errorf("expected 1 active saga, got %f", gaugeMetric.Gauge.GetValue())
	}

	// Check started count
	startedMetric := &dto.Metric{}
	if err := sagaStarted.Write(startedMetric); err != nil {
		t.Fatalf("failed to write started metric: %v", err)
	}

	if startedMetric.Counter.GetValue() != 3.0 {
		t.Errorf("expected 3 started sagas, got %f", startedMetric.Counter.GetValue())
	}

	// Check completed count
	completedMetric := &dto.Metric{}
	if err := sagaCompleted.Write(completedMetric); err != nil {
		t.Fatalf("failed to write completed metric: %v", err)
	}

	if completedMetric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 completed sagas, got %f", completedMetric.Counter.GetValue())
	}
}
