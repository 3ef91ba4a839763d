package consumer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bhaijames252-sketch/billbillbill/pkg/monitoring"
)

// Metrics aggregates the consumer's Prometheus counters. A nil *Metrics is
// valid and records nothing, which keeps handler tests quiet.
type Metrics struct {
	received  prometheus.Counter
	processed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	requeued  prometheus.Counter
	rejected  prometheus.Counter
	batches   prometheus.Counter
	inFlight  prometheus.Gauge
}

// NewMetrics registers the consumer counters on the service collector
func NewMetrics(mc *monitoring.MetricsCollector) *Metrics {
	processed := mc.NewCounter("events_processed_total",
		"Events processed by resource type, event type, and outcome",
		[]string{"resource_type", "event_type", "outcome"})
	failed := mc.NewCounter("events_failed_total",
		"Events whose downstream call failed, by resource type",
		[]string{"resource_type"})
	received := mc.NewCounter("messages_received_total",
		"Raw deliveries received from the broker", nil)
	requeued := mc.NewCounter("messages_requeued_total",
		"Deliveries returned to the queue for another attempt", nil)
	rejected := mc.NewCounter("messages_rejected_total",
		"Deliveries dead-lettered as unprocessable", nil)
	batches := mc.NewCounter("batches_processed_total",
		"Batches flushed", nil)
	inFlight := mc.NewGauge("handlers_in_flight",
		"Concurrently running event handlers", nil)

	return &Metrics{
		received:  received.WithLabelValues(),
		processed: processed,
		failed:    failed,
		requeued:  requeued.WithLabelValues(),
		rejected:  rejected.WithLabelValues(),
		batches:   batches.WithLabelValues(),
		inFlight:  inFlight.WithLabelValues(),
	}
}

func (m *Metrics) recvd() {
	if m != nil {
		m.received.Inc()
	}
}

func (m *Metrics) done(resourceType, eventType, outcome string) {
	if m != nil {
		m.processed.WithLabelValues(resourceType, eventType, outcome).Inc()
	}
}

func (m *Metrics) fail(resourceType string) {
	if m != nil {
		m.failed.WithLabelValues(resourceType).Inc()
	}
}

func (m *Metrics) requeue() {
	if m != nil {
		m.requeued.Inc()
	}
}

func (m *Metrics) reject() {
	if m != nil {
		m.rejected.Inc()
	}
}

func (m *Metrics) batch() {
	if m != nil {
		m.batches.Inc()
	}
}

func (m *Metrics) handlerStart() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) handlerEnd() {
	if m != nil {
		m.inFlight.Dec()
	}
}
