// Package metrics exposes the relay and consumer counters on a private Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "outbox"

// Outcomes of a consumed message.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

// Reasons a relay publish did not complete.
const (
	ReasonPublish = "publish"
	ReasonMark    = "mark"
)

// Metrics holds the collectors shared by the relay and the consumer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	eventsPublished  *prometheus.CounterVec
	publishFailures  *prometheus.CounterVec
	connectAttempts  *prometheus.CounterVec
	messagesConsumed *prometheus.CounterVec
	relayBatchSize   prometheus.Histogram
}

// New creates the collectors and registers them, along with the Go and
// process collectors, on a fresh registry.
func New(component string) *Metrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"component": component}

	m := &Metrics{
		registry: registry,
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "events_published_total",
			Help:        "Outbox events published to the broker and marked published.",
			ConstLabels: constLabels,
		}, []string{"event_type"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "publish_failures_total",
			Help:        "Outbox events left unpublished by a failed publish or mark.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "broker_connect_attempts_total",
			Help:        "Broker connection attempts by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		messagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "messages_consumed_total",
			Help:        "Messages handled by the inbox consumer by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		relayBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "relay_batch_size",
			Help:        "Unpublished events selected per relay iteration.",
			Buckets:     []float64{0, 1, 2, 5, 10, 25, 50, 100},
			ConstLabels: constLabels,
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsPublished,
		m.publishFailures,
		m.connectAttempts,
		m.messagesConsumed,
		m.relayBatchSize,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// EventPublished counts an event that was published and marked.
func (m *Metrics) EventPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// PublishFailed counts an event the relay could not publish or mark.
func (m *Metrics) PublishFailed(reason string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(reason).Inc()
}

// ConnectAttempt counts a broker dial. Its signature matches broker.WithAttemptHook.
func (m *Metrics) ConnectAttempt(_ int, err error) {
	if m == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "failure"
	}
	m.connectAttempts.WithLabelValues(result).Inc()
}

// MessageConsumed counts a consumed message by outcome.
func (m *Metrics) MessageConsumed(outcome string) {
	if m == nil {
		return
	}
	m.messagesConsumed.WithLabelValues(outcome).Inc()
}

// ObserveBatch records the size of a selected relay batch.
func (m *Metrics) ObserveBatch(size int) {
	if m == nil {
		return
	}
	m.relayBatchSize.Observe(float64(size))
}
