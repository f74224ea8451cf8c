// Package telemetry provides logging and metrics for the assistant.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "versailles"

// Metrics holds the assistant's Prometheus collectors on a private registry.
// It implements the recorder interfaces of the orchestrator, memory
// provider, fallback store and tool registry.
type Metrics struct {
	registry *prometheus.Registry

	turns         *prometheus.CounterVec
	turnDuration  prometheus.Histogram
	memoryBackend *prometheus.CounterVec
	storeFallback *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	backendUp     prometheus.Gauge
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by outcome.",
		}, []string{"status"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Duration of conversation turns.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		memoryBackend: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_backend_total",
			Help:      "Conversation memories handed out by backend.",
		}, []string{"backend"}),
		storeFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_fallback_total",
			Help:      "Session store operations served locally because the primary was unavailable.",
		}, []string{"op"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome.",
		}, []string{"tool", "status"}),
		backendUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_up",
			Help:      "Whether the networked backend answered its last health check.",
		}),
	}
	m.registry.MustRegister(
		m.turns, m.turnDuration, m.memoryBackend, m.storeFallback, m.toolCalls, m.backendUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Turn records a completed turn.
func (m *Metrics) Turn(status string, d time.Duration) {
	m.turns.WithLabelValues(status).Inc()
	m.turnDuration.Observe(d.Seconds())
}

// MemoryBackend records which backend served a memory request.
func (m *Metrics) MemoryBackend(backend string) {
	m.memoryBackend.WithLabelValues(backend).Inc()
}

// StoreFallback records a store operation that fell back to local state.
func (m *Metrics) StoreFallback(op string) {
	m.storeFallback.WithLabelValues(op).Inc()
}

// ToolCall records a tool call.
func (m *Metrics) ToolCall(tool, status string) {
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

// BackendHealth sets the backend gauge from a health check result.
func (m *Metrics) BackendHealth(err error) {
	if err != nil {
		m.backendUp.Set(0)
		return
	}
	m.backendUp.Set(1)
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics in Prometheus format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
