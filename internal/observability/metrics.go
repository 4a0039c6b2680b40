package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the tool-call pipeline.
//
// Metrics are registered against an explicit registry rather than the
// package default so tests can construct fresh instances.
type Metrics struct {
	registry *prometheus.Registry

	// ToolCallCounter counts tool invocations.
	// Labels: tool, status (success|error)
	ToolCallCounter *prometheus.CounterVec

	// ToolCallDuration measures tool call latency in seconds.
	// Labels: tool
	ToolCallDuration *prometheus.HistogramVec

	// ToolCallsInFlight gauges currently executing tool calls.
	ToolCallsInFlight prometheus.Gauge

	// ResourceReadCounter counts resource reads by URI scheme.
	// Labels: scheme, status (success|error)
	ResourceReadCounter *prometheus.CounterVec

	// ErrorCounter tracks pipeline errors by kind.
	// Labels: kind
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all pipeline metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		ToolCallCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flyserve_tool_calls_total",
				Help: "Total number of tool calls by tool and status",
			},
			[]string{"tool", "status"},
		),

		ToolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flyserve_tool_call_duration_seconds",
				Help:    "Duration of tool calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),

		ToolCallsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "flyserve_tool_calls_in_flight",
				Help: "Number of tool calls currently executing",
			},
		),

		ResourceReadCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flyserve_resource_reads_total",
				Help: "Total number of resource reads by URI scheme and status",
			},
			[]string{"scheme", "status"},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flyserve_errors_total",
				Help: "Total number of pipeline errors by kind",
			},
			[]string{"kind"},
		),
	}
}

// Registry exposes the underlying registry for serving /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
