package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Tool run metrics
	ToolRunsTotal      *prometheus.CounterVec
	ToolRunDuration    *prometheus.HistogramVec
	ToolRunErrorsTotal *prometheus.CounterVec

	// Registry metrics
	RegistryTools          *prometheus.GaugeVec
	RegistryOverridesTotal *prometheus.CounterVec
	RegistryReloadsTotal   *prometheus.CounterVec

	// Fan-out metrics
	FanoutInflight prometheus.Gauge
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ToolRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_runs_total",
				Help: "Total number of tool runs by outcome",
			},
			[]string{"tool", "kind", "outcome"},
		),
		ToolRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_run_duration_seconds",
				Help:    "Duration of tool runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool", "kind"},
		),
		ToolRunErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_run_errors_total",
				Help: "Total number of failed tool runs by error code",
			},
			[]string{"tool", "code"},
		),

		RegistryTools: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "registry_tools",
				Help: "Number of tools in the current registry by source tier",
			},
			[]string{"tier"},
		),
		RegistryOverridesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_overrides_total",
				Help: "Total number of tools overridden by a higher tier during merge",
			},
			[]string{"tier"},
		),
		RegistryReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_reloads_total",
				Help: "Total number of registry reloads by status",
			},
			[]string{"status"},
		),

		FanoutInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fanout_inflight",
				Help: "Number of fan-out items currently being processed",
			},
		),
	}

	m.registerMetrics()

	return m
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.ToolRunsTotal)
	m.registry.MustRegister(m.ToolRunDuration)
	m.registry.MustRegister(m.ToolRunErrorsTotal)

	m.registry.MustRegister(m.RegistryTools)
	m.registry.MustRegister(m.RegistryOverridesTotal)
	m.registry.MustRegister(m.RegistryReloadsTotal)

	m.registry.MustRegister(m.FanoutInflight)
}

// RecordRun records one finished tool run.
func (m *Metrics) RecordRun(tool, kind, outcome string, duration time.Duration) {
	m.ToolRunsTotal.WithLabelValues(tool, kind, outcome).Inc()
	m.ToolRunDuration.WithLabelValues(tool, kind).Observe(duration.Seconds())
}

// RecordError records a failed tool run by error code.
func (m *Metrics) RecordError(tool, code string) {
	m.ToolRunErrorsTotal.WithLabelValues(tool, code).Inc()
}

// RecordOverride counts a tool replaced during registry merge.
func (m *Metrics) RecordOverride(tier string) {
	m.RegistryOverridesTotal.WithLabelValues(tier).Inc()
}

// SetRegistrySize sets the number of tools a tier contributes.
func (m *Metrics) SetRegistrySize(tier string, n int) {
	m.RegistryTools.WithLabelValues(tier).Set(float64(n))
}

// RecordReload counts a registry reload attempt.
func (m *Metrics) RecordReload(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.RegistryReloadsTotal.WithLabelValues(status).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
