package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the Prometheus metrics of the plugin runtime.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PluginLoadsTotal         *prometheus.CounterVec
	PluginTransitionsTotal   *prometheus.CounterVec
	PluginTransitionDuration *prometheus.HistogramVec
	PluginsRegistered        prometheus.Gauge
}

// NewMetrics creates the plugin metrics and registers them with registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		PluginLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probekit_plugin_loads_total",
				Help: "Total number of plugin load attempts",
			},
			[]string{"kind", "status"},
		),
		PluginTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probekit_plugin_transitions_total",
				Help: "Total number of plugin lifecycle transitions",
			},
			[]string{"plugin", "transition", "status"},
		),
		PluginTransitionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "probekit_plugin_transition_duration_seconds",
				Help:    "Duration of plugin lifecycle transitions in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"transition"},
		),
		PluginsRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "probekit_plugins_registered",
				Help: "Number of plugins currently registered",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.PluginLoadsTotal,
			m.PluginTransitionsTotal,
			m.PluginTransitionDuration,
			m.PluginsRegistered,
		)
	}

	return m
}

// RecordLoad records a plugin load attempt
func (m *Metrics) RecordLoad(kind string, err error) {
	if m == nil {
		return
	}
	m.PluginLoadsTotal.WithLabelValues(kind, outcome(err)).Inc()
}

// RecordTransition records a lifecycle transition of plugin
func (m *Metrics) RecordTransition(plugin, transition string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.PluginTransitionsTotal.WithLabelValues(plugin, transition, outcome(err)).Inc()
	m.PluginTransitionDuration.WithLabelValues(transition).Observe(duration.Seconds())
}

// SetRegistered sets the number of registered plugins
func (m *Metrics) SetRegistered(n int) {
	if m == nil {
		return
	}
	m.PluginsRegistered.Set(float64(n))
}

// MetricsHandler returns the Prometheus scrape handler for gatherer
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
