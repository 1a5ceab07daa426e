package exportprometheus

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-sqlexport/export"
)

const namespace = "sqlexport"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Hook records export lifecycle events as Prometheus metrics.
type Hook struct {
	registry *prometheus.Registry

	exports  *prometheus.CounterVec
	rows     *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge

	mu      sync.Mutex
	running map[string]struct{}
}

// NewHook registers the export metrics on registry. A nil registry gets a
// fresh one.
func NewHook(registry *prometheus.Registry) *Hook {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Hook{
		registry: registry,
		running:  make(map[string]struct{}),
		exports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Finished exports by dialect and result.",
		}, []string{"dialect", "result"}),
		rows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "INSERT statements written by dialect.",
		}, []string{"dialect"}),
		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes written to export files by dialect.",
		}, []string{"dialect"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Duration of finished exports.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"dialect"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exports_in_flight",
			Help:      "Exports currently running.",
		}),
	}
}

// Emit implements export.MetricsHook.
func (h *Hook) Emit(_ context.Context, evt export.MetricsEvent) error {
	if h == nil {
		return nil
	}
	dialect := strings.TrimSpace(string(evt.Dialect))
	if dialect == "" {
		dialect = "unknown"
	}

	switch evt.Name {
	case "export.started":
		h.track(evt.ExportID, true)
	case "export.completed":
		h.track(evt.ExportID, false)
		h.exports.WithLabelValues(dialect, ResultSuccess).Inc()
		h.rows.WithLabelValues(dialect).Add(float64(evt.Rows))
		h.bytes.WithLabelValues(dialect).Add(float64(evt.Bytes))
		h.duration.WithLabelValues(dialect).Observe(evt.Duration.Seconds())
	case "export.failed":
		h.track(evt.ExportID, false)
		h.exports.WithLabelValues(dialect, ResultFailure).Inc()
		h.duration.WithLabelValues(dialect).Observe(evt.Duration.Seconds())
	}
	return nil
}

// track keeps the in-flight gauge in step with started runs; a failure
// during Init has no matching start.
func (h *Hook) track(id string, started bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if started {
		h.running[id] = struct{}{}
		h.inFlight.Inc()
		return
	}
	if _, ok := h.running[id]; ok {
		delete(h.running, id)
		h.inFlight.Dec()
	}
}

// Registry returns the registry the metrics are registered on.
func (h *Hook) Registry() *prometheus.Registry {
	return h.registry
}

// Handler exposes the registry in the Prometheus exposition format.
func (h *Hook) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
