// Package metrics owns the Prometheus registry of the service. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scholarbridge"

type Metrics struct {
	registry *prometheus.Registry

	intakeOutcomes  *prometheus.CounterVec
	folders         *prometheus.CounterVec
	renders         *prometheus.CounterVec
	renderDuration  prometheus.Histogram
	renderInFlight  prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	reconciliations *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		intakeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "events_total",
			Help:      "Webhook events by final state.",
		}, []string{"state"}),
		folders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "folders_total",
			Help:      "Folder provisioning results.",
		}, []string{"result"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "renders_total",
			Help:      "Profile document renders by result.",
		}, []string{"result"}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "render_duration_seconds",
			Help:      "Time spent assembling and rendering a profile document.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		renderInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "renders_in_flight",
			Help:      "Renders currently holding a slot.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Reconciliation ledger writes by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.intakeOutcomes,
		m.folders,
		m.renders,
		m.renderDuration,
		m.renderInFlight,
		m.httpRequests,
		m.httpDuration,
		m.reconciliations,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) IntakeOutcome(state string) {
	if m == nil {
		return
	}
	m.intakeOutcomes.WithLabelValues(state).Inc()
}

func (m *Metrics) FolderResolved(result string) {
	if m == nil {
		return
	}
	m.folders.WithLabelValues(result).Inc()
}

func (m *Metrics) Reconciliation(reason string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(reason).Inc()
}

func (m *Metrics) RenderStarted() {
	if m == nil {
		return
	}
	m.renderInFlight.Inc()
}

func (m *Metrics) RenderFinished(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.renderInFlight.Dec()
	m.renders.WithLabelValues(result).Inc()
	m.renderDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusLabel(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	}
	return "2xx"
}
