// Package telemetry owns the console's Prometheus metrics.
//
// All methods are safe on a nil *Metrics, so components can be built without metrics
// in tests.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cms"

// Metrics groups every collector registered by the console.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	guard        *prometheus.CounterVec
	logins       *prometheus.CounterVec
	fetchFails   *prometheus.CounterVec
	notices      *prometheus.CounterVec
	wsConns      prometheus.Gauge
}

// New registers the console collectors plus the Go and process collectors on a
// private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status class.",
		}, []string{"method", "class"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		guard: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Route guard decisions for the protected subtree.",
		}, []string{"decision"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		fetchFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_fetch_failures_total",
			Help:      "Failed dashboard count fetches by resource.",
		}, []string{"resource"}),
		notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "Notices queued by level.",
		}, []string{"level"}),
		wsConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open notice WebSocket connections.",
		}),
	}

	reg.MustRegister(m.httpRequests, m.httpDuration, m.guard, m.logins, m.fetchFails, m.notices, m.wsConns)
	return m
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// TrackTabSessions registers a gauge reading the live tab session count on scrape.
func (m *Metrics) TrackTabSessions(count func() int) {
	if m == nil || count == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tab_sessions",
		Help:      "Tab sessions held in memory.",
	}, func() float64 { return float64(count()) }))
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, StatusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}

// GuardDecision counts one guard outcome.
func (m *Metrics) GuardDecision(decision string) {
	if m == nil {
		return
	}
	m.guard.WithLabelValues(decision).Inc()
}

// Login counts one login attempt ("success" or "failure").
func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// FetchFailure counts one failed dashboard fetch.
func (m *Metrics) FetchFailure(resource string) {
	if m == nil {
		return
	}
	m.fetchFails.WithLabelValues(resource).Inc()
}

// Notice counts one queued notice.
func (m *Metrics) Notice(level string) {
	if m == nil {
		return
	}
	m.notices.WithLabelValues(level).Inc()
}

// WSConnected adjusts the open WebSocket gauge by delta.
func (m *Metrics) WSConnected(delta int) {
	if m == nil {
		return
	}
	m.wsConns.Add(float64(delta))
}

// StatusClass buckets an HTTP status into "2xx", "4xx" and so on.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
