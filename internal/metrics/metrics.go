// Package metrics defines the Prometheus collectors exported by the portal.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portal"

// Metrics groups the portal's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	rateLimit     *prometheus.CounterVec
	leadEvents    *prometheus.CounterVec
	jobOutcomes   *prometheus.CounterVec
	alertsQueried *prometheus.CounterVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status class.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limit decisions by policy and outcome (allowed, denied, error).",
		}, []string{"policy", "outcome"}),
		leadEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "events_total",
			Help:      "Lead pipeline events by tenant.",
		}, []string{"tenant", "event"}),
		jobOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "outcomes_total",
			Help:      "Background job outcomes by type (completed, retried, failed).",
		}, []string{"type", "outcome"}),
		alertsQueried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "served_total",
			Help:      "Alerts served by severity.",
		}, []string{"severity"}),
	}

	reg.MustRegister(m.httpRequests, m.httpDuration, m.rateLimit, m.leadEvents, m.jobOutcomes, m.alertsQueried)
	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTP records one finished request
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RateLimitDecision records the outcome of a limiter check
func (m *Metrics) RateLimitDecision(policy, outcome string) {
	if m == nil {
		return
	}
	m.rateLimit.WithLabelValues(policy, outcome).Inc()
}

// LeadEvent records a lead pipeline event such as submitted or converted
func (m *Metrics) LeadEvent(tenant, event string) {
	if m == nil {
		return
	}
	m.leadEvents.WithLabelValues(tenant, event).Inc()
}

// JobOutcome records how a background job finished
func (m *Metrics) JobOutcome(jobType, outcome string) {
	if m == nil {
		return
	}
	m.jobOutcomes.WithLabelValues(jobType, outcome).Inc()
}

// AlertsServed records alerts returned to an admin
func (m *Metrics) AlertsServed(severity string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.alertsQueried.WithLabelValues(severity).Add(float64(n))
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
