package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.RateLimitDecision("contact", "denied")
	m.RateLimitDecision("contact", "denied")
	m.LeadEvent("studio", "converted")
	m.JobOutcome("lead.notify_staff", "completed")
	m.AlertsServed("critical", 3)
	m.AlertsServed("low", 0)
	m.ObserveHTTP(http.MethodGet, "/api/leads", 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.rateLimit.WithLabelValues("contact", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.leadEvents.WithLabelValues("studio", "converted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobOutcomes.WithLabelValues("lead.notify_staff", "completed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.alertsQueried.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/leads", "4xx")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RateLimitDecision("api", "allowed")
		m.LeadEvent("t", "submitted")
		m.JobOutcome("x", "failed")
		m.AlertsServed("high", 1)
		m.ObserveHTTP("GET", "/", 200, time.Second)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.LeadEvent("harbor", "submitted")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `portal_leads_events_total{event="submitted",tenant="harbor"} 1`)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(201))
	assert.Equal(t, "3xx", statusClass(304))
	assert.Equal(t, "4xx", statusClass(429))
	assert.Equal(t, "5xx", statusClass(503))
}
