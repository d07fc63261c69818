package api

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsCollector(reg)
	m.observeRequest("GET", "/records/{id}", 200, time.Millisecond)
	m.recordEvent(AuditRecordViewed)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"visica_http_requests_total",
		"visica_http_request_duration_seconds",
		"visica_audit_events_total",
	} {
		assert.True(t, names[want], "metric %q should be registered", want)
	}
}

func TestMetricsCollector_Counts(t *testing.T) {
	m := newMetricsCollector(prometheus.NewRegistry())

	m.recordEvent(AuditCredentialRejected)
	m.recordEvent(AuditCredentialRejected)
	m.recordEvent(AuditRecordCreated)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.auditEvents.WithLabelValues(string(AuditCredentialRejected))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditEvents.WithLabelValues(string(AuditRecordCreated))))

	m.observeRequest("DELETE", "/records/{id}", 403, time.Millisecond)
	m.observeRequest("DELETE", "/records/{id}", 0, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("DELETE", "/records/{id}", "403")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("DELETE", "/records/{id}", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestMetricsCollector_NilIsSafe(t *testing.T) {
	var m *metricsCollector
	assert.NotPanics(t, func() {
		m.recordEvent(AuditRecordDeleted)
		m.observeRequest("GET", "/", 200, time.Second)
	})
}
