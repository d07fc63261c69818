package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsCollector exports request and audit counters for Prometheus.
// A nil collector records nothing.
type metricsCollector struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	auditEvents *prometheus.CounterVec
}

func newMetricsCollector(reg prometheus.Registerer) *metricsCollector {
	m := &metricsCollector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visica_http_requests_total",
				Help: "Total number of record store requests",
			},
			[]string{"method", "route", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "visica_http_request_duration_seconds",
				Help:    "Record store request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		auditEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visica_audit_events_total",
				Help: "Total number of audit events by type",
			},
			[]string{"event"},
		),
	}
	reg.MustRegister(m.requests, m.duration, m.auditEvents)
	return m
}

func (m *metricsCollector) observeRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if status == 0 {
		status = 200
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// recordEvent counts an audit event. Credential rejections are the signal
// to alert on for passphrase guessing.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil {
		return
	}
	m.auditEvents.WithLabelValues(string(event)).Inc()
}
