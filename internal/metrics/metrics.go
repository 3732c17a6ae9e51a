// Package metrics exposes Prometheus instrumentation for the SMB client.
//
// All metrics use the smbclient_ prefix. A nil *Metrics is valid and records
// nothing, so the wire layer can call it unconditionally.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks SMB client request and session metrics.
type Metrics struct {
	// RequestsTotal counts SMB2 requests by command and final status
	RequestsTotal *prometheus.CounterVec

	// RequestDuration tracks round-trip latency per command
	RequestDuration *prometheus.HistogramVec

	// BytesTotal counts payload bytes moved by READ and WRITE
	BytesTotal *prometheus.CounterVec

	// SessionsActive tracks currently authenticated sessions
	SessionsActive prometheus.Gauge

	// SessionSetupsTotal counts authentication attempts by mechanism and result
	SessionSetupsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates client metrics registered on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbclient_requests_total",
				Help: "Total SMB2 requests by command and status",
			},
			[]string{"command", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smbclient_request_duration_seconds",
				Help:    "SMB2 request round-trip duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		BytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbclient_bytes_total",
				Help: "Total payload bytes transferred by direction",
			},
			[]string{"direction"}, // "read", "write"
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "smbclient_sessions_active",
				Help: "Current number of authenticated SMB sessions",
			},
		),
		SessionSetupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbclient_session_setups_total",
				Help: "Total session setup attempts by mechanism and result",
			},
			[]string{"mechanism", "result"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.BytesTotal,
		m.SessionsActive,
		m.SessionSetupsTotal,
	)
	return m
}

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns the process-wide metrics instance.
func Default() *Metrics {
	defaultOnce.Do(func() { defaultM = New() })
	return defaultM
}

// RecordRequest records one completed request.
func (m *Metrics) RecordRequest(command, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(command, status).Inc()
	m.RequestDuration.WithLabelValues(command).Observe(durationSeconds)
}

// RecordBytes adds n to the read or write byte counter.
func (m *Metrics) RecordBytes(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesTotal.WithLabelValues(direction).Add(float64(n))
}

// RecordSessionSetup records an authentication attempt. A successful attempt
// also increments the active session gauge.
func (m *Metrics) RecordSessionSetup(mechanism string, ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
		m.SessionsActive.Inc()
	}
	m.SessionSetupsTotal.WithLabelValues(mechanism, result).Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
