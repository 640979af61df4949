package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/sftpws/pkg/metrics"
)

func init() {
	metrics.RegisterSessionMetricsConstructor(NewSessionMetrics)
}

// sessionMetrics is the Prometheus implementation of metrics.SessionMetrics.
type sessionMetrics struct {
	requests         *prometheus.CounterVec
	requestSecs      *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
	bytesTotal       *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	activeHandles    prometheus.Gauge
	sessionsClosed   *prometheus.CounterVec
}

// NewSessionMetrics creates a new Prometheus-backed SessionMetrics
// instance. Returns nil if metrics.InitRegistry has not been called.
func NewSessionMetrics() metrics.SessionMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &sessionMetrics{
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sftpws_sftpserver_requests_total",
			Help: "Total completed requests by procedure and outcome.",
		}, []string{"procedure", "error_code"}),
		requestSecs: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sftpws_sftpserver_request_duration_seconds",
			Help:    "Request handling latency by procedure.",
			Buckets: prometheus.DefBuckets,
		}, []string{"procedure"}),
		requestsInFlight: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "sftpws_sftpserver_requests_in_flight",
			Help: "Requests currently being processed, by procedure.",
		}, []string{"procedure"}),
		bytesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sftpws_sftpserver_bytes_total",
			Help: "Total bytes transferred by direction (read, write).",
		}, []string{"direction"}),
		activeSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sftpws_sftpserver_active_sessions",
			Help: "Current number of accepted sessions.",
		}),
		activeHandles: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sftpws_sftpserver_active_handles",
			Help: "Current number of open wire handles across sessions.",
		}),
		sessionsClosed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sftpws_sftpserver_sessions_closed_total",
			Help: "Total sessions closed, by reason.",
		}, []string{"reason"}),
	}
}

func (m *sessionMetrics) RecordRequest(procedure string, duration time.Duration, errCode string) {
	m.requests.WithLabelValues(procedure, errCode).Inc()
	m.requestSecs.WithLabelValues(procedure).Observe(duration.Seconds())
}

func (m *sessionMetrics) RecordRequestStart(procedure string) {
	m.requestsInFlight.WithLabelValues(procedure).Inc()
}

func (m *sessionMetrics) RecordRequestEnd(procedure string) {
	m.requestsInFlight.WithLabelValues(procedure).Dec()
}

func (m *sessionMetrics) RecordBytesTransferred(direction string, bytes uint64) {
	m.bytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

func (m *sessionMetrics) SetActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

func (m *sessionMetrics) SetActiveHandles(count int) {
	m.activeHandles.Set(float64(count))
}

func (m *sessionMetrics) RecordSessionClosed(reason string) {
	m.sessionsClosed.WithLabelValues(reason).Inc()
}
