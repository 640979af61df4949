package metrics

import "time"

// SessionMetrics provides observability for internal/sftpserver's request
// handling: per-procedure request latency, in-flight counts, the
// handle-table gauge, and connection lifecycle — the server-side analogue
// of the teacher's pkg/metrics.NFSMetrics. Optional; pass nil to disable.
type SessionMetrics interface {
	// RecordRequest records a completed request: its procedure name,
	// duration, and outcome (empty errCode on success).
	RecordRequest(procedure string, duration time.Duration, errCode string)

	// RecordRequestStart increments the in-flight request gauge for procedure.
	RecordRequestStart(procedure string)

	// RecordRequestEnd decrements the in-flight request gauge for procedure.
	RecordRequestEnd(procedure string)

	// RecordBytesTransferred records bytes read ("read") or written ("write").
	RecordBytesTransferred(direction string, bytes uint64)

	// SetActiveSessions updates the current accepted-session count.
	SetActiveSessions(count int)

	// SetActiveHandles updates the current open-handle-table size for a
	// session (spec.md §4.E's [1,1024] wire handle space).
	SetActiveHandles(count int)

	// RecordSessionClosed increments the total closed-sessions counter.
	RecordSessionClosed(reason string)
}

// newPrometheusSessionMetrics is populated by
// pkg/metrics/prometheus.RegisterSessionMetricsConstructor.
var newPrometheusSessionMetrics func() SessionMetrics

// RegisterSessionMetricsConstructor registers the Prometheus session
// metrics constructor. Called by pkg/metrics/prometheus's init().
func RegisterSessionMetricsConstructor(constructor func() SessionMetrics) {
	newPrometheusSessionMetrics = constructor
}

// NewSessionMetrics returns a Prometheus-backed SessionMetrics, or nil if
// metrics are not enabled or the prometheus implementation package was
// never imported.
func NewSessionMetrics() SessionMetrics {
	if !IsEnabled() || newPrometheusSessionMetrics == nil {
		return nil
	}
	return newPrometheusSessionMetrics()
}

// RecordRequest is a nil-safe helper mirroring SessionMetrics.RecordRequest.
func RecordRequest(m SessionMetrics, procedure string, duration time.Duration, errCode string) {
	if m != nil {
		m.RecordRequest(procedure, duration, errCode)
	}
}

// RecordRequestStart is the nil-safe counterpart to SessionMetrics.RecordRequestStart.
func RecordRequestStart(m SessionMetrics, procedure string) {
	if m != nil {
		m.RecordRequestStart(procedure)
	}
}

// RecordRequestEnd is the nil-safe counterpart to SessionMetrics.RecordRequestEnd.
func RecordRequestEnd(m SessionMetrics, procedure string) {
	if m != nil {
		m.RecordRequestEnd(procedure)
	}
}

// SetActiveHandles is the nil-safe counterpart to SessionMetrics.SetActiveHandles.
func SetActiveHandles(m SessionMetrics, count int) {
	if m != nil {
		m.SetActiveHandles(count)
	}
}

// SetActiveSessions is the nil-safe counterpart to SessionMetrics.SetActiveSessions.
func SetActiveSessions(m SessionMetrics, count int) {
	if m != nil {
		m.SetActiveSessions(count)
	}
}
