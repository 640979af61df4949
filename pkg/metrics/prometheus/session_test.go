package prometheus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/sftpws/pkg/metrics"
)

func TestNewSessionMetricsRecordsAgainstRegistry(t *testing.T) {
	metrics.InitRegistry()

	m := metrics.NewSessionMetrics()
	require.NotNil(t, m, "registering this package's init() should make NewSessionMetrics non-nil once enabled")

	require.NotPanics(t, func() {
		m.RecordRequestStart("READ")
		m.RecordRequest("READ", time.Millisecond, "")
		m.RecordRequestEnd("READ")
		m.RecordBytesTransferred("read", 4096)
		m.SetActiveSessions(3)
		m.SetActiveHandles(7)
		m.RecordSessionClosed("normal")
	})
}
