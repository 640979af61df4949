// Package metrics defines the optional, nil-safe observability interfaces
// used across sftpws: CacheMetrics for internal/fsadapter's TTL caches and
// SessionMetrics for internal/sftpserver's request handling. Passing nil
// anywhere one of these interfaces is accepted disables metrics with zero
// runtime overhead — the same contract the teacher's pkg/metrics (cache.go,
// nfs.go) documents for its own CacheMetrics/NFSMetrics interfaces.
//
// The Prometheus-backed implementation lives in pkg/metrics/prometheus and
// registers itself here via RegisterCacheMetricsConstructor/
// RegisterSessionMetricsConstructor, the same indirection the teacher's
// pkg/metrics/cache.go documents ("This indirection avoids import cycles
// while keeping the API clean") — import pkg/metrics/prometheus for its
// init-time registration side effect, then call InitRegistry.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	regMu     sync.Mutex
	registry  *prometheus.Registry
	isEnabled atomic.Bool
)

// InitRegistry creates (or returns the existing) Prometheus registry and
// marks metrics as enabled. Must be called before NewCacheMetrics/
// NewSessionMetrics return a non-nil implementation.
func InitRegistry() *prometheus.Registry {
	regMu.Lock()
	defer regMu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	isEnabled.Store(true)
	return registry
}

// GetRegistry returns the current registry, initializing it if needed.
func GetRegistry() *prometheus.Registry {
	regMu.Lock()
	defer regMu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return isEnabled.Load()
}
