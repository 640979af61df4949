package metrics

import "time"

// CacheMetrics provides observability for internal/fsadapter's three TTL
// caches (attribute, directory, link). Implementations collect hit/miss
// counts and lookup latency per cache; this interface is optional — pass
// nil to disable metrics collection with zero overhead, following the
// teacher's pkg/metrics.CacheMetrics contract.
type CacheMetrics interface {
	// RecordHit records a cache hit for the named cache ("attr", "dir",
	// "link").
	RecordHit(cacheName string)

	// RecordMiss records a cache miss for the named cache.
	RecordMiss(cacheName string)

	// RecordNegativeHit records a hit against a negative (known-absent)
	// cache entry.
	RecordNegativeHit(cacheName string)

	// ObserveLookup records how long a cache lookup (hit or miss) took.
	ObserveLookup(cacheName string, duration time.Duration)

	// RecordInvalidate records a mutation-driven cache invalidation.
	RecordInvalidate(cacheName string)

	// SetEntryCount records the current number of live entries in the
	// named cache.
	SetEntryCount(cacheName string, count int)
}

// newPrometheusCacheMetrics is populated by
// pkg/metrics/prometheus.RegisterCacheMetricsConstructor during that
// package's init(), avoiding an import cycle between pkg/metrics and
// pkg/metrics/prometheus.
var newPrometheusCacheMetrics func() CacheMetrics

// RegisterCacheMetricsConstructor registers the Prometheus cache metrics
// constructor. Called by pkg/metrics/prometheus's init().
func RegisterCacheMetricsConstructor(constructor func() CacheMetrics) {
	newPrometheusCacheMetrics = constructor
}

// NewCacheMetrics returns a Prometheus-backed CacheMetrics, or nil if
// metrics are not enabled (InitRegistry not called) or the prometheus
// implementation package was never imported.
func NewCacheMetrics() CacheMetrics {
	if !IsEnabled() || newPrometheusCacheMetrics == nil {
		return nil
	}
	return newPrometheusCacheMetrics()
}

// RecordHit is a nil-safe helper: it is a no-op when m is nil, so call
// sites don't need their own "if m != nil" guard.
func RecordHit(m CacheMetrics, cacheName string) {
	if m != nil {
		m.RecordHit(cacheName)
	}
}

// RecordMiss is the nil-safe counterpart to RecordHit.
func RecordMiss(m CacheMetrics, cacheName string) {
	if m != nil {
		m.RecordMiss(cacheName)
	}
}

// RecordNegativeHit is the nil-safe counterpart to CacheMetrics.RecordNegativeHit.
func RecordNegativeHit(m CacheMetrics, cacheName string) {
	if m != nil {
		m.RecordNegativeHit(cacheName)
	}
}

// RecordInvalidate is the nil-safe counterpart to CacheMetrics.RecordInvalidate.
func RecordInvalidate(m CacheMetrics, cacheName string) {
	if m != nil {
		m.RecordInvalidate(cacheName)
	}
}
