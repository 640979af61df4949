// Package prometheus implements pkg/metrics' CacheMetrics and
// SessionMetrics interfaces on top of github.com/prometheus/client_golang,
// grounded on the teacher's pkg/metrics/prometheus package of the same
// shape (one file per metrics interface, promauto-registered collectors
// against a shared registry).
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/sftpws/pkg/metrics"
)

func init() {
	metrics.RegisterCacheMetricsConstructor(NewCacheMetrics)
}

// cacheMetrics is the Prometheus implementation of metrics.CacheMetrics.
type cacheMetrics struct {
	hits        *prometheus.CounterVec
	misses      *prometheus.CounterVec
	negHits     *prometheus.CounterVec
	invalidates *prometheus.CounterVec
	lookupSecs  *prometheus.HistogramVec
	entries     *prometheus.GaugeVec
}

// NewCacheMetrics creates a new Prometheus-backed CacheMetrics instance.
// Returns nil if metrics.InitRegistry has not been called.
func NewCacheMetrics() metrics.CacheMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &cacheMetrics{
		hits: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sftpws_fsadapter_cache_hits_total",
			Help: "Total cache hits by cache name (attr, dir, link).",
		}, []string{"cache"}),
		misses: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sftpws_fsadapter_cache_misses_total",
			Help: "Total cache misses by cache name.",
		}, []string{"cache"}),
		negHits: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sftpws_fsadapter_cache_negative_hits_total",
			Help: "Total hits against negative (known-absent) cache entries.",
		}, []string{"cache"}),
		invalidates: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sftpws_fsadapter_cache_invalidations_total",
			Help: "Total mutation-driven cache invalidations by cache name.",
		}, []string{"cache"}),
		lookupSecs: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sftpws_fsadapter_cache_lookup_seconds",
			Help:    "Cache lookup latency by cache name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"cache"}),
		entries: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "sftpws_fsadapter_cache_entries",
			Help: "Current number of live entries per cache.",
		}, []string{"cache"}),
	}
}

func (m *cacheMetrics) RecordHit(cacheName string) {
	m.hits.WithLabelValues(cacheName).Inc()
}

func (m *cacheMetrics) RecordMiss(cacheName string) {
	m.misses.WithLabelValues(cacheName).Inc()
}

func (m *cacheMetrics) RecordNegativeHit(cacheName string) {
	m.negHits.WithLabelValues(cacheName).Inc()
}

func (m *cacheMetrics) RecordInvalidate(cacheName string) {
	m.invalidates.WithLabelValues(cacheName).Inc()
}

func (m *cacheMetrics) ObserveLookup(cacheName string, duration time.Duration) {
	m.lookupSecs.WithLabelValues(cacheName).Observe(duration.Seconds())
}

func (m *cacheMetrics) SetEntryCount(cacheName string, count int) {
	m.entries.WithLabelValues(cacheName).Set(float64(count))
}
