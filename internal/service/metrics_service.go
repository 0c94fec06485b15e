package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface,
// the catalog cache and replication across leaders.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheWrite         prometheus.Observer
	cacheHitRatio      prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	leaderReachable    *prometheus.GaugeVec
	propagationTotal   *prometheus.CounterVec
	healRowsImported   *prometheus.CounterVec
	healMergeFailures  *prometheus.CounterVec
	healLastRunSeconds prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	propagationOK        uint64
	propagationFailed    uint64
	healImported         uint64
	healFailures         uint64
}

// NewMetricsService registers the Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	leaderReachable := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "leader_reachable",
		Help: "Whether the last connection attempt to a leader succeeded",
	}, []string{"leader"})

	propagationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replication_propagations_total",
		Help: "Operation batches replayed on remote leaders",
	}, []string{"leader", "result"})

	healRowsImported := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "heal_rows_imported_total",
		Help: "Rows written by healing merges",
	}, []string{"table", "direction"})

	healMergeFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "heal_merge_failures_total",
		Help: "Table merges rolled back during healing",
	}, []string{"table", "direction"})

	healLastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "heal_last_run_timestamp_seconds",
		Help: "Unix time of the last completed heal pass",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		leaderReachable, propagationTotal, healRowsImported, healMergeFailures, healLastRun,
		goroutines,
	)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		leaderReachable:    leaderReachable,
		propagationTotal:   propagationTotal,
		healRowsImported:   healRowsImported,
		healMergeFailures:  healMergeFailures,
		healLastRunSeconds: healLastRun,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveLeaderReachability implements cluster.Observer.
func (m *MetricsService) ObserveLeaderReachability(leader string, reachable bool) {
	if m == nil {
		return
	}
	value := 0.0
	if reachable {
		value = 1
	}
	m.leaderReachable.WithLabelValues(leader).Set(value)
}

// ObservePropagation implements replication.PropagationObserver.
func (m *MetricsService) ObservePropagation(leader string, ok bool) {
	if m == nil {
		return
	}
	result := "applied"
	if ok {
		atomic.AddUint64(&m.propagationOK, 1)
	} else {
		result = "failed"
		atomic.AddUint64(&m.propagationFailed, 1)
	}
	m.propagationTotal.WithLabelValues(leader, result).Inc()
}

// ObserveHealMerge implements replication.HealObserver.
func (m *MetricsService) ObserveHealMerge(table string, direction models.MergeDirection, imported int, failed bool) {
	if m == nil {
		return
	}
	if imported > 0 {
		m.healRowsImported.WithLabelValues(table, string(direction)).Add(float64(imported))
		atomic.AddUint64(&m.healImported, uint64(imported))
	}
	if failed {
		m.healMergeFailures.WithLabelValues(table, string(direction)).Inc()
		atomic.AddUint64(&m.healFailures, 1)
	}
}

// ObserveHealCompleted stamps the completion time of a heal pass.
func (m *MetricsService) ObserveHealCompleted(at time.Time) {
	if m == nil {
		return
	}
	m.healLastRunSeconds.Set(float64(at.Unix()))
}

// Snapshot returns aggregated counters suitable for the metrics summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		PropagationsApplied:      atomic.LoadUint64(&m.propagationOK),
		PropagationsFailed:       atomic.LoadUint64(&m.propagationFailed),
		HealRowsImported:         atomic.LoadUint64(&m.healImported),
		HealMergeFailures:        atomic.LoadUint64(&m.healFailures),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
