package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSnapshot is a lightweight aggregate view of engine activity exposed
// by the bootstrap server.
type MetricsSnapshot struct {
	AttemptsSubmitted      uint64    `json:"attempts_submitted"`
	PapersGenerated        uint64    `json:"papers_generated"`
	ResultsIngested        uint64    `json:"results_ingested"`
	RecommendationsCreated uint64    `json:"recommendations_created"`
	CacheHitRatio          float64   `json:"cache_hit_ratio"`
	CacheHits              uint64    `json:"cache_hits"`
	CacheMisses            uint64    `json:"cache_misses"`
	DBQueryCount           uint64    `json:"db_query_count"`
	AvgDBQueryDurationMs   float64   `json:"avg_db_query_duration_ms"`
	Goroutines             int       `json:"goroutines"`
	GeneratedAt            time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation for the engine and
// provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	attemptsTotal   *prometheus.CounterVec
	papersTotal     *prometheus.CounterVec
	resultsTotal    *prometheus.CounterVec
	recsTotal       prometheus.Counter
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	attemptCount         uint64
	paperCount           uint64
	resultCount          uint64
	recCount             uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
}

// NewMetricsService registers the engine's Prometheus collectors.
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

	attemptsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "practice_attempts_total",
		Help: "Total practice attempts submitted",
	}, []string{"outcome"})

	papersTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "papers_generated_total",
		Help: "Total test papers generated",
	}, []string{"kind"})

	resultsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "results_ingested_total",
		Help: "Total test results ingested",
	}, []string{"kind"})

	recsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recommendations_created_total",
		Help: "Total adaptive recommendations created",
	})

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

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, attemptsTotal, papersTotal, resultsTotal, recsTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, dbQueryDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		attemptsTotal:   attemptsTotal,
		papersTotal:     papersTotal,
		resultsTotal:    resultsTotal,
		recsTotal:       recsTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		dbQueryDuration: dbQueryDuration,
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

// ObserveHTTPRequest records bootstrap endpoint metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordAttempt counts a submitted practice attempt by outcome.
func (m *MetricsService) RecordAttempt(correct bool) {
	if m == nil {
		return
	}
	outcome := "incorrect"
	if correct {
		outcome = "correct"
	}
	m.attemptsTotal.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.attemptCount, 1)
}

// RecordPaperGenerated counts a generated paper by kind (weekly, lesson).
func (m *MetricsService) RecordPaperGenerated(kind string) {
	if m == nil {
		return
	}
	m.papersTotal.WithLabelValues(kind).Inc()
	atomic.AddUint64(&m.paperCount, 1)
}

// RecordResultIngested counts an ingested result by kind (weekly, lesson).
func (m *MetricsService) RecordResultIngested(kind string) {
	if m == nil {
		return
	}
	m.resultsTotal.WithLabelValues(kind).Inc()
	atomic.AddUint64(&m.resultCount, 1)
}

// RecordRecommendations counts created recommendations.
func (m *MetricsService) RecordRecommendations(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.recsTotal.Add(float64(count))
	atomic.AddUint64(&m.recCount, uint64(count))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// Snapshot returns aggregated metrics without scraping the registry.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)

	var cacheRatio float64
	if hits+misses > 0 {
		cacheRatio = float64(hits) / float64(hits+misses)
	}
	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		AttemptsSubmitted:      atomic.LoadUint64(&m.attemptCount),
		PapersGenerated:        atomic.LoadUint64(&m.paperCount),
		ResultsIngested:        atomic.LoadUint64(&m.resultCount),
		RecommendationsCreated: atomic.LoadUint64(&m.recCount),
		CacheHitRatio:          cacheRatio,
		CacheHits:              hits,
		CacheMisses:            misses,
		DBQueryCount:           dbCount,
		AvgDBQueryDurationMs:   avgDBMs,
		Goroutines:             runtime.NumGoroutine(),
		GeneratedAt:            time.Now().UTC(),
	}
}
