package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface, the Redis cache and the scoring engine itself.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	scoringRuns        *prometheus.CounterVec
	scoringDuration    prometheus.Observer
	scoringAuthorities prometheus.Gauge
	configWarnings     *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	scoringRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scoring_runs_total",
		Help: "Total aggregation runs by session and outcome",
	}, []string{"session", "result"})

	scoringDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scoring_run_duration_seconds",
		Help:    "Duration of full aggregation runs",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	scoringAuthorities := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scoring_run_authorities",
		Help: "Number of authorities scored in the most recent run",
	})

	configWarnings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scoring_config_warnings_total",
		Help: "Configuration problems noticed during scoring, by kind",
	}, []string{"kind"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses,
		scoringRuns, scoringDuration, scoringAuthorities, configWarnings, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		scoringRuns:        scoringRuns,
		scoringDuration:    scoringDuration,
		scoringAuthorities: scoringAuthorities,
		configWarnings:     configWarnings,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveScoringRun records the outcome of one aggregation run.
func (m *MetricsService) ObserveScoringRun(session string, authorities int, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "error"
	}
	m.scoringRuns.WithLabelValues(session, result).Inc()
	m.scoringDuration.Observe(duration.Seconds())
	if success {
		m.scoringAuthorities.Set(float64(authorities))
	}
}

// IncConfigWarning counts a configuration problem noticed mid-run.
func (m *MetricsService) IncConfigWarning(kind string) {
	if m == nil {
		return
	}
	m.configWarnings.WithLabelValues(kind).Inc()
}
