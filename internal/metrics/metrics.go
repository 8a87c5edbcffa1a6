// Package metrics exposes Prometheus collectors for the ETL service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	etlRunsTotal             *prometheus.CounterVec
	etlRunDurationSeconds    prometheus.Histogram
	etlRowsLoadedTotal       prometheus.Counter
	etlPairFailuresTotal     *prometheus.CounterVec
	etlFetchAttemptsTotal    *prometheus.CounterVec
	etlRateLimitDelaySeconds prometheus.Histogram

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		etlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendsync_runs_total",
				Help: "Total number of pipeline runs, labeled by outcome status.",
			},
			[]string{"status"},
		)

		etlRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trendsync_run_duration_seconds",
				Help:    "Histogram of end-to-end pipeline run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		etlRowsLoadedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "trendsync_rows_loaded_total",
				Help: "Total number of delta rows appended to the target store.",
			},
		)

		etlPairFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendsync_pair_failures_total",
				Help: "Total number of failed keyword/market pairs, labeled by stage.",
			},
			[]string{"stage"},
		)

		etlFetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendsync_fetch_attempts_total",
				Help: "Total number of source fetch attempts, labeled by result.",
			},
			[]string{"result"},
		)

		etlRateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trendsync_rate_limit_delay_seconds",
				Help:    "Histogram of waits imposed by the global request rate limit.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendsync_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method, route and status.",
			},
			[]string{"method", "route", "status"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trendsync_http_request_duration_seconds",
				Help:    "Histogram of HTTP request durations, labeled by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records one finished pipeline run.
func ObserveRun(status string, duration time.Duration) {
	etlRunsTotal.WithLabelValues(status).Inc()
	etlRunDurationSeconds.Observe(duration.Seconds())
}

// AddRowsLoaded counts rows appended to the target store.
func AddRowsLoaded(n int) {
	if n > 0 {
		etlRowsLoadedTotal.Add(float64(n))
	}
}

// ObservePairFailure counts a failed keyword/market pair for the given stage.
func ObservePairFailure(stage string) {
	etlPairFailuresTotal.WithLabelValues(stage).Inc()
}

// ObserveFetchAttempt counts one source fetch attempt by result
// (ok, throttled, transient, permanent).
func ObserveFetchAttempt(result string) {
	etlFetchAttemptsTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	etlRateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
