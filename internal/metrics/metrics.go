// Package metrics exposes Prometheus collectors for the paper-scroll service.
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
	upstreamRequestsTotal      *prometheus.CounterVec
	upstreamRequestDuration    *prometheus.HistogramVec
	upstreamRetriesTotal       *prometheus.CounterVec
	pacingWaitSeconds          prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	feedResolutionsTotal       *prometheus.CounterVec
	syncActive                 prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperscroll_upstream_requests_total",
				Help: "Requests issued to external APIs, labeled by api and status code.",
			},
			[]string{"api", "code"},
		)

		upstreamRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paperscroll_upstream_request_duration_seconds",
				Help:    "Latency of external API requests, labeled by api.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 45},
			},
			[]string{"api"},
		)

		upstreamRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperscroll_upstream_retries_total",
				Help: "Retries scheduled after transient upstream failures, labeled by api and status code.",
			},
			[]string{"api", "code"},
		)

		pacingWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "paperscroll_pacing_wait_seconds",
				Help:    "Time spent waiting on the sampler pacing gate.",
				Buckets: []float64{0, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		feedResolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperscroll_feed_resolutions_total",
				Help: "Feed identifier resolutions, labeled by source (cache, network, error).",
			},
			[]string{"source"},
		)

		syncActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "paperscroll_sync_active",
				Help: "1 while a sync run is in progress.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveUpstreamRequest records one external API call. code is the HTTP
// status or "error" for transport failures.
func ObserveUpstreamRequest(api, code string, duration time.Duration) {
	Init()
	upstreamRequestsTotal.WithLabelValues(api, code).Inc()
	upstreamRequestDuration.WithLabelValues(api).Observe(duration.Seconds())
}

// ObserveRetry counts a scheduled retry.
func ObserveRetry(api string, code int) {
	Init()
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	upstreamRetriesTotal.WithLabelValues(api, label).Inc()
}

// ObservePacingWait records the duration a caller waited on the pacing gate.
func ObservePacingWait(duration time.Duration) {
	Init()
	pacingWaitSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveFeedResolution counts how a feed identifier was resolved.
func ObserveFeedResolution(source string) {
	Init()
	feedResolutionsTotal.WithLabelValues(source).Inc()
}

// SetSyncActive flips the sync gauge.
func SetSyncActive(active bool) {
	Init()
	if active {
		syncActive.Set(1)
		return
	}
	syncActive.Set(0)
}
