// Package metrics exposes Prometheus collectors for the lookup service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch results recorded by ObserveDispatch.
const (
	DispatchStarted = "started"
	DispatchJoined  = "joined"
	DispatchFailed  = "failed"
)

var (
	lookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countryd_lookups_total",
			Help: "Total number of lookups answered, labeled by response status.",
		},
		[]string{"status"},
	)

	lookupDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "countryd_lookup_duration_seconds",
			Help:    "Histogram of lookup latencies as seen by callers, labeled by field.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"field"},
	)

	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countryd_dispatch_total",
			Help: "Crawl dispatch decisions, labeled by result (started, joined, failed).",
		},
		[]string{"result"},
	)

	crawlTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countryd_crawl_tasks_total",
			Help: "Total number of crawl tasks completed, labeled by field and outcome status.",
		},
		[]string{"field", "status"},
	)

	crawlTaskDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "countryd_crawl_task_duration_seconds",
			Help:    "Histogram of upstream fetch durations, labeled by field.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"field"},
	)

	politenessDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "countryd_politeness_delay_seconds",
			Help:    "Histogram of politeness throttle waits.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"host"},
	)

	resultStoreEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "countryd_result_store_entries",
			Help: "Number of pending or unconsumed entries in the result store.",
		},
	)

	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countryd_events_published_total",
			Help: "Lookup completion events published, labeled by result.",
		},
		[]string{"result"},
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
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLookup records a lookup answered with status.
func ObserveLookup(field string, status int, duration time.Duration) {
	lookupsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	if field == "" {
		field = "none"
	}
	lookupDurationSeconds.WithLabelValues(field).Observe(duration.Seconds())
}

// ObserveDispatch records whether a lookup started a crawl or joined one.
func ObserveDispatch(result string) {
	dispatchTotal.WithLabelValues(result).Inc()
}

// ObserveCrawlTask records a completed crawl task.
func ObserveCrawlTask(field string, status int, duration time.Duration) {
	crawlTasksTotal.WithLabelValues(field, strconv.Itoa(status)).Inc()
	crawlTaskDurationSeconds.WithLabelValues(field).Observe(duration.Seconds())
}

// ObservePolitenessDelay records the duration of a throttle wait.
func ObservePolitenessDelay(host string, duration time.Duration) {
	politenessDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// SetResultStoreEntries reports the current result store size.
func SetResultStoreEntries(n int) {
	resultStoreEntries.Set(float64(n))
}

// ObserveEventPublished records a completion event publish attempt.
func ObserveEventPublished(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	eventsPublishedTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
