// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerActiveRequests         prometheus.Gauge
	crawlerSkippedTotal           *prometheus.CounterVec
	crawlerLinksDiscoveredTotal   prometheus.Counter
	crawlerLinksEnqueuedTotal     prometheus.Counter
	crawlerTerminationsTotal      *prometheus.CounterVec
	crawlerCallbackFailuresTotal  *prometheus.CounterVec
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	progressEventsDroppedTotal    prometheus.Counter
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerActiveRequests = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_requests",
				Help: "Number of fetches currently in flight.",
			},
		)

		crawlerSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_frontier_skipped_total",
				Help: "Discovered URLs that were not fetched, labeled by reason.",
			},
			[]string{"reason"},
		)

		crawlerLinksDiscoveredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_links_discovered_total",
				Help: "Anchor targets extracted from fetched documents.",
			},
		)

		crawlerLinksEnqueuedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_links_enqueued_total",
				Help: "Extracted links appended to the frontier.",
			},
		)

		crawlerTerminationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_terminations_total",
				Help: "Crawl sessions stopped by a limit, labeled by reason.",
			},
			[]string{"reason"},
		)

		crawlerCallbackFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_callback_failures_total",
				Help: "User callback errors and panics, labeled by handler.",
			},
			[]string{"handler"},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of request delay wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		progressEventsDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_progress_events_dropped_total",
				Help: "Progress events dropped because the hub buffer was full.",
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
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetActiveRequests publishes the number of in-flight fetches.
func SetActiveRequests(n int) {
	Init()
	crawlerActiveRequests.Set(float64(n))
}

// ObserveSkip counts a URL dropped by the frontier.
func ObserveSkip(reason string) {
	Init()
	crawlerSkippedTotal.WithLabelValues(reason).Inc()
}

// ObserveLinks records the links found in one document and how many were new.
func ObserveLinks(found, enqueued int) {
	Init()
	crawlerLinksDiscoveredTotal.Add(float64(found))
	crawlerLinksEnqueuedTotal.Add(float64(enqueued))
}

// ObserveTermination counts a crawl stopped by a limit.
func ObserveTermination(reason string) {
	Init()
	crawlerTerminationsTotal.WithLabelValues(reason).Inc()
}

// ObserveCallbackFailure counts a failed or panicking user callback.
func ObserveCallbackFailure(handler string) {
	Init()
	crawlerCallbackFailuresTotal.WithLabelValues(handler).Inc()
}

// ObserveRateLimitDelay records the duration of a request delay wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveProgressDropped counts a progress event lost to backpressure.
func ObserveProgressDropped() {
	Init()
	progressEventsDroppedTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
