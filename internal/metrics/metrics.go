// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal              *prometheus.CounterVec
	crawlerBytesTotal              *prometheus.CounterVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec
	crawlerRobotsTLSTimeoutTotal   prometheus.Counter
	crawlerSourcesTotal            *prometheus.CounterVec
	crawlerJobsTotal               *prometheus.CounterVec
	crawlerCleanupDeactivatedTotal prometheus.Counter
	crawlerRunDurationSeconds      *prometheus.HistogramVec
	crawlerActiveRuns              prometheus.Gauge
	crawlerRateLimitDelaysSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of result pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)

		crawlerRobotsTLSTimeoutTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_robots_tls_handshake_timeout_total",
				Help: "Total TLS handshake timeouts encountered while fetching robots.txt.",
			},
		)

		crawlerSourcesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_sources_total",
				Help: "Total number of sources processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_jobs_total",
				Help: "Total number of jobs reconciled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerCleanupDeactivatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_cleanup_deactivated_total",
				Help: "Total number of jobs deactivated by retention cleanup.",
			},
		)

		crawlerRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_run_duration_seconds",
				Help:    "Histogram of crawl run durations, labeled by result.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"result"},
		)

		crawlerActiveRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_runs",
				Help: "Number of crawl runs currently executing.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	Init()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, route, rec.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// ObservePage counts one fetched page.
func ObservePage(site string, status string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRobotsTLSHandshakeTimeout counts a robots.txt TLS handshake timeout.
func ObserveRobotsTLSHandshakeTimeout() {
	Init()
	crawlerRobotsTLSTimeoutTotal.Inc()
}

// ObserveSource counts a processed source by outcome (success, failed, denied).
func ObserveSource(outcome string) {
	Init()
	crawlerSourcesTotal.WithLabelValues(outcome).Inc()
}

// ObserveJobs adds n to the job counter for outcome.
func ObserveJobs(outcome string, n int) {
	if n <= 0 {
		return
	}
	Init()
	crawlerJobsTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObserveCleanup adds the number of deactivated jobs.
func ObserveCleanup(n int64) {
	if n <= 0 {
		return
	}
	Init()
	crawlerCleanupDeactivatedTotal.Add(float64(n))
}

// ObserveRun records a finished run.
func ObserveRun(success bool, duration time.Duration) {
	Init()
	result := "success"
	if !success {
		result = "failure"
	}
	crawlerRunDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
}

// IncActiveRuns increments the active runs gauge.
func IncActiveRuns() {
	Init()
	crawlerActiveRuns.Inc()
}

// DecActiveRuns decrements the active runs gauge.
func DecActiveRuns() {
	Init()
	crawlerActiveRuns.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
