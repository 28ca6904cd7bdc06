// Package metrics exposes Prometheus collectors for the availability monitor.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check outcomes used as label values.
const (
	OutcomeAvailable   = "available"
	OutcomeUnavailable = "unavailable"
	OutcomeCached      = "cached"
	OutcomeError       = "error"
)

var (
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restock_checks_total",
			Help: "Total number of availability checks, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	checkDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restock_check_duration_seconds",
			Help:    "Histogram of availability check latencies, labeled by outcome.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"outcome"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restock_cache_lookups_total",
			Help: "Total number of cache lookups, labeled by cache and result.",
		},
		[]string{"cache", "result"},
	)

	poolLeased = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "restock_pool_leased_sessions",
			Help: "Number of rendering sessions currently leased.",
		},
	)

	poolBusyTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "restock_pool_busy_total",
			Help: "Total number of acquires that timed out waiting for a permit.",
		},
	)

	poolSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restock_pool_sessions_total",
			Help: "Total number of session lifecycle events, labeled by event.",
		},
		[]string{"event"},
	)

	targetsByTier = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "restock_targets_by_tier",
			Help: "Number of tracked targets per polling tier.",
		},
		[]string{"tier"},
	)

	cyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "restock_cycles_total",
			Help: "Total number of dispatch cycles run.",
		},
	)

	cycleDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "restock_cycle_duration_seconds",
			Help:    "Histogram of dispatch cycle durations.",
			Buckets: []float64{0.1, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	cycleTargetsDue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "restock_cycle_targets_due",
			Help: "Number of targets found due in the latest cycle.",
		},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restock_notifications_total",
			Help: "Total number of became-available notifications, labeled by channel and status.",
		},
		[]string{"channel", "status"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restock_rate_limit_delay_seconds",
			Help:    "Histogram of per-host rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
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

// ObserveCheck records one check outcome and its latency.
func ObserveCheck(site, outcome string, duration time.Duration) {
	checksTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
	checkDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveCacheLookup counts a cache hit or miss.
func ObserveCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// IncLeased increments the leased sessions gauge.
func IncLeased() {
	poolLeased.Inc()
}

// DecLeased decrements the leased sessions gauge.
func DecLeased() {
	poolLeased.Dec()
}

// ObservePoolBusy counts an acquire that found no free permit.
func ObservePoolBusy() {
	poolBusyTotal.Inc()
}

// ObserveSessionEvent counts a session lifecycle event ("created", "replaced", "closed").
func ObserveSessionEvent(event string) {
	poolSessionsTotal.WithLabelValues(event).Inc()
}

// SetTierCount publishes the number of targets in a tier.
func SetTierCount(tier string, count int) {
	targetsByTier.WithLabelValues(tier).Set(float64(count))
}

// ObserveCycle records a completed dispatch cycle.
func ObserveCycle(due int, duration time.Duration) {
	cyclesTotal.Inc()
	cycleTargetsDue.Set(float64(due))
	cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveNotification counts a notification attempt.
func ObserveNotification(channel string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	notificationsTotal.WithLabelValues(channel, status).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
