// Package metrics exposes Prometheus collectors for the enrichment service.
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
	enrichRunsTotal            *prometheus.CounterVec
	enrichRunDurationSeconds   prometheus.Histogram
	enrichStrategyTotal        *prometheus.CounterVec
	enrichThumbnailProbesTotal *prometheus.CounterVec
	enrichToolInstallsTotal    *prometheus.CounterVec
	enrichInflightRuns         prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		enrichRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_runs_total",
				Help: "Total number of pipeline runs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		enrichRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "enricher_run_duration_seconds",
				Help:    "Histogram of pipeline run durations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 180, 540},
			},
		)

		enrichStrategyTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_strategy_attempts_total",
				Help: "Total number of extraction strategy attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		enrichThumbnailProbesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_thumbnail_probes_total",
				Help: "Total number of thumbnail probes, labeled by tier and outcome.",
			},
			[]string{"tier", "outcome"},
		)

		enrichToolInstallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_tool_installs_total",
				Help: "Total number of extraction tool installs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		enrichInflightRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "enricher_inflight_runs",
				Help: "Number of pipeline runs currently executing.",
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records a finished pipeline run.
func ObserveRun(status string, duration time.Duration) {
	Init()
	enrichRunsTotal.WithLabelValues(status).Inc()
	enrichRunDurationSeconds.Observe(duration.Seconds())
}

// ObserveStrategy records one extraction strategy attempt.
func ObserveStrategy(strategy, outcome string) {
	Init()
	enrichStrategyTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveThumbnailProbe records one thumbnail candidate probe.
func ObserveThumbnailProbe(tier string, ok bool) {
	Init()
	outcome := "miss"
	if ok {
		outcome = "hit"
	}
	enrichThumbnailProbesTotal.WithLabelValues(tier, outcome).Inc()
}

// ObserveToolInstall records an extraction tool install attempt.
func ObserveToolInstall(ok bool) {
	Init()
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	enrichToolInstallsTotal.WithLabelValues(outcome).Inc()
}

// IncInflightRuns increments the in-flight runs gauge.
func IncInflightRuns() {
	Init()
	enrichInflightRuns.Inc()
}

// DecInflightRuns decrements the in-flight runs gauge.
func DecInflightRuns() {
	Init()
	enrichInflightRuns.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
