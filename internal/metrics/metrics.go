// Package metrics exposes Prometheus metrics for uploads, pipeline stages
// and model calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upload metrics
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kpi_uploads_total",
			Help: "Workbook uploads by outcome",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kpi_run_duration_seconds",
			Help:    "End-to-end pipeline run time",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	SheetsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kpi_sheets_processed_total",
			Help: "Sheets converted to CSV",
		},
	)

	// Stage metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kpi_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// Model call metrics
	ModelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kpi_model_calls_total",
			Help: "Model API calls by stage and outcome",
		},
		[]string{"stage", "status"},
	)

	ModelRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kpi_model_retries_total",
			Help: "Model API calls retried after a transient failure",
		},
		[]string{"stage"},
	)

	ModelTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kpi_model_tokens_total",
			Help: "Tokens consumed by stage and kind",
		},
		[]string{"stage", "kind"},
	)

	ModelCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kpi_model_cost_usd_total",
			Help: "Estimated model spend in USD",
		},
		[]string{"stage"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kpi_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kpi_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ModelTokens is the token breakdown of one model call.
type ModelTokens struct {
	Input      int64
	Output     int64
	CacheWrite int64
	CacheRead  int64
}

// RecordModelCall records the outcome, tokens and cost of one model call.
func RecordModelCall(stage, status string, t ModelTokens, costUSD float64) {
	ModelCallsTotal.WithLabelValues(stage, status).Inc()
	if status != "ok" {
		return
	}
	ModelTokensTotal.WithLabelValues(stage, "input").Add(float64(t.Input))
	ModelTokensTotal.WithLabelValues(stage, "output").Add(float64(t.Output))
	ModelTokensTotal.WithLabelValues(stage, "cache_write").Add(float64(t.CacheWrite))
	ModelTokensTotal.WithLabelValues(stage, "cache_read").Add(float64(t.CacheRead))
	ModelCostUSD.WithLabelValues(stage).Add(costUSD)
}

// RecordRetry counts a retried model call.
func RecordRetry(stage string) {
	ModelRetriesTotal.WithLabelValues(stage).Inc()
}

// RecordRun records a finished upload.
func RecordRun(status string, sheets int, duration time.Duration) {
	UploadsTotal.WithLabelValues(status).Inc()
	RunDuration.WithLabelValues(status).Observe(duration.Seconds())
	SheetsProcessed.Add(float64(sheets))
}

// Timer measures a stage. Call the returned func when the stage ends.
func Timer(stage string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		StageDuration.WithLabelValues(stage).Observe(d.Seconds())
		return d
	}
}
