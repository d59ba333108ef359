// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Reconciliation metrics
	ReconcileRuns     *prometheus.CounterVec
	ReconcileRows     *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram
	PendingQueueSize  prometheus.Gauge

	// Repair metrics
	RepairTokens *prometheus.CounterVec
	RepairRows   *prometheus.CounterVec

	// Data quality
	AnchorConflicts prometheus.Counter

	// External call metrics
	ExternalCallLatency *prometheus.HistogramVec
	ExternalCallErrors  *prometheus.CounterVec

	// Price feed metrics
	AvaxPriceUSD prometheus.Gauge

	// Reporting metrics
	CandlesWritten   prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	StreamClients    prometheus.Gauge
	StreamBroadcasts prometheus.Counter

	// Health metrics
	LastSuccessfulReconcile prometheus.Gauge
	LastSuccessfulRepair    prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "arena_token_ledger"
	}

	return &Metrics{
		ReconcileRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs by status",
		}, []string{"status"}),
		ReconcileRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "rows_total",
			Help:      "Pending rows processed by outcome",
		}, []string{"outcome"}),
		ReconcileDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "run_duration_seconds",
			Help:      "Reconciliation run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		PendingQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "pending_queue_size",
			Help:      "Rows in the temp queue at the start of the last run",
		}),

		RepairTokens: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repair",
			Name:      "tokens_total",
			Help:      "Tokens processed by the repair job by status",
		}, []string{"status"}),
		RepairRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repair",
			Name:      "rows_total",
			Help:      "External trade rows processed by outcome",
		}, []string{"outcome"}),

		AnchorConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "curve",
			Name:      "anchor_conflicts_total",
			Help:      "Earlier anchors discovered after a curve coefficient was pinned",
		}),

		ExternalCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "call_latency_seconds",
			Help:      "External call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method"}),
		ExternalCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "call_errors_total",
			Help:      "External call failures after retries",
		}, []string{"service", "method"}),

		AvaxPriceUSD: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "avax_usd",
			Help:      "Last stored AVAX/USD price",
		}),

		CandlesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reporting",
			Name:      "candles_written_total",
			Help:      "OHLC candles written to the candle store",
		}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		StreamClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected websocket clients",
		}),
		StreamBroadcasts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "broadcasts_total",
			Help:      "Promoted trades broadcast to websocket clients",
		}),

		LastSuccessfulReconcile: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_reconcile_timestamp",
			Help:      "Unix timestamp of last successful reconciliation run",
		}),
		LastSuccessfulRepair: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_repair_timestamp",
			Help:      "Unix timestamp of last completed repair run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordReconcileRun records a finished reconciliation run.
func RecordReconcileRun(status string, durationSeconds float64, queueSize int, finishedAt int64) {
	DefaultMetrics.ReconcileRuns.WithLabelValues(status).Inc()
	DefaultMetrics.ReconcileDuration.Observe(durationSeconds)
	DefaultMetrics.PendingQueueSize.Set(float64(queueSize))
	if status == "ok" {
		DefaultMetrics.LastSuccessfulReconcile.Set(float64(finishedAt))
	}
}

// RecordReconcileRow records the outcome of one pending row.
func RecordReconcileRow(outcome string) {
	DefaultMetrics.ReconcileRows.WithLabelValues(outcome).Inc()
}

// RecordRepairToken records a repaired token.
func RecordRepairToken(status string) {
	DefaultMetrics.RepairTokens.WithLabelValues(status).Inc()
}

// RecordRepairRows adds external rows processed by outcome.
func RecordRepairRows(outcome string, n int) {
	if n > 0 {
		DefaultMetrics.RepairRows.WithLabelValues(outcome).Add(float64(n))
	}
}

// RecordRepairCompleted updates the repair health gauge.
func RecordRepairCompleted(finishedAt int64) {
	DefaultMetrics.LastSuccessfulRepair.Set(float64(finishedAt))
}

// RecordAnchorConflict increments the data-quality alert counter.
func RecordAnchorConflict() {
	DefaultMetrics.AnchorConflicts.Inc()
}

// RecordExternalCall records an external call latency and failure.
func RecordExternalCall(service, method string, seconds float64, err error) {
	DefaultMetrics.ExternalCallLatency.WithLabelValues(service, method).Observe(seconds)
	if err != nil {
		DefaultMetrics.ExternalCallErrors.WithLabelValues(service, method).Inc()
	}
}

// UpdateAvaxPrice sets the AVAX/USD gauge.
func UpdateAvaxPrice(price float64) {
	DefaultMetrics.AvaxPriceUSD.Set(price)
}

// RecordCandlesWritten adds written candles.
func RecordCandlesWritten(n int) {
	DefaultMetrics.CandlesWritten.Add(float64(n))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(route, code string, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, code).Inc()
	DefaultMetrics.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

// UpdateStreamClients sets the websocket client gauge.
func UpdateStreamClients(n int) {
	DefaultMetrics.StreamClients.Set(float64(n))
}

// RecordStreamBroadcast increments the broadcast counter.
func RecordStreamBroadcast() {
	DefaultMetrics.StreamBroadcasts.Inc()
}
