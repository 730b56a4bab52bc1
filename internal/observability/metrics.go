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
	// Monitor metrics
	CyclesTotal       *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	TriggersDropped   *prometheus.CounterVec
	WalletsScanned    *prometheus.CounterVec
	TrackedWallets    prometheus.Gauge
	CycleInProgress   prometheus.Gauge
	LastCompletedTime prometheus.Gauge

	// Scanner metrics
	SignaturesExamined *prometheus.CounterVec
	TransfersDetected  *prometheus.CounterVec

	// Alert metrics
	AlertsTotal *prometheus.CounterVec

	// Solana metrics
	RPCCallLatency  *prometheus.HistogramVec
	RPCCallErrors   *prometheus.CounterVec
	WSReconnects    prometheus.Counter
	WSNotifications prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "whale_tracker"
	}

	return &Metrics{
		// Monitor metrics
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "Total number of monitor cycles by outcome",
		}, []string{"status"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycle_duration_seconds",
			Help:      "Monitor cycle duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		TriggersDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "triggers_dropped_total",
			Help:      "Triggers dropped because a cycle was already running, by source",
		}, []string{"source"}),
		WalletsScanned: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "wallets_scanned_total",
			Help:      "Total number of wallet scans by outcome",
		}, []string{"status"}),
		TrackedWallets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "tracked_wallets",
			Help:      "Number of wallets in the last cycle snapshot",
		}),
		CycleInProgress: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycle_in_progress",
			Help:      "1 while a monitor cycle is scanning",
		}),
		LastCompletedTime: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "last_completed_cycle_timestamp",
			Help:      "Unix timestamp of the last completed cycle",
		}),

		// Scanner metrics
		SignaturesExamined: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "signatures_total",
			Help:      "Signatures seen by the scanner by outcome",
		}, []string{"outcome"}),
		TransfersDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "transfers_detected_total",
			Help:      "Transfer events detected by direction",
		}, []string{"direction"}),

		// Alert metrics
		AlertsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "alerts_total",
			Help:      "Alerts by delivery status",
		}, []string{"status"}),

		// Solana metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Solana RPC calls that failed after retries",
		}, []string{"method"}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_reconnects_total",
			Help:      "WebSocket reconnect attempts",
		}),
		WSNotifications: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_notifications_total",
			Help:      "Log notifications received over WebSocket",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCycle records a finished monitor cycle.
func RecordCycle(status string, seconds float64, completedAt int64) {
	DefaultMetrics.CyclesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.CycleDuration.Observe(seconds)
	if status == "completed" {
		DefaultMetrics.LastCompletedTime.Set(float64(completedAt))
	}
}

// RecordTriggerDropped counts a trigger dropped while a cycle was running.
func RecordTriggerDropped(source string) {
	DefaultMetrics.TriggersDropped.WithLabelValues(source).Inc()
}

// SetCycleInProgress flips the in-progress gauge.
func SetCycleInProgress(running bool) {
	if running {
		DefaultMetrics.CycleInProgress.Set(1)
		return
	}
	DefaultMetrics.CycleInProgress.Set(0)
}

// SetTrackedWallets updates the wallet snapshot gauge.
func SetTrackedWallets(n int) {
	DefaultMetrics.TrackedWallets.Set(float64(n))
}

// RecordWalletScan records one wallet scan.
func RecordWalletScan(status string) {
	DefaultMetrics.WalletsScanned.WithLabelValues(status).Inc()
}

// RecordSignature records what happened to one signature.
func RecordSignature(outcome string) {
	DefaultMetrics.SignaturesExamined.WithLabelValues(outcome).Inc()
}

// RecordTransfer counts a detected transfer.
func RecordTransfer(direction string) {
	DefaultMetrics.TransfersDetected.WithLabelValues(direction).Inc()
}

// RecordAlert records an alert delivery outcome.
func RecordAlert(status string) {
	DefaultMetrics.AlertsTotal.WithLabelValues(status).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCError counts an RPC call that failed.
func RecordRPCError(method string) {
	DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
}

// RecordWSReconnect counts a websocket reconnect attempt.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordWSNotification counts a websocket log notification.
func RecordWSNotification() {
	DefaultMetrics.WSNotifications.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
