package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EpochsDetected tracks EpochReleased events accepted for this data market
	EpochsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapshotter_epochs_detected_total",
			Help: "Total number of epochs released to this data market",
		},
	)

	// LatestEpoch tracks the highest epoch id observed
	LatestEpoch = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapshotter_latest_epoch",
			Help: "Highest epoch id observed by the detector",
		},
	)

	// DetectorLastBlock tracks the anchor chain block the detector has processed up to
	DetectorLastBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapshotter_detector_last_block",
			Help: "Last anchor chain block processed by the detector",
		},
	)

	// SubmissionsTotal tracks commit outcomes per project type
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshotter_submissions_total",
			Help: "Total number of snapshot submissions by outcome",
		},
		[]string{"project_type", "outcome"},
	)

	// MissedSnapshots tracks skipped or failed project work per project type
	MissedSnapshots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshotter_missed_snapshots_total",
			Help: "Total number of missed snapshots",
		},
		[]string{"project_type", "reason"},
	)

	// PreloaderFailures tracks preloader errors per task type
	PreloaderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshotter_preloader_failures_total",
			Help: "Total number of preloader failures",
		},
		[]string{"task_type"},
	)

	// ProcessorLatency tracks compute time per project type
	ProcessorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapshotter_processor_latency_seconds",
			Help:    "Snapshot compute latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"project_type"},
	)

	// RPCCallsTotal tracks RPC calls per chain and method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshotter_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"chain", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per chain after failover is exhausted
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshotter_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"chain", "method", "error_type"},
	)

	// RPCLatency tracks RPC call latency including retries
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapshotter_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "method"},
	)

	// NotificationsSent tracks issue reports by type and sink
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshotter_notifications_total",
			Help: "Total number of issue notifications sent",
		},
		[]string{"issue_type", "sink"},
	)

	// WatchdogFailures tracks the current consecutive watchdog failure count
	WatchdogFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapshotter_watchdog_failures",
			Help: "Consecutive failed watchdog checks",
		},
	)

	// DBConnectionPoolUsage tracks the share of open ledger connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapshotter_db_connection_pool_usage_percent",
			Help: "Open database connections as a percentage of the pool limit",
		},
	)
)
