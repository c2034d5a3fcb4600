package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_manager_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "map_manager_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "map_manager_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	WebsocketSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "map_manager_websocket_subscribers",
			Help: "Number of connected billing event subscribers",
		},
	)

	WebsocketEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_manager_websocket_events_total",
			Help: "Total number of billing events broadcast to subscribers",
		},
		[]string{"event"},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_manager_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "map_manager_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "map_manager_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"result"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "map_manager_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "map_manager_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal"
	)
)

// Local index scanner metrics
var (
	ScannerScansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "map_manager_scanner_scans_total",
			Help: "Total number of completed local index scans",
		},
	)

	ScannerScansSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "map_manager_scanner_scans_skipped_total",
			Help: "Scan requests dropped because a scan was already running",
		},
	)

	ScannerScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "map_manager_scanner_scan_duration_seconds",
			Help:    "Duration of a full local index scan",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	ScannerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "map_manager_scanner_last_run_timestamp",
			Help: "Timestamp of the last completed scan",
		},
	)

	ScannerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "map_manager_scanner_running",
			Help: "Whether a scan is in progress (1 = running, 0 = idle)",
		},
	)

	ScannerEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "map_manager_scanner_entries",
			Help: "Number of local index entries found by the last scan",
		},
		[]string{"category"},
	)

	ScannerLocationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_manager_scanner_location_errors_total",
			Help: "Storage locations that could not be listed",
		},
		[]string{"kind"},
	)

	ScannerTileCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "map_manager_scanner_tile_cache_hits_total",
			Help: "Tile source metadata served from cache",
		},
	)

	ScannerTileCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "map_manager_scanner_tile_cache_misses_total",
			Help: "Tile source metadata read from storage",
		},
	)

	ScannerWatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_manager_scanner_watcher_events_total",
			Help: "Filesystem events received by the storage watcher",
		},
		[]string{"type"},
	)

	ScannerWatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "map_manager_scanner_watcher_errors_total",
			Help: "Errors reported by the storage watcher",
		},
	)

	ScannerWatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "map_manager_scanner_watched_directories",
			Help: "Number of directories watched for changes",
		},
	)

	TilePreviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_manager_tile_previews_total",
			Help: "Tile preview renders by result",
		},
		[]string{"status"},
	)
)

// Billing metrics
var (
	BillingTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_manager_billing_tasks_total",
			Help: "Billing tasks finished by task type and result",
		},
		[]string{"task", "result"},
	)

	BillingTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "map_manager_billing_task_duration_seconds",
			Help:    "Duration of billing tasks",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"task"},
	)

	BillingGateBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "map_manager_billing_gate_busy",
			Help: "Whether a billing task holds the gate (1 = busy, 0 = idle)",
		},
	)

	BillingGateRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_manager_billing_gate_rejections_total",
			Help: "Billing tasks rejected because another task was running",
		},
		[]string{"task"},
	)

	BillingInventoryLatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "map_manager_billing_inventory_latched_total",
			Help: "Inventory requests latched while the gate was busy",
		},
	)

	BillingInventoryReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "map_manager_billing_inventory_replays_total",
			Help: "Latched inventory requests replayed after release",
		},
	)

	BillingEntitlements = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "map_manager_billing_entitlements",
			Help: "Current entitlement flags (1 = entitled)",
		},
		[]string{"product"},
	)

	BillingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_manager_billing_requests_total",
			Help: "Requests to the subscription service by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	BillingRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "map_manager_billing_request_duration_seconds",
			Help:    "Subscription service request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "map_manager_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration by volume and operation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_manager_filesystem_operation_errors_total",
			Help: "Failed filesystem operations by volume and operation",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_manager_filesystem_retry_attempts_total",
			Help: "Retries after stale file handle errors",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_manager_filesystem_retry_success_total",
			Help: "Operations that succeeded after one or more retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_manager_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_manager_filesystem_stale_errors_total",
			Help: "Stale file handle errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "map_manager_filesystem_retry_duration_seconds",
			Help:    "Total duration of retried operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation", "volume"},
	)
)

// Auth metrics
var (
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "map_manager_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "map_manager_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPressure = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "map_manager_memory_pressure",
			Help: "Whether memory-heavy work is refused (1 = pressured)",
		},
	)

	MemoryPressureEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "map_manager_memory_pressure_events_total",
			Help: "Number of times memory usage crossed the critical mark",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "map_manager_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)
