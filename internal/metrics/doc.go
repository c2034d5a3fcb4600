// Package metrics provides Prometheus instrumentation for map-manager.
//
// All metrics are prefixed with "map_manager_" and registered with the
// default registry through promauto.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight
//   - WebsocketSubscribers, WebsocketEventsTotal: billing event stream
//
// ## Database Metrics
//
//   - DBQueryTotal, DBQueryDuration: per operation
//   - DBTransactionDuration: commit and rollback
//   - DBConnectionsOpen, DBSizeBytes: refreshed by a Collector
//
// ## Scanner Metrics
//
// Track local index scans and the storage watcher:
//   - ScannerScansTotal, ScannerScansSkipped, ScannerScanDuration
//   - ScannerEntries: entries per category in the last snapshot
//   - ScannerTileCacheHits, ScannerTileCacheMisses
//   - ScannerWatcherEventsTotal, ScannerWatcherErrors, ScannerWatchedDirectories
//
// ## Billing Metrics
//
//   - BillingTasksTotal, BillingTaskDuration: per task type
//   - BillingGateBusy, BillingGateRejections, BillingInventoryLatched,
//     BillingInventoryReplays: the single-task gate
//   - BillingEntitlements: current flags per product
//   - BillingRequestsTotal, BillingRequestDuration: subscription service calls
//
// ## Filesystem Metrics
//
// Recorded through the filesystem.Observer returned by NewFilesystemObserver,
// which keeps the filesystem package free of a metrics import.
//
// # Usage
//
// Call InitializeMetrics once at startup so labelled series exist before the
// first scrape, then expose promhttp.Handler() on the metrics port.
package metrics
