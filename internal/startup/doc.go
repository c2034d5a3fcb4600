// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] reads an optional .env file, then an optional ini file
// (CONFIG_FILE, default config.ini), then the environment. Environment
// variables win over ini keys, which win over defaults.
//
//	Variable              ini key                   Default
//	DATA_DIR              [storage] data_dir        /data
//	DATABASE_DIR          [storage] database_dir    /database
//	PORT                  [server] port             8080
//	METRICS_PORT          [server] metrics_port     9090
//	METRICS_ENABLED       [server] metrics_enabled  true
//	LOG_STATIC_FILES      [server] log_static_files false
//	LOG_HEALTH_CHECKS     [server] log_health_checks true
//	SCAN_INTERVAL         [scan] interval           30m
//	SCAN_WORKERS          [scan] workers            0 (auto)
//	SCAN_WATCH            [scan] watch              true
//	BILLING_URL           [billing] url             https://osmand.net
//	BILLING_ENABLED       [billing] enabled         true
//	BILLING_HTTP_TIMEOUT  [billing] http_timeout    30s
//	DEVELOPER_BUILD       [billing] developer_build false
//	APP_VERSION           [billing] version         build version
//	APP_LANG              [billing] lang            en
//	APP_PACKAGE           [billing] package         net.osmand.plus
//
// LOG_LEVEL and DEBUG are read by the logging package.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
//   - [LogDatabaseInit]: Database initialization timing
//   - [LogBillingInit]: Billing service and install identity
//   - [LogScannerInit]: Storage root and scan schedule
//   - [LogHTTPRoutes]: Registered HTTP routes (debug level)
//   - [LogServerStarted]: Server endpoints and startup duration
//   - [LogShutdownInitiated]: Graceful shutdown start
//   - [LogShutdownComplete]: Shutdown completion
package startup
