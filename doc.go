// Package main provides the entry point for the Map Manager service.
//
// Map Manager scans a map data directory the way the OsmAnd client lays it
// out (vector maps, road-only maps, tile sources, SRTM, Wikipedia, voice
// packs and their backups), classifies every local index, and orchestrates
// in-app purchases against the OsmAnd subscription service.
//
// # Application Lifecycle
//
//  1. Configuration Loading: .env, config.ini and environment variables
//  2. Database Initialization: SQLite in WAL mode holding settings, installed
//     index dates, owned purchases, the API password and sessions
//  3. Component Initialization:
//     - Billing Helper: single-task gate, remote registration and token upload
//     - Event Hub: fans billing callbacks out to websocket subscribers
//     - Local Index Scanner: periodic and fsnotify-triggered rescans
//     - Metrics Collector: database size and connection gauges
//  4. HTTP Server Setup: routes, auth, access logging and compression
//  5. Graceful Shutdown: SIGINT/SIGTERM stop every component in order
//
// # HTTP Server
//
// The main server (default port 8080) serves health, version, auth, local
// index, tile preview and purchase endpoints. The purchase event stream at
// /api/purchases/events is a websocket. The metrics server (default port
// 9090) serves /metrics and /health.
//
// # Configuration
//
// See [map-manager/internal/startup] for the full list of settings. Every
// setting can come from the environment or from config.ini, with the
// environment taking precedence.
//
// # Graceful Shutdown
//
//  1. Stop the scanner and its watcher
//  2. Close websocket event streams
//  3. Shut down the main HTTP server (30s timeout)
//  4. Wait for the running billing task
//  5. Stop the metrics collector and metrics server
//  6. Close the database
//
// # Related Packages
//
//   - [map-manager/internal/localindex]: local index scanning
//   - [map-manager/internal/billing]: purchase orchestration
//   - [map-manager/internal/database]: SQLite persistence
//   - [map-manager/internal/handlers]: HTTP request handlers
//   - [map-manager/internal/middleware]: HTTP middleware (auth, logging, metrics)
//   - [map-manager/internal/startup]: configuration and initialization
//
// The billingctl command in cmd/billingctl inspects and resets billing state
// offline.
package main
