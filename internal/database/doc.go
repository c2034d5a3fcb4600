// Package database provides SQLite persistence for map-manager.
//
// It stores:
//   - Billing settings: entitlements, the registered user and install info
//   - Installed map editions used to describe local indexes
//   - Purchases approved by the sandbox billing platform
//   - The API password and authentication sessions
//
// The database runs in WAL mode and initializes its schema on open.
package database
