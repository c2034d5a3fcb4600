package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"map-manager/internal/logging"
	"map-manager/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database manages all persistent state of the service.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// New opens the database file at dbPath, creating the schema if needed. The
// parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout avoids "database is locked" under concurrent writers
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	-- Key/value settings (entitlements, billing identity, install info)
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	-- Map files installed through the download catalog and their edition dates
	CREATE TABLE IF NOT EXISTS installed_indexes (
		file_name TEXT PRIMARY KEY,
		edition_date TEXT NOT NULL,
		installed_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	-- Purchases approved by the sandbox billing platform
	CREATE TABLE IF NOT EXISTS sandbox_purchases (
		order_id TEXT PRIMARY KEY,
		sku TEXT NOT NULL UNIQUE,
		purchase_token TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '',
		purchased_at INTEGER NOT NULL
	);

	-- Users table (single user, password only)
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	-- Sessions table
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL UNIQUE,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// migration adds a column to a table created by an older release.
type migration struct {
	table  string
	column string
	ddl    string
	init   string
}

var migrations = []migration{
	{
		table:  "settings",
		column: "updated_at",
		ddl:    "ALTER TABLE settings ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0",
		init:   "UPDATE settings SET updated_at = strftime('%s', 'now')",
	},
	{
		table:  "installed_indexes",
		column: "installed_at",
		ddl:    "ALTER TABLE installed_indexes ADD COLUMN installed_at INTEGER NOT NULL DEFAULT 0",
	},
}

// runMigrations applies database schema migrations
func (d *Database) runMigrations(ctx context.Context) error {
	for _, m := range migrations {
		exists, err := d.columnExists(ctx, m.table, m.column)
		if err != nil {
			return fmt.Errorf("failed to check for %s.%s column: %w", m.table, m.column, err)
		}
		if exists {
			continue
		}

		logging.Info("Migrating database: adding %s column to %s table", m.column, m.table)
		if _, err := d.db.ExecContext(ctx, m.ddl); err != nil {
			return fmt.Errorf("failed to add %s column: %w", m.column, err)
		}
		if m.init != "" {
			if _, err := d.db.ExecContext(ctx, m.init); err != nil {
				return fmt.Errorf("failed to initialize %s values: %w", m.column, err)
			}
		}
		logging.Info("Migration complete: %s.%s added", m.table, m.column)
	}
	return nil
}

func (d *Database) columnExists(ctx context.Context, table, column string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) > 0 FROM pragma_table_info(?) WHERE name = ?",
		table, column,
	).Scan(&exists)
	return exists, err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// Ping checks the connection. Used by readiness probes.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// withTx runs fn in a transaction and records its duration.
func (d *Database) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	start := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err = fn(tx); err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(start).Seconds())
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(time.Since(start).Seconds())
	return tx.Commit()
}

// Vacuum optimizes the database.
func (d *Database) Vacuum(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	return err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection and size metrics.
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))

	if info, err := os.Stat(d.dbPath); err == nil {
		metrics.DBSizeBytes.WithLabelValues("main").Set(float64(info.Size()))
	}
	if info, err := os.Stat(d.dbPath + "-wal"); err == nil {
		metrics.DBSizeBytes.WithLabelValues("wal").Set(float64(info.Size()))
	}
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, suffix := range []string{"", "-wal", "-shm"} {
		path := dbPath + suffix
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("%s is read-only! Mode: %v - this will cause write failures", path, info.Mode())
		if suffix == "" {
			continue
		}
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			logging.Error("Failed to fix %s permissions: %v", path, chmodErr)
		} else {
			logging.Info("Fixed %s permissions", path)
		}
	}

	return nil
}
