package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Setting is one stored key/value pair.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// getSetting returns the stored value and whether the key exists.
func (d *Database) getSetting(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_setting", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err = d.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (d *Database) setSetting(ctx context.Context, key, value string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_setting", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	return err
}

// GetString returns the value of key, or "" when unset.
func (d *Database) GetString(ctx context.Context, key string) (string, error) {
	value, _, err := d.getSetting(ctx, key)
	return value, err
}

// SetString stores value under key.
func (d *Database) SetString(ctx context.Context, key, value string) error {
	return d.setSetting(ctx, key, value)
}

// GetBool returns the boolean stored under key, false when unset.
func (d *Database) GetBool(ctx context.Context, key string) (bool, error) {
	value, ok, err := d.getSetting(ctx, key)
	if err != nil || !ok || value == "" {
		return false, err
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("setting %s: %w", key, err)
	}
	return b, nil
}

// SetBool stores a boolean under key.
func (d *Database) SetBool(ctx context.Context, key string, value bool) error {
	return d.setSetting(ctx, key, strconv.FormatBool(value))
}

// GetInt64 returns the integer stored under key, 0 when unset.
func (d *Database) GetInt64(ctx context.Context, key string) (int64, error) {
	value, ok, err := d.getSetting(ctx, key)
	if err != nil || !ok || value == "" {
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("setting %s: %w", key, err)
	}
	return n, nil
}

// SetInt64 stores an integer under key.
func (d *Database) SetInt64(ctx context.Context, key string, value int64) error {
	return d.setSetting(ctx, key, strconv.FormatInt(value, 10))
}

// DeleteSetting removes key.
func (d *Database) DeleteSetting(ctx context.Context, key string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_setting", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key)
	return err
}

// ListSettings returns every stored setting ordered by key.
func (d *Database) ListSettings(ctx context.Context) ([]Setting, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_settings", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT key, value, updated_at FROM settings ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var s Setting
		var updated int64
		if err = rows.Scan(&s.Key, &s.Value, &updated); err != nil {
			return nil, err
		}
		s.UpdatedAt = time.Unix(updated, 0)
		out = append(out, s)
	}
	err = rows.Err()
	return out, err
}
