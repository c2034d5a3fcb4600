package database

import (
	"context"
	"database/sql"
	"time"
)

// InstalledIndexes returns the edition date recorded for every installed map
// file, keyed by file name.
func (d *Database) InstalledIndexes(ctx context.Context) (map[string]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("installed_indexes", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT file_name, edition_date FROM installed_indexes")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, date string
		if err = rows.Scan(&name, &date); err != nil {
			return nil, err
		}
		out[name] = date
	}
	err = rows.Err()
	return out, err
}

// SetInstalledIndex records the edition date of an installed map file.
func (d *Database) SetInstalledIndex(ctx context.Context, fileName, editionDate string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_installed_index", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO installed_indexes (file_name, edition_date, installed_at) VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(file_name) DO UPDATE SET edition_date = excluded.edition_date, installed_at = excluded.installed_at
	`, fileName, editionDate)
	return err
}

// ReplaceInstalledIndexes swaps the whole installed set in one transaction.
func (d *Database) ReplaceInstalledIndexes(ctx context.Context, installed map[string]string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("replace_installed_indexes", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM installed_indexes"); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO installed_indexes (file_name, edition_date) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for name, date := range installed {
			if _, err := stmt.ExecContext(ctx, name, date); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

// DeleteInstalledIndex forgets an installed map file.
func (d *Database) DeleteInstalledIndex(ctx context.Context, fileName string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_installed_index", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "DELETE FROM installed_indexes WHERE file_name = ?", fileName)
	return err
}
