package tiles

import (
	"bufio"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for .sqlitedb tile sources

	"map-manager/internal/assettypes"
	"map-manager/internal/filesystem"
)

const (
	// MetaInfoFile is the descriptor written next to a directory tile source.
	MetaInfoFile = ".metainfo"
	// LegacyURLFile is the pre-metainfo descriptor holding only the url template.
	LegacyURLFile = "url"

	// NoExpiration is reported when a source does not declare an expiry.
	NoExpiration = -1
)

// ErrNoMetaInfo is returned for a tile directory without a descriptor file.
var ErrNoMetaInfo = errors.New("tile source meta info not found")

// Source describes a tile source as far as the scanner needs it.
type Source struct {
	Name              string `json:"name"`
	URLTemplate       string `json:"urlTemplate,omitempty"`
	Ext               string `json:"ext,omitempty"`
	MinZoom           int    `json:"minZoom"`
	MaxZoom           int    `json:"maxZoom"`
	ExpirationMinutes int    `json:"expirationMinutes"`
	// Inverted is set for BigPlanet numbering where stored z is 17 - zoom.
	Inverted          bool   `json:"inverted,omitempty"`
}

// HasExpiration reports whether the source declares a finite expiry.
func (s Source) HasExpiration() bool {
	return s.ExpirationMinutes >= 0
}

// HasMetaInfo reports whether dir carries a tile source descriptor.
func HasMetaInfo(dir string) bool {
	for _, name := range []string{MetaInfoFile, LegacyURLFile} {
		info, err := filesystem.StatWithRetry(filepath.Join(dir, name), filesystem.DefaultRetryConfig())
		if err == nil && info.Mode().IsRegular() {
			return true
		}
	}
	return false
}

// ReadDirSource parses the descriptor of a directory tile source.
func ReadDirSource(dir string) (Source, error) {
	src := Source{
		Name:              filepath.Base(dir),
		ExpirationMinutes: NoExpiration,
	}

	data, err := filesystem.ReadFileWithRetry(filepath.Join(dir, MetaInfoFile), filesystem.DefaultRetryConfig())
	if err != nil {
		if !os.IsNotExist(err) {
			return src, fmt.Errorf("read %s: %w", MetaInfoFile, err)
		}
		legacy, lerr := filesystem.ReadFileWithRetry(filepath.Join(dir, LegacyURLFile), filesystem.DefaultRetryConfig())
		if lerr != nil {
			if os.IsNotExist(lerr) {
				return src, ErrNoMetaInfo
			}
			return src, fmt.Errorf("read %s: %w", LegacyURLFile, lerr)
		}
		src.URLTemplate = strings.TrimSpace(string(legacy))
		return src, nil
	}

	meta := parseMetaInfo(string(data))
	src.URLTemplate = meta["url_template"]
	src.Ext = meta["ext"]
	src.MinZoom = atoiDefault(meta["min_zoom"], 0)
	src.MaxZoom = atoiDefault(meta["max_zoom"], 0)
	src.ExpirationMinutes = atoiDefault(meta["expiration_time_minutes"], NoExpiration)
	return src, nil
}

// parseMetaInfo reads "[key]" lines each followed by a value line.
func parseMetaInfo(content string) map[string]string {
	meta := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(content))
	key := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			key = strings.ToLower(line[1 : len(line)-1])
			continue
		}
		if key != "" {
			meta[key] = line
			key = ""
		}
	}
	return meta
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

// openReadOnly opens a .sqlitedb file without taking write locks.
func openReadOnly(path string) (*sql.DB, error) {
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=ro"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// ReadSQLiteSource reads the info table of a .sqlitedb tile source.
func ReadSQLiteSource(path string) (Source, error) {
	src := Source{
		Name:              strings.TrimSuffix(filepath.Base(path), assettypes.SQLiteExt),
		ExpirationMinutes: NoExpiration,
	}

	db, err := openReadOnly(path)
	if err != nil {
		return src, fmt.Errorf("open tile database: %w", err)
	}
	defer db.Close()

	columns, err := tableColumns(db, "info")
	if err != nil {
		return src, err
	}
	if len(columns) == 0 {
		// Databases without an info table are still valid tile sources.
		return src, nil
	}

	var selected []string
	for _, c := range []string{"url", "minzoom", "maxzoom", "expireminutes", "tilenumbering"} {
		if columns[c] {
			selected = append(selected, c)
		}
	}
	if len(selected) == 0 {
		return src, nil
	}

	values := make([]sql.NullString, len(selected))
	dest := make([]any, len(selected))
	for i := range values {
		dest[i] = &values[i]
	}
	err = db.QueryRow("SELECT " + strings.Join(selected, ", ") + " FROM info LIMIT 1").Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return src, nil
	}
	if err != nil {
		return src, fmt.Errorf("read info table: %w", err)
	}

	for i, c := range selected {
		if !values[i].Valid {
			continue
		}
		v := values[i].String
		switch c {
		case "url":
			src.URLTemplate = v
		case "minzoom":
			src.MinZoom = atoiDefault(v, 0)
		case "maxzoom":
			src.MaxZoom = atoiDefault(v, 0)
		case "expireminutes":
			src.ExpirationMinutes = atoiDefault(v, NoExpiration)
		case "tilenumbering":
			src.Inverted = strings.EqualFold(v, "BigPlanet")
		}
	}
	return src, nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return nil, fmt.Errorf("inspect %s table: %w", table, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		columns[strings.ToLower(name)] = true
	}
	return columns, rows.Err()
}
