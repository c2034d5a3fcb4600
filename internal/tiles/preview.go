package tiles

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // GIF tiles
	_ "image/jpeg" // JPEG tiles
	_ "image/png"  // PNG tiles
	"path/filepath"
	"sort"
	"strconv"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP tiles

	"map-manager/internal/filesystem"
)

// ErrNoTiles is returned when a tile source holds no decodable tile.
var ErrNoTiles = errors.New("tile source has no tiles")

// DefaultPreviewSize is the bounding box used when the caller passes 0.
const DefaultPreviewSize = 256

// RenderPreview returns a PNG rendering of one tile at the lowest stored zoom,
// scaled to fit within size x size.
func RenderPreview(path string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultPreviewSize
	}

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}

	var raw []byte
	if info.IsDir() {
		raw, err = firstDirTile(path)
	} else {
		raw, err = firstSQLiteTile(path)
	}
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode tile: %w", err)
	}

	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

func firstSQLiteTile(path string) ([]byte, error) {
	src, err := ReadSQLiteSource(path)
	if err != nil {
		return nil, err
	}

	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	order := "ASC"
	if src.Inverted {
		order = "DESC"
	}

	var raw []byte
	err = db.QueryRow("SELECT image FROM tiles ORDER BY z " + order + ", x, y LIMIT 1").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoTiles
	}
	if err != nil {
		return nil, fmt.Errorf("read tile: %w", err)
	}
	return raw, nil
}

// firstDirTile walks <dir>/<zoom>/<x>/<y>.<ext> choosing the smallest numeric
// zoom and then the first entries by name.
func firstDirTile(dir string) ([]byte, error) {
	zooms, err := numericSubdirs(dir)
	if err != nil {
		return nil, err
	}

	for _, z := range zooms {
		zdir := filepath.Join(dir, strconv.Itoa(z))
		xs, err := numericSubdirs(zdir)
		if err != nil {
			continue
		}
		for _, x := range xs {
			xdir := filepath.Join(zdir, strconv.Itoa(x))
			entries, err := filesystem.ReadDirWithRetry(xdir, filesystem.DefaultRetryConfig())
			if err != nil {
				continue
			}
			for _, e := range entries {
				if !e.Type().IsRegular() {
					continue
				}
				data, err := filesystem.ReadFileWithRetry(filepath.Join(xdir, e.Name()), filesystem.DefaultRetryConfig())
				if err == nil && len(data) > 0 {
					return data, nil
				}
			}
		}
	}
	return nil, ErrNoTiles
}

func numericSubdirs(dir string) ([]int, error) {
	entries, err := filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}
	var out []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}
