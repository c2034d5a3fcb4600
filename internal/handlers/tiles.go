package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"

	"map-manager/internal/assettypes"
	"map-manager/internal/filesystem"
	"map-manager/internal/metrics"
	"map-manager/internal/tiles"
)

const maxPreviewSize = 1024

type previewKey struct {
	path    string
	modTime int64
	size    int
}

// TilePreview renders one tile of a tile source under the tiles directory as
// PNG. The optional size query parameter bounds the output in pixels.
func (h *Handlers) TilePreview(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		writeJSONError(w, "Invalid tile source name", http.StatusBadRequest)
		return
	}

	size := tiles.DefaultPreviewSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxPreviewSize {
			writeJSONError(w, "size must be between 1 and 1024", http.StatusBadRequest)
			return
		}
		size = n
	}

	path := filepath.Join(h.scanner.Root(), assettypes.TilesDir, name)
	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil || (!info.IsDir() && !assettypes.IsSQLiteTiles(name)) {
		metrics.TilePreviewsTotal.WithLabelValues("not_found").Inc()
		writeJSONError(w, "Tile source not found", http.StatusNotFound)
		return
	}

	key := previewKey{path: path, modTime: info.ModTime().UnixNano(), size: size}
	data, ok := h.previews.Get(key)
	if !ok {
		if h.memory != nil && h.memory.Pressured() {
			metrics.TilePreviewsTotal.WithLabelValues("throttled").Inc()
			w.Header().Set("Retry-After", "5")
			writeJSONError(w, "Server is low on memory, retry later", http.StatusServiceUnavailable)
			return
		}
		data, err = tiles.RenderPreview(path, size)
		if err != nil {
			if errors.Is(err, tiles.ErrNoTiles) || errors.Is(err, fs.ErrNotExist) {
				metrics.TilePreviewsTotal.WithLabelValues("not_found").Inc()
				writeJSONError(w, "Tile source has no tiles", http.StatusNotFound)
				return
			}
			h.log.Warn("failed to render preview for %s: %v", name, err)
			metrics.TilePreviewsTotal.WithLabelValues("error").Inc()
			writeJSONError(w, "Failed to render preview", http.StatusInternalServerError)
			return
		}
		h.previews.Add(key, data)
	}

	metrics.TilePreviewsTotal.WithLabelValues("success").Inc()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		h.log.Debug("failed to write preview: %v", err)
	}
}
