package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"map-manager/internal/assettypes"
	"map-manager/internal/localindex"
)

// LocalIndexesResponse is the latest scan, optionally filtered.
type LocalIndexesResponse struct {
	Entries   []localindex.IndexEntry     `json:"entries"`
	Counts    map[assettypes.Category]int `json:"counts"`
	ScannedAt time.Time                   `json:"scannedAt"`
	Scanning  bool                        `json:"scanning"`
}

// InstalledRequest registers or clears the installed edition of a map.
type InstalledRequest struct {
	FileName    string `json:"fileName"`
	EditionDate string `json:"editionDate"`
}

// ListLocalIndexes returns the entries of the latest scan. The optional
// category query parameter restricts the result to one category.
func (h *Handlers) ListLocalIndexes(w http.ResponseWriter, r *http.Request) {
	snapshot := h.indexer.Snapshot()
	entries := snapshot.Entries

	if raw := r.URL.Query().Get("category"); raw != "" {
		category, err := assettypes.ParseCategory(raw)
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		entries = snapshot.Filter(category)
	}

	if entries == nil {
		entries = []localindex.IndexEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, LocalIndexesResponse{
		Entries:   entries,
		Counts:    snapshot.Counts(),
		ScannedAt: snapshot.ScannedAt,
		Scanning:  h.indexer.IsScanning(),
	})
}

// ListFullMaps scans the maps root synchronously.
func (h *Handlers) ListFullMaps(w http.ResponseWriter, r *http.Request) {
	entries := h.scanner.ScanFullMaps(r.Context())
	if entries == nil {
		entries = []localindex.IndexEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, entries)
}

// TriggerReindex queues a rescan of the storage root.
func (h *Handlers) TriggerReindex(w http.ResponseWriter, _ *http.Request) {
	// A manual reindex rereads tile source metadata as well.
	h.scanner.PurgeCache()
	h.indexer.TriggerScan()
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "scan_queued"})
}

// SetInstalled records the installed edition date of a map file. An empty
// edition date removes the record. A rescan is queued either way.
func (h *Handlers) SetInstalled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req InstalledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.FileName = strings.TrimSpace(req.FileName)
	if req.FileName == "" || strings.ContainsAny(req.FileName, `/\`) {
		writeJSONError(w, "fileName must be a bare file name", http.StatusBadRequest)
		return
	}

	if req.EditionDate == "" {
		if err := h.db.DeleteInstalledIndex(ctx, req.FileName); err != nil {
			h.log.Error("failed to clear installed index %s: %v", req.FileName, err)
			writeJSONError(w, "Failed to update installed index", http.StatusInternalServerError)
			return
		}
	} else {
		if _, err := time.Parse(localindex.EditionDateLayout, req.EditionDate); err != nil {
			writeJSONError(w, "editionDate must be formatted dd.MM.yyyy", http.StatusBadRequest)
			return
		}
		if err := h.db.SetInstalledIndex(ctx, req.FileName, req.EditionDate); err != nil {
			h.log.Error("failed to record installed index %s: %v", req.FileName, err)
			writeJSONError(w, "Failed to update installed index", http.StatusInternalServerError)
			return
		}
	}

	h.indexer.TriggerScan()
	writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ok"})
}
