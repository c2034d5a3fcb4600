package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"map-manager/internal/billing"
)

// TaskResponse acknowledges a purchase or inventory task.
type TaskResponse struct {
	Status string `json:"status"`
	Task   string `json:"task"`
	Error  string `json:"error,omitempty"`
}

// GetPurchases returns billing status, entitlements and the catalog.
func (h *Handlers) GetPurchases(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.billing.Status(r.Context()))
}

// RequestInventory starts an inventory refresh. While another task is
// running the request is latched and replayed afterwards.
func (h *Handlers) RequestInventory(w http.ResponseWriter, _ *http.Request) {
	err := h.billing.RequestInventory()
	if errors.Is(err, billing.ErrTaskInProgress) {
		writeJSONStatus(w, http.StatusAccepted, TaskResponse{Status: "queued", Task: billing.TaskRequestInventory.String()})
		return
	}
	writeTaskResult(w, billing.TaskRequestInventory, err)
}

// PurchaseFullVersion starts the full version purchase flow.
func (h *Handlers) PurchaseFullVersion(w http.ResponseWriter, _ *http.Request) {
	writeTaskResult(w, billing.TaskPurchaseFullVersion, h.billing.PurchaseFullVersion())
}

// PurchaseDepthContours starts the nautical depth contours purchase flow.
func (h *Handlers) PurchaseDepthContours(w http.ResponseWriter, _ *http.Request) {
	writeTaskResult(w, billing.TaskPurchaseDepthContours, h.billing.PurchaseDepthContours())
}

// PurchaseContourLines starts the contour lines purchase flow.
func (h *Handlers) PurchaseContourLines(w http.ResponseWriter, _ *http.Request) {
	writeTaskResult(w, billing.TaskPurchaseContourLines, h.billing.PurchaseContourLines())
}

// PurchaseLiveUpdates starts the live updates subscription flow. An empty
// body buys the default subscription.
func (h *Handlers) PurchaseLiveUpdates(w http.ResponseWriter, r *http.Request) {
	var req billing.LiveUpdatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	writeTaskResult(w, billing.TaskPurchaseLiveUpdates, h.billing.PurchaseLiveUpdates(req))
}

// writeTaskResult maps a task start result onto an HTTP status. Task outcomes
// are delivered on the event stream.
func writeTaskResult(w http.ResponseWriter, task billing.TaskType, err error) {
	resp := TaskResponse{Status: "accepted", Task: task.String()}
	status := http.StatusAccepted

	switch {
	case err == nil:
	case errors.Is(err, billing.ErrTaskInProgress):
		resp.Status = "busy"
		status = http.StatusConflict
	case errors.Is(err, billing.ErrBillingUnavailable), errors.Is(err, billing.ErrClosed):
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	case errors.Is(err, billing.ErrUnknownSKU):
		resp.Status = "rejected"
		status = http.StatusBadRequest
	default:
		resp.Status = "failed"
		status = http.StatusInternalServerError
	}
	if err != nil {
		resp.Error = err.Error()
	}

	writeJSONStatus(w, status, resp)
}
