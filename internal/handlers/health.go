package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"map-manager/internal/assettypes"
	"map-manager/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status      string `json:"status"`
	Ready       bool   `json:"ready"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	Scanning    bool   `json:"scanning"`
	LastScanned string `json:"lastScanned,omitempty"`
	Database    string `json:"database"`

	// Scanner info
	ScansCompleted     int64                       `json:"scansCompleted"`
	WatchedDirectories int64                       `json:"watchedDirectories"`
	Entries            map[assettypes.Category]int `json:"entries,omitempty"`

	// Billing info
	BillingAvailable bool `json:"billingAvailable"`
	BillingBusy      bool `json:"billingBusy"`

	// System info
	GoVersion      string `json:"goVersion"`
	NumCPU         int    `json:"numCpu"`
	NumGoroutine   int    `json:"numGoroutine"`
	MemoryPressure bool   `json:"memoryPressure"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	healthStatus := h.indexer.GetHealthStatus()
	_, busy := h.billing.Gate().Active()

	response := HealthResponse{
		Ready:              healthStatus.Ready,
		Version:            startup.Version,
		Uptime:             healthStatus.Uptime,
		Scanning:           healthStatus.Scanning,
		Database:           "ok",
		ScansCompleted:     healthStatus.ScansCompleted,
		WatchedDirectories: healthStatus.WatchedDirectories,
		Entries:            healthStatus.Entries,
		BillingAvailable:   h.billing.Available(),
		BillingBusy:        busy,
		GoVersion:          runtime.Version(),
		NumCPU:             runtime.NumCPU(),
		NumGoroutine:       runtime.NumGoroutine(),
		MemoryPressure:     h.memory != nil && h.memory.Pressured(),
	}

	if healthStatus.Ready {
		response.Status = statusHealthy
	} else {
		response.Status = statusStarting
	}

	if !healthStatus.LastScanned.IsZero() {
		response.LastScanned = healthStatus.LastScanned.Format(time.RFC3339)
	}

	if err := h.db.Ping(r.Context()); err != nil {
		h.log.Warn("health check database ping failed: %v", err)
		response.Database = err.Error()
		response.Status = statusDegraded
	}

	w.Header().Set("Content-Type", "application/json")

	// Return 503 only if not ready at all
	if !healthStatus.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 once the first scan has completed
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.indexer.IsReady() {
		writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, startup.GetBuildInfo())
}

// MetricsHandler serves the default Prometheus registry.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
