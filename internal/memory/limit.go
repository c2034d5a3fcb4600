package memory

import (
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"map-manager/internal/logging"
)

// DefaultRatio is the share of the container limit given to the Go heap. The
// rest covers goroutine stacks, cgo SQLite pages and decoded tile images.
const DefaultRatio = 0.85

// Limit describes how GOMEMLIMIT was configured.
type Limit struct {
	Source    string // "GOMEMLIMIT", "MEMORY_LIMIT" or "none"
	Container int64
	Heap      int64
	Ratio     float64
}

// ConfigureFromEnv sets the runtime soft memory limit from MEMORY_LIMIT (bytes,
// usually from the Kubernetes Downward API) scaled by MEMORY_RATIO. An explicit
// GOMEMLIMIT wins and is only reported. Call it before significant allocations.
func ConfigureFromEnv() Limit {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		l := Limit{Source: "GOMEMLIMIT"}
		if current := debug.SetMemoryLimit(-1); current > 0 && current < math.MaxInt64 {
			l.Heap = current
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return l
	}

	raw := os.Getenv("MEMORY_LIMIT")
	if raw == "" {
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT left unchanged")
		return Limit{Source: "none"}
	}

	l, err := heapLimit(raw, os.Getenv("MEMORY_RATIO"))
	if err != nil {
		logging.Warn("Ignoring memory limit: %v", err)
		return Limit{Source: "none"}
	}

	debug.SetMemoryLimit(l.Heap)
	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s container limit)",
		FormatBytes(l.Heap), l.Ratio*100, FormatBytes(l.Container))
	return l
}

// heapLimit computes the heap limit for a container limit and optional ratio.
// An unusable ratio falls back to DefaultRatio.
func heapLimit(container, ratio string) (Limit, error) {
	c, err := strconv.ParseInt(container, 10, 64)
	if err != nil || c <= 0 {
		return Limit{}, fmt.Errorf("invalid MEMORY_LIMIT %q", container)
	}

	r := DefaultRatio
	if ratio != "" {
		parsed, err := strconv.ParseFloat(ratio, 64)
		switch {
		case err != nil:
			logging.Warn("Failed to parse MEMORY_RATIO %q: %v, using %.2f", ratio, err, DefaultRatio)
		case parsed <= 0 || parsed > 1:
			logging.Warn("MEMORY_RATIO %q out of range (0.0-1.0), using %.2f", ratio, DefaultRatio)
		default:
			r = parsed
		}
	}

	return Limit{
		Source:    "MEMORY_LIMIT",
		Container: c,
		Heap:      int64(float64(c) * r),
		Ratio:     r,
	}, nil
}

// FormatBytes renders b with binary units.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
