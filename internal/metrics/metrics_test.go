package metrics

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	var m dto.Metric
	if err := o.(prometheus.Metric).Write(&m); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestInitializeMetrics(t *testing.T) {
	InitializeMetrics([]string{"request_inventory", "purchase_full_version"}, []string{"map", "tile"})

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	want := map[string]bool{
		"map_manager_billing_tasks_total":             false,
		"map_manager_scanner_entries":                 false,
		"map_manager_filesystem_retry_attempts_total": false,
		"map_manager_db_queries_total":                false,
		"map_manager_websocket_events_total":          false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
		name := f.GetName()
		if !strings.HasPrefix(name, "map_manager_") && !strings.HasPrefix(name, "go_") &&
			!strings.HasPrefix(name, "process_") && !strings.HasPrefix(name, "promhttp_") {
			t.Errorf("metric %s lacks the map_manager_ prefix", name)
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric %s not exported after InitializeMetrics", name)
		}
	}
}

func TestFilesystemObserver(t *testing.T) {
	obs := NewFilesystemObserver()

	before := counterValue(t, FilesystemOperationErrors.WithLabelValues("tiles", "stat"))
	obs.ObserveOperation("tiles", "stat", 0.01, errors.New("boom"))
	obs.ObserveOperation("tiles", "stat", 0.01, nil)
	if got := counterValue(t, FilesystemOperationErrors.WithLabelValues("tiles", "stat")) - before; got != 1 {
		t.Errorf("operation errors increased by %v, want 1", got)
	}

	attempts := counterValue(t, FilesystemRetryAttempts.WithLabelValues("readdir", "storage"))
	stale := counterValue(t, FilesystemStaleErrors.WithLabelValues("readdir", "storage"))
	success := counterValue(t, FilesystemRetrySuccess.WithLabelValues("readdir", "storage"))
	failures := counterValue(t, FilesystemRetryFailures.WithLabelValues("readdir", "storage"))
	durations := histogramCount(t, FilesystemRetryDuration.WithLabelValues("readdir", "storage"))

	obs.ObserveStaleError("readdir", "storage")
	obs.ObserveRetryAttempt("readdir", "storage")
	obs.ObserveRetrySuccess("readdir", "storage")
	obs.ObserveRetryFailure("readdir", "storage")
	obs.ObserveRetryDuration("readdir", "storage", 0.2)

	checks := []struct {
		name string
		got  float64
	}{
		{"attempts", counterValue(t, FilesystemRetryAttempts.WithLabelValues("readdir", "storage")) - attempts},
		{"stale", counterValue(t, FilesystemStaleErrors.WithLabelValues("readdir", "storage")) - stale},
		{"success", counterValue(t, FilesystemRetrySuccess.WithLabelValues("readdir", "storage")) - success},
		{"failures", counterValue(t, FilesystemRetryFailures.WithLabelValues("readdir", "storage")) - failures},
	}
	for _, c := range checks {
		if c.got != 1 {
			t.Errorf("%s increased by %v, want 1", c.name, c.got)
		}
	}
	if got := histogramCount(t, FilesystemRetryDuration.WithLabelValues("readdir", "storage")) - durations; got != 1 {
		t.Errorf("retry duration observed %d times, want 1", got)
	}
}

func TestCollector(t *testing.T) {
	var calls atomic.Int32
	c := NewCollector(5*time.Millisecond, UpdaterFunc(func() { calls.Add(1) }), nil)
	c.Start()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()
	c.Stop()

	if n := calls.Load(); n < 3 {
		t.Fatalf("updater called %d times, want at least 3", n)
	}
	stopped := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != stopped {
		t.Error("updater called after Stop")
	}
}
