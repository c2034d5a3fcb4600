package localindex

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"map-manager/internal/assettypes"
	"map-manager/internal/logging"
	"map-manager/internal/metrics"
)

const defaultWatchDebounce = 2 * time.Second

// Indexer keeps an up to date Snapshot of the storage root.
type Indexer struct {
	scanner  *Scanner
	interval time.Duration
	debounce time.Duration
	watch    bool
	log      logging.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
	trigger  chan struct{}

	scanMu              sync.Mutex
	isScanning          bool
	lastScanTime        time.Time
	initialScanComplete bool
	scansCompleted      atomic.Int64
	scansSkipped        atomic.Int64
	snapshot            atomic.Pointer[Snapshot]
	startTime           time.Time
	onScanComplete      func(Snapshot)
	watchedDirectories  atomic.Int64
}

// NewIndexer creates an indexer that rescans every interval. An interval of
// zero disables periodic rescans.
func NewIndexer(scanner *Scanner, interval time.Duration) *Indexer {
	ctx, cancel := context.WithCancel(context.Background())
	idx := &Indexer{
		scanner:   scanner,
		interval:  interval,
		debounce:  defaultWatchDebounce,
		watch:     true,
		log:       logging.For("indexer"),
		ctx:       ctx,
		cancel:    cancel,
		trigger:   make(chan struct{}, 1),
		startTime: time.Now(),
	}
	idx.snapshot.Store(&Snapshot{})
	return idx
}

// SetWatch enables or disables filesystem change notifications.
func (idx *Indexer) SetWatch(enabled bool) {
	idx.watch = enabled
}

// SetWatchDebounce sets how long change events are coalesced before a rescan.
func (idx *Indexer) SetWatchDebounce(d time.Duration) {
	if d > 0 {
		idx.debounce = d
	}
}

// SetOnScanComplete sets a callback invoked after every completed scan.
func (idx *Indexer) SetOnScanComplete(callback func(Snapshot)) {
	idx.onScanComplete = callback
}

// Start runs the initial scan in the background and starts the rescan loops.
func (idx *Indexer) Start() {
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		idx.log.Info("Starting initial scan of %s", idx.scanner.Root())
		idx.Scan()
		idx.loop()
	}()

	if idx.watch {
		idx.wg.Add(1)
		go func() {
			defer idx.wg.Done()
			idx.watchChanges()
		}()
	}
}

// Stop cancels background work and waits for it to exit.
func (idx *Indexer) Stop() {
	idx.stopOnce.Do(idx.cancel)
	idx.wg.Wait()
}

// TriggerScan requests an asynchronous rescan. Requests made while a rescan is
// already queued are coalesced.
func (idx *Indexer) TriggerScan() {
	select {
	case idx.trigger <- struct{}{}:
	default:
	}
}

func (idx *Indexer) loop() {
	var tick <-chan time.Time
	if idx.interval > 0 {
		ticker := time.NewTicker(idx.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			idx.Scan()
		case <-idx.trigger:
			idx.Scan()
		case <-idx.ctx.Done():
			idx.log.Info("Indexer stopped")
			return
		}
	}
}

// Scan runs a scan synchronously and returns false if one was already running.
func (idx *Indexer) Scan() bool {
	if !idx.tryStartScanning() {
		idx.log.Info("Scan already in progress, skipping...")
		idx.scansSkipped.Add(1)
		metrics.ScannerScansSkipped.Inc()
		return false
	}
	defer idx.finishScanning()

	metrics.ScannerIsRunning.Set(1)
	defer metrics.ScannerIsRunning.Set(0)
	metrics.ScannerScansTotal.Inc()

	snap := idx.scanner.Scan(idx.ctx)
	if idx.ctx.Err() != nil {
		return true
	}

	idx.snapshot.Store(&snap)
	idx.scansCompleted.Add(1)

	for c, n := range snap.Counts() {
		metrics.ScannerEntries.WithLabelValues(string(c)).Set(float64(n))
	}
	metrics.ScannerScanDuration.Observe(snap.Duration.Seconds())
	metrics.ScannerLastRunTimestamp.Set(float64(time.Now().Unix()))

	idx.log.Info("Scan complete: %d entries in %v", len(snap.Entries), snap.Duration.Round(time.Millisecond))

	if idx.onScanComplete != nil {
		idx.onScanComplete(snap)
	}
	return true
}

func (idx *Indexer) tryStartScanning() bool {
	idx.scanMu.Lock()
	defer idx.scanMu.Unlock()

	if idx.isScanning {
		return false
	}
	idx.isScanning = true
	return true
}

func (idx *Indexer) finishScanning() {
	idx.scanMu.Lock()
	defer idx.scanMu.Unlock()

	idx.isScanning = false
	idx.initialScanComplete = true
	idx.lastScanTime = time.Now()
}

// Snapshot returns the latest completed scan.
func (idx *Indexer) Snapshot() Snapshot {
	return *idx.snapshot.Load()
}

// IsScanning reports whether a scan is running.
func (idx *Indexer) IsScanning() bool {
	idx.scanMu.Lock()
	defer idx.scanMu.Unlock()
	return idx.isScanning
}

// IsReady reports whether the initial scan has finished.
func (idx *Indexer) IsReady() bool {
	idx.scanMu.Lock()
	defer idx.scanMu.Unlock()
	return idx.initialScanComplete
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready              bool                        `json:"ready"`
	Scanning           bool                        `json:"scanning"`
	StartTime          time.Time                   `json:"startTime"`
	Uptime             string                      `json:"uptime"`
	LastScanned        time.Time                   `json:"lastScanned,omitempty"`
	ScansCompleted     int64                       `json:"scansCompleted"`
	ScansSkipped       int64                       `json:"scansSkipped"`
	WatchedDirectories int64                       `json:"watchedDirectories"`
	Entries            map[assettypes.Category]int `json:"entries"`
}

// GetHealthStatus returns detailed health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	idx.scanMu.Lock()
	defer idx.scanMu.Unlock()

	return HealthStatus{
		Ready:              idx.initialScanComplete,
		Scanning:           idx.isScanning,
		StartTime:          idx.startTime,
		Uptime:             time.Since(idx.startTime).String(),
		LastScanned:        idx.lastScanTime,
		ScansCompleted:     idx.scansCompleted.Load(),
		ScansSkipped:       idx.scansSkipped.Load(),
		WatchedDirectories: idx.watchedDirectories.Load(),
		Entries:            idx.snapshot.Load().Counts(),
	}
}

// watchChanges triggers a debounced rescan when any scanned location changes.
func (idx *Indexer) watchChanges() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		idx.log.Error("Failed to create file watcher: %v", err)
		metrics.ScannerWatcherErrors.Inc()
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			idx.log.Error("failed to close file watcher: %v", err)
		}
	}()

	idx.addWatches(watcher)

	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			metrics.ScannerWatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()
			if event.Has(fsnotify.Create) {
				// A location created after startup becomes watchable now.
				idx.addWatches(watcher)
			}
			if debounce == nil {
				debounce = time.NewTimer(idx.debounce)
			} else {
				debounce.Reset(idx.debounce)
			}
			fire = debounce.C
		case <-fire:
			fire = nil
			idx.log.Debug("Storage changes detected, triggering rescan")
			idx.TriggerScan()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			idx.log.Error("Watcher error: %v", err)
			metrics.ScannerWatcherErrors.Inc()
		case <-idx.ctx.Done():
			return
		}
	}
}

// addWatches watches the root and every location that exists. Voice packs are
// one level deeper, so their directories are watched too.
func (idx *Indexer) addWatches(watcher *fsnotify.Watcher) {
	watched := make(map[string]bool)
	for _, p := range watcher.WatchList() {
		watched[p] = true
	}

	add := func(path string) {
		if watched[path] {
			return
		}
		if err := watcher.Add(path); err == nil {
			watched[path] = true
		}
	}

	for _, loc := range Locations {
		add(idx.scanner.locationPath(loc.Dir))
	}
	voiceDir := idx.scanner.locationPath(assettypes.VoiceDir)
	if matches, err := filepath.Glob(filepath.Join(voiceDir, "*")); err == nil {
		for _, m := range matches {
			add(m)
		}
	}

	idx.watchedDirectories.Store(int64(len(watched)))
	metrics.ScannerWatchedDirectories.Set(float64(len(watched)))
}

func eventType(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return "unknown"
	}
}
