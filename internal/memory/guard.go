package memory

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"map-manager/internal/logging"
	"map-manager/internal/metrics"
)

// GuardConfig configures a Guard.
type GuardConfig struct {
	// LimitBytes is the reference limit; 0 uses the runtime soft limit.
	LimitBytes int64
	// Critical is the usage ratio at which the guard reports pressure.
	Critical float64
	// Recover is the usage ratio below which pressure clears.
	Recover float64
	// CheckInterval is how often heap usage is sampled.
	CheckInterval time.Duration
}

// DefaultGuardConfig returns the thresholds used by the service.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Critical:      0.85,
		Recover:       0.7,
		CheckInterval: 5 * time.Second,
	}
}

// Guard samples heap usage against a limit and reports pressure with
// hysteresis. Without a limit it never reports pressure.
type Guard struct {
	config GuardConfig
	limit  int64
	sample func() uint64

	mu        sync.RWMutex
	usage     float64
	pressured bool

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
	log      logging.Logger
}

// NewGuard creates a guard. It does nothing until Start.
func NewGuard(config GuardConfig) *Guard {
	limit := config.LimitBytes
	if limit == 0 {
		if soft := debug.SetMemoryLimit(-1); soft > 0 && soft < 1<<62 {
			limit = soft
		}
	}

	g := &Guard{
		config:   config,
		limit:    limit,
		sample:   heapAlloc,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		log:      logging.For("memory"),
	}
	if limit == 0 {
		g.log.Info("no memory limit configured, preview throttling disabled")
	} else {
		g.log.Info("guarding against %s limit", FormatBytes(limit))
	}
	return g
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Start begins sampling.
func (g *Guard) Start() {
	if g.limit == 0 {
		close(g.done)
		return
	}
	go g.loop()
}

// Stop ends sampling and waits for the loop to exit.
func (g *Guard) Stop() {
	g.stopOnce.Do(func() {
		close(g.stopChan)
		<-g.done
	})
}

func (g *Guard) loop() {
	defer close(g.done)

	ticker := time.NewTicker(g.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.check()
		case <-g.stopChan:
			return
		}
	}
}

func (g *Guard) check() {
	if g.limit == 0 {
		return
	}
	usage := float64(g.sample()) / float64(g.limit)
	metrics.MemoryUsageRatio.Set(usage)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.usage = usage
	switch {
	case !g.pressured && usage >= g.config.Critical:
		g.pressured = true
		metrics.MemoryPressure.Set(1)
		metrics.MemoryPressureEvents.Inc()
		g.log.Warn("memory critical (%.1f%% of limit), refusing previews", usage*100)
		go runtime.GC()
	case g.pressured && usage < g.config.Recover:
		g.pressured = false
		metrics.MemoryPressure.Set(0)
		g.log.Info("memory recovered (%.1f%% of limit)", usage*100)
	}
}

// Pressured reports whether memory-heavy work should be refused.
func (g *Guard) Pressured() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pressured
}

// Usage returns the last sampled usage ratio, 0 without a limit.
func (g *Guard) Usage() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.usage
}

// Limit returns the reference limit in bytes.
func (g *Guard) Limit() int64 {
	return g.limit
}
