package metrics

import (
	"sync"
	"time"

	"map-manager/internal/logging"
)

// Updater refreshes gauges that are polled rather than pushed.
type Updater interface {
	UpdateMetrics()
}

// UpdaterFunc adapts a function to Updater.
type UpdaterFunc func()

// UpdateMetrics calls f.
func (f UpdaterFunc) UpdateMetrics() { f() }

// Collector periodically runs its updaters.
type Collector struct {
	updaters []Updater
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewCollector creates a collector running updaters every interval.
func NewCollector(interval time.Duration, updaters ...Updater) *Collector {
	return &Collector{
		updaters: updaters,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the collection loop.
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop ends the collection loop and waits for it to exit.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		<-c.done
	})
}

func (c *Collector) collectLoop() {
	defer close(c.done)

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	for _, u := range c.updaters {
		if u != nil {
			u.UpdateMetrics()
		}
	}
	logging.Debug("Metrics collected from %d updaters", len(c.updaters))
}
