// Package collectors samples camera status into Prometheus gauges.
package collectors

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/uvcnode/internal/logging"
	"github.com/smazurov/uvcnode/internal/metrics"
)

// DefaultInterval is how often the collector samples.
const DefaultInterval = 2 * time.Second

// CameraStatus is one camera as seen by the collector.
type CameraStatus struct {
	ID           string
	Available    bool
	State        uint8
	LastActivity time.Time
}

// StatusSource lists the cameras to sample.
type StatusSource interface {
	Statuses() []CameraStatus
}

// CameraCollector periodically copies camera status into gauges and drops
// the series of cameras that disappeared.
type CameraCollector struct {
	logger   logging.Logger
	source   StatusSource
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	known  map[string]bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCameraCollector creates a collector for source.
func NewCameraCollector(source StatusSource, interval time.Duration) *CameraCollector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &CameraCollector{
		logger:   logging.GetLogger("metrics"),
		source:   source,
		interval: interval,
		now:      time.Now,
		known:    make(map[string]bool),
	}
}

// Start begins collecting.
func (c *CameraCollector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop stops collecting and waits for the loop to exit.
func (c *CameraCollector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *CameraCollector) run(ctx context.Context) {
	defer c.wg.Done()
	c.logger.Debug("Starting camera metrics collection", "interval", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// Collect takes one sample.
func (c *CameraCollector) Collect() {
	statuses := c.source.Statuses()
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		seen[s.ID] = true
		idle := 0.0
		if !s.LastActivity.IsZero() {
			idle = now.Sub(s.LastActivity).Seconds()
		}
		metrics.SetStatus(s.ID, s.Available, s.State, idle)
	}
	for id := range c.known {
		if !seen[id] {
			metrics.DeleteCameraMetrics(id)
		}
	}
	c.known = seen
}
