package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/uvcnode/internal/events"
	"github.com/smazurov/uvcnode/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter periodically publishes camera counters on the event bus.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		interval: 1 * time.Second,
	}
}

// Start begins the export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

func (s *SSEExporter) publishMetrics() {
	for cameraID, m := range metrics.GetAllCameraMetrics() {
		s.eventBus.Publish(events.CameraMetricsEvent{
			CameraID:       cameraID,
			FramesReceived: strconv.FormatUint(m.FramesReceived, 10),
			FramesServed:   strconv.FormatUint(m.FramesServed, 10),
			StaleReads:     strconv.FormatUint(m.StaleReads, 10),
			Errors:         strconv.FormatUint(m.Errors, 10),
			LastFrameBytes: strconv.FormatUint(m.LastFrameBytes, 10),
		})
	}
}

// EventTypes returns the SSE event names this exporter produces.
func EventTypes() map[string]any {
	return map[string]any{
		"camera-metrics": events.CameraMetricsEvent{},
	}
}
