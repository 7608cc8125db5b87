// Package metrics provides Prometheus metrics for cameras.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "uvcnode"

var (
	framesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "frames_received_total",
		Help:      "Frames delivered by the driver",
	}, []string{"camera_id"})

	framesServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "frames_served_total",
		Help:      "Frames handed to consumers",
	}, []string{"camera_id"})

	staleReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "stale_reads_total",
		Help:      "Frame requests that found no fresh frame",
	}, []string{"camera_id"})

	cameraErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "errors_total",
		Help:      "Driver errors recorded on a camera",
	}, []string{"camera_id", "code"})

	reopens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "reopens_total",
		Help:      "Watchdog reopen attempts",
	}, []string{"camera_id"})

	lastFrameBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "last_frame_bytes",
		Help:      "Size of the most recent frame",
	}, []string{"camera_id"})

	available = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "available",
		Help:      "1 when the camera is open and within its liveness window",
	}, []string{"camera_id"})

	state = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "state",
		Help:      "Lifecycle state: 0 closed, 1 open, 2 streaming",
	}, []string{"camera_id"})

	idleSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "idle_seconds",
		Help:      "Seconds since the camera was opened or last delivered a frame",
	}, []string{"camera_id"})

	// Mirror of the counters for the API and SSE exporter.
	cache   = make(map[string]*CameraMetrics)
	cacheMu sync.RWMutex
)

// CameraMetrics holds current counter values for a camera.
type CameraMetrics struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesServed   uint64 `json:"frames_served"`
	StaleReads     uint64 `json:"stale_reads"`
	Errors         uint64 `json:"errors"`
	Reopens        uint64 `json:"reopens"`
	LastFrameBytes uint64 `json:"last_frame_bytes"`
}

// RecordFrameReceived counts a delivered frame of size bytes. It runs on
// driver goroutines.
func RecordFrameReceived(cameraID string, size uint) {
	framesReceived.WithLabelValues(cameraID).Inc()
	lastFrameBytes.WithLabelValues(cameraID).Set(float64(size))
	updateCache(cameraID, func(m *CameraMetrics) {
		m.FramesReceived++
		m.LastFrameBytes = uint64(size)
	})
}

// RecordFrameRead counts a frame request; served is false when no fresh
// frame was available.
func RecordFrameRead(cameraID string, served bool) {
	if served {
		framesServed.WithLabelValues(cameraID).Inc()
		updateCache(cameraID, func(m *CameraMetrics) { m.FramesServed++ })
		return
	}
	staleReads.WithLabelValues(cameraID).Inc()
	updateCache(cameraID, func(m *CameraMetrics) { m.StaleReads++ })
}

// RecordError counts a driver error.
func RecordError(cameraID, code string) {
	cameraErrors.WithLabelValues(cameraID, code).Inc()
	updateCache(cameraID, func(m *CameraMetrics) { m.Errors++ })
}

// RecordReopen counts a watchdog reopen attempt.
func RecordReopen(cameraID string) {
	reopens.WithLabelValues(cameraID).Inc()
	updateCache(cameraID, func(m *CameraMetrics) { m.Reopens++ })
}

// SetStatus publishes the availability and lifecycle gauges.
func SetStatus(cameraID string, isAvailable bool, lifecycle uint8, idle float64) {
	v := 0.0
	if isAvailable {
		v = 1
	}
	available.WithLabelValues(cameraID).Set(v)
	state.WithLabelValues(cameraID).Set(float64(lifecycle))
	idleSeconds.WithLabelValues(cameraID).Set(idle)
}

// DeleteCameraMetrics removes every series of a camera.
func DeleteCameraMetrics(cameraID string) {
	framesReceived.DeleteLabelValues(cameraID)
	framesServed.DeleteLabelValues(cameraID)
	staleReads.DeleteLabelValues(cameraID)
	cameraErrors.DeletePartialMatch(prometheus.Labels{"camera_id": cameraID})
	reopens.DeleteLabelValues(cameraID)
	lastFrameBytes.DeleteLabelValues(cameraID)
	available.DeleteLabelValues(cameraID)
	state.DeleteLabelValues(cameraID)
	idleSeconds.DeleteLabelValues(cameraID)

	cacheMu.Lock()
	delete(cache, cameraID)
	cacheMu.Unlock()
}

// GetCameraMetrics returns a copy of the counters for a camera, or nil.
func GetCameraMetrics(cameraID string) *CameraMetrics {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	if m, ok := cache[cameraID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllCameraMetrics returns copies of every camera's counters.
func GetAllCameraMetrics() map[string]*CameraMetrics {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	result := make(map[string]*CameraMetrics, len(cache))
	for id, m := range cache {
		dup := *m
		result[id] = &dup
	}
	return result
}

func updateCache(cameraID string, update func(*CameraMetrics)) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	m, ok := cache[cameraID]
	if !ok {
		m = &CameraMetrics{}
		cache[cameraID] = m
	}
	update(m)
}
