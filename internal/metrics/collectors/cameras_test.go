package collectors

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/uvcnode/internal/metrics"
)

type fakeSource struct {
	mu       sync.Mutex
	statuses []CameraStatus
	calls    int
}

func (f *fakeSource) Statuses() []CameraStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]CameraStatus(nil), f.statuses...)
}

func (f *fakeSource) set(s []CameraStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = s
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestCollect_DropsVanishedCameras(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 10, 0, time.UTC)
	src := &fakeSource{}
	src.set([]CameraStatus{
		{ID: "collect-a", Available: true, State: 2, LastActivity: now.Add(-time.Second)},
		{ID: "collect-b", State: 0},
	})

	c := NewCameraCollector(src, time.Hour)
	c.now = func() time.Time { return now }

	metrics.RecordFrameReceived("collect-b", 10)
	c.Collect()
	if !c.known["collect-a"] || !c.known["collect-b"] {
		t.Fatalf("known = %v", c.known)
	}

	src.set([]CameraStatus{{ID: "collect-a", Available: true, State: 2}})
	c.Collect()

	if c.known["collect-b"] {
		t.Error("collect-b should be forgotten")
	}
	if metrics.GetCameraMetrics("collect-b") != nil {
		t.Error("collect-b series should be deleted")
	}
	metrics.DeleteCameraMetrics("collect-a")
}

func TestCollector_StartStop(t *testing.T) {
	src := &fakeSource{}
	c := NewCameraCollector(src, 10*time.Millisecond)
	c.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for src.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()

	if src.count() < 3 {
		t.Fatalf("collected %d times", src.count())
	}
	after := src.count()
	time.Sleep(30 * time.Millisecond)
	if src.count() != after {
		t.Error("collector kept running after Stop")
	}
}

func TestNewCameraCollector_DefaultInterval(t *testing.T) {
	c := NewCameraCollector(&fakeSource{}, 0)
	if c.interval != DefaultInterval {
		t.Errorf("interval = %v", c.interval)
	}
}
