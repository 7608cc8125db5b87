package cameras

import (
	"context"
	"time"

	"github.com/smazurov/uvcnode/internal/camera"
	"github.com/smazurov/uvcnode/internal/events"
	"github.com/smazurov/uvcnode/internal/metrics"
)

// Hotplug actions understood by HandleHotplug.
const (
	HotplugAdd    = "add"
	HotplugRemove = "remove"
)

// Run checks the cameras every CheckInterval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()

	s.logger.Debug("Camera watchdog started", "interval", s.opts.CheckInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Check()
		}
	}
}

// Check runs one watchdog pass. A camera that should be streaming but has
// left its liveness window is reported stalled and reopened, backing off
// exponentially between attempts.
func (s *Service) Check() {
	now := s.opts.Now()
	for _, e := range s.snapshot() {
		e.mu.Lock()
		s.checkLocked(e, now)
		e.mu.Unlock()
	}
}

func (s *Service) checkLocked(e *entry, now time.Time) {
	if e.closed || !e.streaming {
		return
	}

	if e.cam.IsAvailable() {
		if e.cam.LastActivity().After(e.openedAt) {
			e.attempts = 0
		}
		if e.cam.State() != camera.StateStreaming {
			if err := s.startLocked(e); err != nil {
				s.logger.Debug("Restart failed", "camera_id", e.id, "error", err)
			}
		}
		return
	}
	if now.Before(e.nextRetry) {
		return
	}

	e.attempts++
	s.logger.Warn("Camera stalled, reopening",
		"camera_id", e.id,
		"attempt", e.attempts,
		"last_activity", e.cam.LastActivity())
	s.publish(events.CameraStalledEvent{
		CameraID:     e.id,
		LastActivity: e.cam.LastActivity().UTC().Format(time.RFC3339),
		Attempt:      e.attempts,
		Timestamp:    s.timestamp(),
	})

	s.reopenLocked(e)
	e.nextRetry = now.Add(s.backoff(e.attempts))

	if e.cam.IsAvailable() {
		if err := s.startLocked(e); err != nil {
			s.logger.Warn("Restart after reopen failed", "camera_id", e.id, "error", err)
		}
	}
}

// backoff is RetryDelay doubled per attempt, capped at MaxRetryDelay.
func (s *Service) backoff(attempt int) time.Duration {
	delay := s.opts.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.opts.MaxRetryDelay {
			return s.opts.MaxRetryDelay
		}
	}
	return delay
}

// reopenLocked replaces the camera with a fresh open of the same device.
func (s *Service) reopenLocked(e *entry) {
	old := e.cam
	old.Close()
	old.Release()

	e.cam = camera.New(s.drv, e.spec.VendorID, e.spec.ProductID, e.spec.Serial, s.cameraOptions(e.id)...)
	e.openedAt = s.opts.Now()
	metrics.RecordReopen(e.id)

	if e.cam.IsAvailable() {
		s.logger.Info("Camera reopened", "camera_id", e.id)
	} else {
		s.logger.Debug("Reopen failed", "camera_id", e.id, "error", e.cam.Err())
	}
	s.publishState(e)
}

// HandleHotplug reacts to USB devices coming and going. An added device
// immediately reopens every unavailable camera configured for it, without
// waiting for the watchdog backoff.
func (s *Service) HandleHotplug(ev events.DeviceHotplugEvent) {
	for _, e := range s.snapshot() {
		e.mu.Lock()
		if !e.closed && matchesDevice(e, ev.VendorID, ev.ProductID) {
			s.hotplugLocked(e, ev)
		}
		e.mu.Unlock()
	}
}

func (s *Service) hotplugLocked(e *entry, ev events.DeviceHotplugEvent) {
	switch ev.Action {
	case HotplugAdd:
		if e.cam.IsAvailable() {
			return
		}
		s.logger.Info("Configured device plugged in", "camera_id", e.id, "devpath", ev.DevPath)
		e.attempts = 0
		e.nextRetry = time.Time{}
		if !s.restoreLocked(e) {
			s.retryHotplug(e, 1)
		}
	case HotplugRemove:
		s.logger.Warn("Configured device unplugged", "camera_id", e.id, "devpath", ev.DevPath)
		s.publishState(e)
	}
}

// restoreLocked reopens the camera and restarts it when it should be
// streaming. It reports whether the device could be opened.
func (s *Service) restoreLocked(e *entry) bool {
	s.reopenLocked(e)
	if !e.cam.IsAvailable() {
		return false
	}
	if e.streaming {
		if err := s.startLocked(e); err != nil {
			s.logger.Warn("Start after hotplug failed", "camera_id", e.id, "error", err)
		}
	}
	return true
}

// retryHotplug reopens e after HotplugRetryDelay until it opens, is closed,
// recovers on its own or HotplugRetries attempts are used up.
func (s *Service) retryHotplug(e *entry, attempt int) {
	if attempt > s.opts.HotplugRetries {
		s.logger.Debug("Giving up hotplug reopen", "camera_id", e.id)
		return
	}
	time.AfterFunc(s.opts.HotplugRetryDelay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed || e.cam.IsAvailable() {
			return
		}
		s.logger.Debug("Retrying hotplug reopen", "camera_id", e.id, "attempt", attempt)
		if !s.restoreLocked(e) {
			s.retryHotplug(e, attempt+1)
		}
	})
}

// matchesDevice applies the same wildcard rules as device lookup: a zero
// id in the CameraSpec matches anything.
func matchesDevice(e *entry, vendorID, productID int) bool {
	return (e.spec.VendorID == 0 || e.spec.VendorID == vendorID) &&
		(e.spec.ProductID == 0 || e.spec.ProductID == productID)
}
