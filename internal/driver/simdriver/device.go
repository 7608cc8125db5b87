package simdriver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/uvcnode/internal/driver"
)

// Device is one simulated physical device.
type Device struct {
	drv  *Driver
	spec DeviceSpec

	mu       sync.Mutex
	attached bool
	stream   *stream
}

func (d *Device) isAttached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached
}

// Unplug detaches the device. An active stream stays registered but stops
// delivering frames, the way a yanked cable stalls a real stream.
func (d *Device) Unplug() {
	d.mu.Lock()
	d.attached = false
	s := d.stream
	d.mu.Unlock()
	if s != nil {
		s.pause()
	}
}

// Plug reattaches the device.
func (d *Device) Plug() {
	d.mu.Lock()
	d.attached = true
	d.mu.Unlock()
}

// Streaming reports whether a stream is active on the device.
func (d *Device) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream != nil
}

// Control returns the stream control of the active stream.
func (d *Device) Control() (driver.StreamControl, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return driver.StreamControl{}, false
	}
	return d.stream.ctrl, true
}

// Push delivers frame to the active stream's callback on the calling
// goroutine. It reports false when nothing is streaming.
func (d *Device) Push(frame *driver.RawFrame) bool {
	d.mu.Lock()
	s := d.stream
	d.mu.Unlock()
	if s == nil {
		return false
	}
	s.emit(frame)
	return true
}

// PushPattern delivers one generated test-pattern frame.
func (d *Device) PushPattern() bool {
	d.mu.Lock()
	s := d.stream
	d.mu.Unlock()
	if s == nil {
		return false
	}
	s.emitPattern()
	return true
}

type simHandle struct {
	dev    *Device
	closed atomic.Bool
}

func (h *simHandle) StreamControl(format driver.FrameFormat, width, height, fps int) (driver.StreamControl, error) {
	spec := h.dev.spec
	if spec.ControlErr != nil {
		return driver.StreamControl{}, spec.ControlErr
	}
	if width <= 0 || height <= 0 || fps <= 0 {
		return driver.StreamControl{}, driver.ErrInvalidParam
	}
	ctrl := driver.StreamControl{Format: format, Width: width, Height: height, FPS: fps}
	if len(spec.Modes) == 0 {
		if ctrl.Format == driver.FrameFormatAny || ctrl.Format == driver.FrameFormatUncompressed {
			ctrl.Format = driver.FrameFormatYUYV
		} else if ctrl.Format == driver.FrameFormatCompressed {
			ctrl.Format = driver.FrameFormatMJPEG
		}
		return ctrl, nil
	}
	for _, m := range spec.Modes {
		if !formatMatches(format, m.Format) {
			continue
		}
		if m.Width == width && m.Height == height && m.FPS == fps {
			ctrl.Format = m.Format
			return ctrl, nil
		}
	}
	return driver.StreamControl{}, driver.ErrInvalidMode
}

func formatMatches(requested, offered driver.FrameFormat) bool {
	switch requested {
	case driver.FrameFormatAny:
		return true
	case driver.FrameFormatUncompressed:
		return !offered.Compressed()
	case driver.FrameFormatCompressed:
		return offered.Compressed()
	}
	return requested == offered
}

func (h *simHandle) StartStreaming(ctrl driver.StreamControl, cb driver.FrameCallback) error {
	if h.dev.spec.StartErr != nil {
		return h.dev.spec.StartErr
	}
	if cb == nil {
		return driver.ErrInvalidParam
	}

	h.dev.mu.Lock()
	if !h.dev.attached {
		h.dev.mu.Unlock()
		return driver.ErrNoDevice
	}
	if h.dev.stream != nil {
		h.dev.mu.Unlock()
		return driver.ErrBusy
	}
	s := newStream(h, ctrl, cb)
	h.dev.stream = s
	h.dev.mu.Unlock()

	h.dev.drv.Counters.StreamStarts.Add(1)
	if h.dev.spec.Generate {
		s.startGenerator()
	}
	return nil
}

func (h *simHandle) StopStreaming() {
	h.dev.mu.Lock()
	s := h.dev.stream
	if s == nil || s.owner != h {
		h.dev.mu.Unlock()
		return
	}
	h.dev.stream = nil
	h.dev.mu.Unlock()

	s.stop()
	h.dev.drv.Counters.StreamStops.Add(1)
}

func (h *simHandle) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.StopStreaming()
	h.dev.drv.Counters.Closes.Add(1)
}

// stream is one active simulated stream.
type stream struct {
	owner *simHandle
	ctrl  driver.StreamControl
	cb    driver.FrameCallback

	// mu serialises callbacks so stop can wait for one in flight.
	mu      sync.Mutex
	stopped bool
	paused  atomic.Bool
	seq     uint32
	buf     []byte

	done chan struct{}
	wg   sync.WaitGroup
}

func newStream(owner *simHandle, ctrl driver.StreamControl, cb driver.FrameCallback) *stream {
	return &stream{
		owner: owner,
		ctrl:  ctrl,
		cb:    cb,
		buf:   make([]byte, frameSize(ctrl.Format, ctrl.Width, ctrl.Height)),
		done:  make(chan struct{}),
	}
}

func (s *stream) emit(frame *driver.RawFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cb(frame)
}

func (s *stream) pause() {
	s.paused.Store(true)
}

// emitPattern renders the following pattern frame into the shared buffer
// and delivers it. The buffer is rewritten only after the callback returned,
// like a driver requeueing a capture buffer.
func (s *stream) emitPattern() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.seq++
	s.cb(&driver.RawFrame{
		Format:    s.ctrl.Format,
		Width:     s.ctrl.Width,
		Height:    s.ctrl.Height,
		Data:      fillPattern(s.buf, s.ctrl.Format, s.ctrl.Width, s.ctrl.Height, s.seq),
		Sequence:  s.seq,
		Timestamp: time.Now(),
	})
}

func (s *stream) startGenerator() {
	interval := time.Second / time.Duration(s.ctrl.FPS)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				if s.paused.Load() {
					continue
				}
				s.emitPattern()
			}
		}
	}()
}

func (s *stream) stop() {
	close(s.done)
	s.wg.Wait()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}
