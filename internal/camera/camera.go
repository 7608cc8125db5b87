// Package camera manages the lifecycle of a USB video-capture device: open,
// stream control, most-recent-frame access, liveness and teardown.
//
// A Camera is a handle to shared device state. Clone returns another handle
// to the same device and Release drops one; the device is torn down when the
// last handle is released or when Close is called on any of them.
//
// Construction never fails outright. A camera that could not be opened is
// inert: IsAvailable reports false and Err returns the driver error text.
//
//	cam := camera.New(drv, 0x046d, 0x0825, "")
//	defer cam.Release()
//	if !cam.IsAvailable() {
//		return fmt.Errorf("open camera: %s", cam.Err())
//	}
//	if err := cam.StartRecording(camera.FormatMJPEG, 1280, 720, 30); err != nil {
//		return err
//	}
//	if f := cam.Frame(); f != nil {
//		process(f.Data)
//	}
package camera

import (
	"sync/atomic"
	"time"

	"github.com/smazurov/uvcnode/internal/driver"
)

// Camera is a reference-counted handle to one device.
type Camera struct {
	h        *handle
	released atomic.Bool
}

// New opens the device matching vendorID, productID and serial. Zero ids and
// an empty serial match any device. Failures are recorded on the returned
// camera and reported to the error sink.
func New(drv driver.Driver, vendorID, productID int, serial string, opts ...Option) *Camera {
	h := newHandle(drv, buildOptions(opts))
	h.open(vendorID, productID, serial)
	return &Camera{h: h}
}

// NewInert returns a closed camera that never touched hardware.
func NewInert(opts ...Option) *Camera {
	return &Camera{h: newHandle(nil, buildOptions(opts))}
}

// Clone returns another handle sharing this camera's device.
func (c *Camera) Clone() *Camera {
	c.h.refs.Add(1)
	return &Camera{h: c.h}
}

// Release drops this handle. The device is freed when the last handle is
// released. Releasing a handle twice has no effect.
func (c *Camera) Release() {
	if c == nil || !c.released.CompareAndSwap(false, true) {
		return
	}
	if c.h.refs.Add(-1) == 0 {
		c.h.free()
	}
}

// Close frees the device for every handle. It is safe to call repeatedly.
func (c *Camera) Close() {
	c.h.free()
}

// Handles returns how many unreleased handles share the device.
func (c *Camera) Handles() int {
	return int(c.h.refs.Load())
}

// ID identifies the shared device state.
func (c *Camera) ID() string {
	return c.h.id
}

// State returns the lifecycle state.
func (c *Camera) State() State {
	return c.h.loadState()
}

// Err returns the last recorded driver error text, or "".
func (c *Camera) Err() string {
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	return c.h.errText
}

// LastActivity returns when the device was opened or last delivered a frame.
func (c *Camera) LastActivity() time.Time {
	return c.h.lastActivity()
}

// IsAvailable reports whether the camera is open and was active within the
// liveness window.
func (c *Camera) IsAvailable() bool {
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	return c.h.availableLocked()
}

// IsClosed is the negation of IsAvailable.
func (c *Camera) IsClosed() bool {
	return !c.IsAvailable()
}

// Descriptor fetches the device descriptor.
func (c *Camera) Descriptor() (driver.Descriptor, error) {
	return c.h.descriptor()
}

// VendorID returns the USB vendor id, or -1 if the descriptor is unavailable.
func (c *Camera) VendorID() int {
	d, err := c.h.descriptor()
	if err != nil {
		return -1
	}
	return int(d.VendorID)
}

// ProductID returns the USB product id, or -1 if the descriptor is unavailable.
func (c *Camera) ProductID() int {
	d, err := c.h.descriptor()
	if err != nil {
		return -1
	}
	return int(d.ProductID)
}

// Product returns the product string, or "".
func (c *Camera) Product() string {
	d, err := c.h.descriptor()
	if err != nil {
		return ""
	}
	return d.Product
}

// Manufacturer returns the manufacturer string, or "".
func (c *Camera) Manufacturer() string {
	d, err := c.h.descriptor()
	if err != nil {
		return ""
	}
	return d.Manufacturer
}

// Serial returns the serial number string, or "".
func (c *Camera) Serial() string {
	d, err := c.h.descriptor()
	if err != nil {
		return ""
	}
	return d.SerialNumber
}

// StartRecording starts streaming in the given format. It does nothing when
// the camera is already streaming. When the camera is not available it does
// nothing and returns ErrNotAvailable.
//
// The state moves to streaming before the driver is asked to negotiate, so
// concurrent callers see the stream as taken. A negotiation or start failure
// is recorded, reported and returned, and the state goes back to open.
func (c *Camera) StartRecording(format Format, width, height, fps int) error {
	h := c.h
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.loadState() == StateStreaming {
		return nil
	}
	if !h.availableLocked() {
		return ErrNotAvailable
	}
	h.setState(StateStreaming)

	observer := h.opts.observer
	h.callback = func(f Frame) {
		h.slot.store(f)
		h.touch()
		if observer != nil {
			observer(h.id, &f)
		}
	}

	ctrl, err := h.devh.StreamControl(NativeFormat(format), width, height, fps)
	if e := h.fail("stream_control", err); e != nil {
		h.callback = nil
		h.setState(StateOpen)
		return e
	}

	cb := h.callback
	err = h.devh.StartStreaming(ctrl, func(raw *driver.RawFrame) {
		deliver(raw, cb)
	})
	if e := h.fail("start_streaming", err); e != nil {
		h.callback = nil
		h.setState(StateOpen)
		return e
	}

	h.logger().Info("Streaming started",
		"format", format.String(),
		"width", ctrl.Width,
		"height", ctrl.Height,
		"fps", ctrl.FPS)
	return nil
}

// StopRecording halts streaming. It does nothing unless the camera is
// available.
func (c *Camera) StopRecording() {
	h := c.h
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.availableLocked() {
		return
	}
	h.devh.StopStreaming()
	h.callback = nil
	h.slot.reset()
	h.setState(StateOpen)
	h.logger().Info("Streaming stopped")
}

// Frame returns the most recent frame, or nil when nothing was delivered yet
// or the current frame was already handed out twice.
func (c *Camera) Frame() *Frame {
	return c.h.slot.take()
}
