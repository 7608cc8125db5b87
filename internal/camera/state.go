package camera

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/uvcnode/internal/driver"
)

// State is the lifecycle state of a camera.
type State uint8

// Lifecycle states.
const (
	StateClosed    State = 0
	StateOpen      State = 1
	StateStreaming State = 2
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateStreaming:
		return "streaming"
	}
	return "invalid"
}

// handle is the shared record behind every Camera value that refers to the
// same device.
//
// mu serialises lifecycle changes and access to the driver objects. The
// frame delivery path never takes mu: it only touches slot and stamp, so
// StopStreaming may wait for an in-flight callback while mu is held.
type handle struct {
	id   string
	drv  driver.Driver
	opts options

	mu       sync.Mutex
	ctx      driver.Context
	dev      driver.Device
	devh     driver.Handle
	callback func(Frame)
	errText  string

	state atomic.Uint32
	stamp atomic.Int64 // unix milliseconds
	refs  atomic.Int32
	slot  frameSlot
}

func newHandle(drv driver.Driver, opts options) *handle {
	h := &handle{
		id:   uuid.NewString(),
		drv:  drv,
		opts: opts,
	}
	h.refs.Store(1)
	return h
}

func (h *handle) loadState() State {
	return State(h.state.Load())
}

func (h *handle) setState(s State) {
	h.state.Store(uint32(s))
}

func (h *handle) touch() {
	h.stamp.Store(h.opts.now().UnixMilli())
}

func (h *handle) logger() *slog.Logger {
	return h.opts.logger.With("camera_id", h.id)
}

// availableLocked reports liveness. Callers hold mu.
func (h *handle) availableLocked() bool {
	if h.loadState() < StateOpen || h.ctx == nil {
		return false
	}
	elapsed := h.opts.now().UnixMilli() - h.stamp.Load()
	return elapsed < h.opts.window.Milliseconds()
}

// record stores the translated text for err. It returns false and clears
// the text when err carries no error.
func (h *handle) record(err error) bool {
	code := driver.CodeOf(err)
	if code == driver.Success {
		h.errText = ""
		return false
	}
	h.errText = ErrorText(code)
	return true
}

// fail records err and reports it to the sink. It returns the translated
// error, or nil when err was nil.
func (h *handle) fail(op string, err error) *Error {
	if !h.record(err) {
		return nil
	}
	e := &Error{
		CameraID: h.id,
		Op:       op,
		Code:     driver.CodeOf(err),
		Message:  h.errText,
	}
	h.opts.sink.ReportError(e)
	return e
}

// open acquires context, device and handle in that order. On failure
// whatever was acquired is released again and the state stays closed.
func (h *handle) open(vendorID, productID int, serial string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	logger := h.logger().With("vendor_id", vendorID, "product_id", productID, "serial", serial)

	if h.drv == nil {
		h.fail("init", driver.ErrInvalidParam)
		return
	}

	ctx, err := h.drv.Init()
	if h.fail("init", err) != nil {
		return
	}
	h.ctx = ctx

	dev, err := ctx.FindDevice(vendorID, productID, serial)
	if h.fail("find_device", err) != nil {
		h.releaseLocked(StateClosed)
		return
	}
	h.dev = dev

	devh, err := dev.Open()
	if h.fail("open", err) != nil {
		h.releaseLocked(StateClosed)
		return
	}
	h.devh = devh

	h.setState(StateOpen)
	h.touch()
	logger.Debug("Camera opened")
}

// free tears the device down once. Repeated calls are no-ops.
func (h *handle) free() {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.loadState()
	if prev == StateClosed {
		return
	}
	h.setState(StateClosed)
	h.releaseLocked(prev)
	h.logger().Debug("Camera released", "previous_state", prev.String())
}

// releaseLocked closes the handle, drops the device reference and exits the
// context, clearing each so nothing is released twice. Callers hold mu.
func (h *handle) releaseLocked(prev State) {
	if h.devh != nil {
		if prev == StateStreaming {
			h.devh.StopStreaming()
		}
		h.devh.Close()
		h.devh = nil
	}
	h.callback = nil
	h.slot.reset()
	if h.dev != nil {
		h.dev.Unref()
		h.dev = nil
	}
	if h.ctx != nil {
		h.ctx.Exit()
		h.ctx = nil
	}
}

func (h *handle) descriptor() (driver.Descriptor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev == nil {
		return driver.Descriptor{}, driver.ErrNoDevice
	}
	return h.dev.Descriptor()
}

func (h *handle) lastActivity() time.Time {
	ms := h.stamp.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
