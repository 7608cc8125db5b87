//go:build linux && (amd64 || arm64)

package v4l2uvc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smazurov/uvcnode/internal/driver"
	"github.com/smazurov/uvcnode/internal/logging"
	"github.com/smazurov/uvcnode/pkg/linuxav/usb"
	"github.com/smazurov/uvcnode/pkg/linuxav/v4l2"
)

// Defaults for Options.
const (
	DefaultBufferCount = 4
	DefaultReadTimeout = 500 * time.Millisecond
)

func init() {
	driver.Register("v4l2", func() (driver.Driver, error) {
		return New(Options{}), nil
	})
}

// Options configures the backend.
type Options struct {
	// BufferCount is how many mmap buffers a stream requests.
	BufferCount uint32
	// ReadTimeout bounds each wait for a frame, and so how long
	// StopStreaming may block.
	ReadTimeout time.Duration
}

// Driver is the V4L2 backend.
type Driver struct {
	opts   Options
	logger *slog.Logger

	// Discovery hooks, replaced in tests.
	findNodes func() ([]v4l2.DeviceInfo, error)
	resolve   func(devicePath string) (usb.Device, error)
	readUSB   func(sysPath string) (usb.Device, error)
}

// New creates the backend.
func New(opts Options) *Driver {
	if opts.BufferCount == 0 {
		opts.BufferCount = DefaultBufferCount
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	return &Driver{
		opts:      opts,
		logger:    logging.GetLogger("driver"),
		findNodes: v4l2.FindDevices,
		resolve:   resolveUSB,
		readUSB:   usb.ReadDevice,
	}
}

func resolveUSB(devicePath string) (usb.Device, error) {
	sys, err := v4l2.SysfsDevicePath(devicePath)
	if err != nil {
		return usb.Device{}, err
	}
	return usb.DeviceFor(sys)
}

// Init implements driver.Driver.
func (d *Driver) Init() (driver.Context, error) {
	return &uvcContext{drv: d}, nil
}

type uvcContext struct {
	drv    *Driver
	exited atomic.Bool
}

// node is a capture node together with the USB device behind it.
type node struct {
	path string
	usb  usb.Device
}

// nodes lists one capture node per USB device. Nodes that are not backed
// by USB, or that cannot stream, are skipped.
func (c *uvcContext) nodes() ([]node, error) {
	if c.exited.Load() {
		return nil, driver.ErrInvalidParam
	}
	infos, err := c.drv.findNodes()
	if err != nil {
		return nil, wrap("find video nodes", err)
	}

	seen := make(map[string]bool)
	nodes := make([]node, 0, len(infos))
	for _, info := range infos {
		if !info.Streaming() {
			continue
		}
		dev, err := c.drv.resolve(info.DevicePath)
		if err != nil {
			c.drv.logger.Debug("Skipping non-USB video node", "path", info.DevicePath, "error", err)
			continue
		}
		if seen[dev.SysPath] {
			continue
		}
		seen[dev.SysPath] = true
		nodes = append(nodes, node{path: info.DevicePath, usb: dev})
	}
	return nodes, nil
}

func (c *uvcContext) FindDevice(vendorID, productID int, serial string) (driver.Device, error) {
	nodes, err := c.nodes()
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.usb.Matches(vendorID, productID, serial) {
			return &device{drv: c.drv, node: n}, nil
		}
	}
	return nil, driver.ErrNoDevice
}

func (c *uvcContext) Devices() ([]driver.Device, error) {
	nodes, err := c.nodes()
	if err != nil {
		return nil, err
	}
	devs := make([]driver.Device, 0, len(nodes))
	for _, n := range nodes {
		devs = append(devs, &device{drv: c.drv, node: n})
	}
	return devs, nil
}

func (c *uvcContext) Exit() {
	c.exited.Store(true)
}

type device struct {
	drv  *Driver
	node node
}

// Descriptor rereads sysfs so a detached device reports ErrNoDevice.
func (d *device) Descriptor() (driver.Descriptor, error) {
	u, err := d.drv.readUSB(d.node.usb.SysPath)
	if err != nil {
		return driver.Descriptor{}, wrap("read descriptor", errors.Join(driver.ErrNoDevice, err))
	}
	return driver.Descriptor{
		VendorID:     u.VendorID,
		ProductID:    u.ProductID,
		SerialNumber: u.Serial,
		Manufacturer: u.Manufacturer,
		Product:      u.Product,
		BusNumber:    u.BusNum,
		Address:      u.DevNum,
	}, nil
}

func (d *device) Open() (driver.Handle, error) {
	s, err := v4l2.OpenStream(d.node.path)
	if err != nil {
		return nil, wrap("open "+d.node.path, err)
	}
	return &handle{
		drv:    d.drv,
		stream: s,
		logger: d.drv.logger.With("device", d.node.path),
	}, nil
}

// Modes implements driver.ModeLister.
func (d *device) Modes() ([]driver.Mode, error) {
	formats, err := v4l2.GetFormats(d.node.path)
	if err != nil {
		return nil, wrap("enumerate formats", err)
	}
	var modes []driver.Mode
	for _, f := range formats {
		native := frameFormat(f.PixelFormat)
		if native == driver.FrameFormatUnknown {
			continue
		}
		resolutions, err := v4l2.GetResolutions(d.node.path, f.PixelFormat)
		if err != nil {
			return nil, wrap("enumerate resolutions", err)
		}
		for _, r := range resolutions {
			rates, err := v4l2.GetFramerates(d.node.path, f.PixelFormat, r.Width, r.Height)
			if err != nil {
				return nil, wrap("enumerate framerates", err)
			}
			for _, rate := range rates {
				modes = append(modes, driver.Mode{
					Format: native,
					Width:  int(r.Width),
					Height: int(r.Height),
					FPS:    int(rate.FPS() + 0.5),
				})
			}
		}
	}
	return modes, nil
}

func (d *device) Unref() {}

// modeSource enumerates what an open device offers.
type modeSource interface {
	Formats() ([]v4l2.FormatInfo, error)
	Resolutions(pixelFormat uint32) ([]v4l2.Resolution, error)
	Framerates(pixelFormat, width, height uint32) ([]v4l2.Framerate, error)
}

// negotiate picks the first device format that satisfies format and offers
// the size and rate. Devices that do not enumerate sizes or rates accept
// any.
func negotiate(src modeSource, format driver.FrameFormat, width, height, fps int) (driver.StreamControl, error) {
	if width <= 0 || height <= 0 || fps <= 0 {
		return driver.StreamControl{}, driver.ErrInvalidParam
	}
	if _, ok := pixelFormat(format); !ok && format > driver.FrameFormatCompressed {
		return driver.StreamControl{}, driver.ErrNotSupported
	}

	formats, err := src.Formats()
	if err != nil {
		return driver.StreamControl{}, wrap("enumerate formats", err)
	}

	for _, f := range formats {
		if !accepts(format, f) {
			continue
		}
		sizes, err := src.Resolutions(f.PixelFormat)
		if err != nil {
			return driver.StreamControl{}, wrap("enumerate resolutions", err)
		}
		if !hasSize(sizes, width, height) {
			continue
		}
		rates, err := src.Framerates(f.PixelFormat, uint32(width), uint32(height))
		if err != nil {
			return driver.StreamControl{}, wrap("enumerate framerates", err)
		}
		if !hasRate(rates, fps) {
			continue
		}
		return driver.StreamControl{
			Format: frameFormat(f.PixelFormat),
			Width:  width,
			Height: height,
			FPS:    fps,
			Native: f.PixelFormat,
		}, nil
	}
	return driver.StreamControl{}, driver.ErrInvalidMode
}

func hasSize(sizes []v4l2.Resolution, width, height int) bool {
	if len(sizes) == 0 {
		return true
	}
	for _, s := range sizes {
		if int(s.Width) == width && int(s.Height) == height {
			return true
		}
	}
	return false
}

func hasRate(rates []v4l2.Framerate, fps int) bool {
	if len(rates) == 0 {
		return true
	}
	for _, r := range rates {
		if int(r.FPS()+0.5) == fps {
			return true
		}
	}
	return false
}

type handle struct {
	drv    *Driver
	stream *v4l2.Stream
	logger *slog.Logger

	mu     sync.Mutex
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

func (h *handle) StreamControl(format driver.FrameFormat, width, height, fps int) (driver.StreamControl, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return driver.StreamControl{}, driver.ErrInvalidDevice
	}
	return negotiate(h.stream, format, width, height, fps)
}

func (h *handle) StartStreaming(ctrl driver.StreamControl, cb driver.FrameCallback) error {
	if cb == nil {
		return driver.ErrInvalidParam
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return driver.ErrInvalidDevice
	}
	if h.done != nil {
		return driver.ErrBusy
	}

	pix, err := h.stream.SetFormat(ctrl.Native, uint32(ctrl.Width), uint32(ctrl.Height))
	if err != nil {
		return wrap("set format", err)
	}
	if pix.PixelFormat != ctrl.Native || int(pix.Width) != ctrl.Width || int(pix.Height) != ctrl.Height {
		return fmt.Errorf("device adjusted format to %s %dx%d: %w",
			v4l2.FormatFourCC(pix.PixelFormat), pix.Width, pix.Height, driver.ErrInvalidMode)
	}
	if _, err := h.stream.SetFrameRate(uint32(ctrl.FPS)); err != nil {
		return wrap("set frame rate", err)
	}
	if err := h.stream.Start(h.drv.opts.BufferCount); err != nil {
		return wrap("start stream", err)
	}

	h.done = make(chan struct{})
	h.wg.Add(1)
	go h.capture(ctrl, cb, h.done)

	h.logger.Debug("Capture started", "format", ctrl.Format.String(), "width", ctrl.Width, "height", ctrl.Height, "fps", ctrl.FPS)
	return nil
}

// capture reads frames until done is closed. A read error other than a
// timeout ends the loop; the stream then stalls until stopped.
func (h *handle) capture(ctrl driver.StreamControl, cb driver.FrameCallback, done <-chan struct{}) {
	defer h.wg.Done()

	for {
		select {
		case <-done:
			return
		default:
		}

		buf, err := h.stream.ReadFrame(h.drv.opts.ReadTimeout)
		if errors.Is(err, v4l2.ErrTimeout) {
			continue
		}
		if errors.Is(err, unix.EAGAIN) {
			continue
		}
		if err != nil {
			h.logger.Warn("Capture stopped", "error", err, "code", codeOf(err).Error())
			return
		}

		cb(&driver.RawFrame{
			Format:    ctrl.Format,
			Width:     ctrl.Width,
			Height:    ctrl.Height,
			Data:      buf.Data,
			Sequence:  buf.Sequence,
			Timestamp: buf.Timestamp,
		})

		if err := h.stream.Requeue(buf.Index); err != nil {
			h.logger.Warn("Capture stopped", "error", err)
			return
		}
	}
}

func (h *handle) StopStreaming() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

func (h *handle) stopLocked() {
	if h.done == nil {
		return
	}
	close(h.done)
	h.wg.Wait()
	h.done = nil

	if err := h.stream.Stop(); err != nil {
		h.logger.Debug("Stream stop failed", "error", err)
	}
	h.logger.Debug("Capture stopped")
}

func (h *handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.stopLocked()
	if err := h.stream.Close(); err != nil {
		h.logger.Debug("Device close failed", "error", err)
	}
}
