// Package driver defines the contract between the camera core and the
// USB video driver stack that enumerates devices, negotiates stream formats
// and delivers frames.
//
// A backend registers itself under a name and is looked up with Open:
//
//	drv, err := driver.Open("v4l2")
//	ctx, err := drv.Init()
//	defer ctx.Exit()
//
// Frame callbacks run on a goroutine owned by the backend for as long as the
// stream is active. StopStreaming must not return while a callback is still
// executing.
package driver

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Driver initializes driver contexts.
type Driver interface {
	Init() (Context, error)
}

// Context is an initialized driver session.
type Context interface {
	// FindDevice returns the first device matching the ids. A zero vendor or
	// product id and an empty serial act as wildcards.
	FindDevice(vendorID, productID int, serial string) (Device, error)

	// Devices lists every attached device.
	Devices() ([]Device, error)

	// Exit releases the context. Devices obtained from it must be
	// released first.
	Exit()
}

// Device is a reference to a physical device.
type Device interface {
	Descriptor() (Descriptor, error)
	Open() (Handle, error)
	Unref()
}

// Handle is an opened device.
type Handle interface {
	// StreamControl negotiates stream parameters without starting the stream.
	StreamControl(format FrameFormat, width, height, fps int) (StreamControl, error)

	// StartStreaming starts delivering frames to cb on a driver goroutine.
	StartStreaming(ctrl StreamControl, cb FrameCallback) error

	// StopStreaming halts delivery and waits for an in-flight callback.
	StopStreaming()

	Close()
}

// Mode is one format, size and rate combination a device offers.
type Mode struct {
	Format FrameFormat `json:"format"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	FPS    int         `json:"fps"`
}

// ModeLister is implemented by devices that can enumerate their modes
// without being opened.
type ModeLister interface {
	Modes() ([]Mode, error)
}

// Descriptor is the USB device descriptor subset the core uses.
type Descriptor struct {
	VendorID     uint16 `json:"vendor_id"`
	ProductID    uint16 `json:"product_id"`
	SerialNumber string `json:"serial_number"`
	Manufacturer string `json:"manufacturer"`
	Product      string `json:"product"`
	BusNumber    int    `json:"bus_number"`
	Address      int    `json:"address"`
}

// StreamControl is a negotiated stream configuration.
type StreamControl struct {
	Format FrameFormat
	Width  int
	Height int
	FPS    int
	// Native is backend specific (a FourCC for V4L2).
	Native uint32
}

// RawFrame is one frame as produced by a backend. Data points into a driver
// buffer and is only valid for the duration of the callback.
type RawFrame struct {
	Format    FrameFormat
	Width     int
	Height    int
	Data      []byte
	Sequence  uint32
	Timestamp time.Time
}

// FrameCallback receives frames on the driver goroutine.
type FrameCallback func(frame *RawFrame)

// Factory creates a driver instance.
type Factory func() (Driver, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available by name. Registering a name twice
// replaces the previous factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Open creates the backend registered under name.
func Open(name string) (Driver, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown driver %q (available: %v)", name, Names())
	}
	return factory()
}

// Names returns the registered backend names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
