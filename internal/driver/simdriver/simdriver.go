// Package simdriver is an in-memory driver backend. It simulates attached
// devices, can inject failures per operation and either generates
// test-pattern frames at the negotiated rate or lets the caller push frames
// by hand.
//
// The backend registers itself as "sim" with one generating device.
package simdriver

import (
	"sync"
	"sync/atomic"

	"github.com/smazurov/uvcnode/internal/driver"
)

// Default simulated device identity.
const (
	DefaultVendorID  = 0x1d6b
	DefaultProductID = 0x0102
	DefaultSerial    = "SIM0001"
)

func init() {
	driver.Register("sim", func() (driver.Driver, error) {
		return New(DeviceSpec{
			Descriptor: driver.Descriptor{
				VendorID:     DefaultVendorID,
				ProductID:    DefaultProductID,
				SerialNumber: DefaultSerial,
				Manufacturer: "uvcnode",
				Product:      "Simulated Camera",
				BusNumber:    1,
				Address:      2,
			},
			Generate: true,
		}), nil
	})
}

// Mode is a supported format, size and rate combination.
type Mode = driver.Mode

// DeviceSpec describes one simulated device.
type DeviceSpec struct {
	Descriptor driver.Descriptor

	// Modes restricts StreamControl. An empty list accepts anything.
	Modes []Mode

	// Generate starts a goroutine producing frames at the negotiated rate.
	Generate bool

	DescriptorErr error
	OpenErr       error
	ControlErr    error
	StartErr      error
}

// Counters tracks driver calls for assertions in tests.
type Counters struct {
	Inits        atomic.Int64
	Exits        atomic.Int64
	Finds        atomic.Int64
	Opens        atomic.Int64
	Closes       atomic.Int64
	Unrefs       atomic.Int64
	StreamStarts atomic.Int64
	StreamStops  atomic.Int64
}

// Driver is the simulated backend.
type Driver struct {
	Counters Counters

	mu      sync.Mutex
	devices []*Device
	initErr error
	listErr error
}

// New creates a driver with the given devices attached.
func New(specs ...DeviceSpec) *Driver {
	d := &Driver{}
	for _, spec := range specs {
		d.devices = append(d.devices, &Device{drv: d, spec: spec, attached: true})
	}
	return d
}

// SetInitError makes Init fail with err until cleared with nil.
func (d *Driver) SetInitError(err error) {
	d.mu.Lock()
	d.initErr = err
	d.mu.Unlock()
}

// SetListError makes Devices fail with err until cleared with nil.
func (d *Driver) SetListError(err error) {
	d.mu.Lock()
	d.listErr = err
	d.mu.Unlock()
}

// Device returns the i-th simulated device.
func (d *Driver) Device(i int) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devices[i]
}

// Add attaches another device and returns it.
func (d *Driver) Add(spec DeviceSpec) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev := &Device{drv: d, spec: spec, attached: true}
	d.devices = append(d.devices, dev)
	return dev
}

// Init implements driver.Driver.
func (d *Driver) Init() (driver.Context, error) {
	d.mu.Lock()
	err := d.initErr
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	d.Counters.Inits.Add(1)
	return &simContext{drv: d}, nil
}

type simContext struct {
	drv    *Driver
	exited atomic.Bool
}

func (c *simContext) attached() []*Device {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	devs := make([]*Device, 0, len(c.drv.devices))
	for _, dev := range c.drv.devices {
		if dev.isAttached() {
			devs = append(devs, dev)
		}
	}
	return devs
}

func (c *simContext) FindDevice(vendorID, productID int, serial string) (driver.Device, error) {
	c.drv.Counters.Finds.Add(1)
	for _, dev := range c.attached() {
		desc := dev.spec.Descriptor
		if vendorID != 0 && int(desc.VendorID) != vendorID {
			continue
		}
		if productID != 0 && int(desc.ProductID) != productID {
			continue
		}
		if serial != "" && desc.SerialNumber != serial {
			continue
		}
		return &deviceRef{dev: dev}, nil
	}
	return nil, driver.ErrNoDevice
}

func (c *simContext) Devices() ([]driver.Device, error) {
	c.drv.mu.Lock()
	err := c.drv.listErr
	c.drv.mu.Unlock()
	if err != nil {
		return nil, err
	}
	attached := c.attached()
	devs := make([]driver.Device, 0, len(attached))
	for _, dev := range attached {
		devs = append(devs, &deviceRef{dev: dev})
	}
	return devs, nil
}

func (c *simContext) Exit() {
	if c.exited.CompareAndSwap(false, true) {
		c.drv.Counters.Exits.Add(1)
	}
}

// deviceRef is one reference to a simulated device, as handed out by a
// context.
type deviceRef struct {
	dev   *Device
	unref atomic.Bool
}

func (r *deviceRef) Descriptor() (driver.Descriptor, error) {
	if r.dev.spec.DescriptorErr != nil {
		return driver.Descriptor{}, r.dev.spec.DescriptorErr
	}
	if !r.dev.isAttached() {
		return driver.Descriptor{}, driver.ErrNoDevice
	}
	return r.dev.spec.Descriptor, nil
}

func (r *deviceRef) Open() (driver.Handle, error) {
	if r.dev.spec.OpenErr != nil {
		return nil, r.dev.spec.OpenErr
	}
	if !r.dev.isAttached() {
		return nil, driver.ErrNoDevice
	}
	r.dev.drv.Counters.Opens.Add(1)
	return &simHandle{dev: r.dev}, nil
}

// Modes implements driver.ModeLister.
func (r *deviceRef) Modes() ([]driver.Mode, error) {
	if !r.dev.isAttached() {
		return nil, driver.ErrNoDevice
	}
	if len(r.dev.spec.Modes) == 0 {
		return []driver.Mode{{Format: driver.FrameFormatYUYV, Width: 640, Height: 480, FPS: 30}}, nil
	}
	return append([]driver.Mode(nil), r.dev.spec.Modes...), nil
}

func (r *deviceRef) Unref() {
	if r.unref.CompareAndSwap(false, true) {
		r.dev.drv.Counters.Unrefs.Add(1)
	}
}
