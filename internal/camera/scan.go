package camera

import (
	"fmt"

	"github.com/smazurov/uvcnode/internal/driver"
)

// Scan opens a Camera for every attached device. Devices whose descriptor
// cannot be read are skipped. If the driver cannot be initialized or the
// device list cannot be fetched, Scan returns nil.
func Scan(drv driver.Driver, opts ...Option) []*Camera {
	descs, err := ListDevices(drv)
	if err != nil {
		return nil
	}

	cams := make([]*Camera, 0, len(descs))
	for _, d := range descs {
		cams = append(cams, New(drv, int(d.VendorID), int(d.ProductID), d.SerialNumber, opts...))
	}
	return cams
}

// ListDevices returns the descriptor of every attached device without
// opening any of them. Devices whose descriptor cannot be read are skipped.
func ListDevices(drv driver.Driver) ([]driver.Descriptor, error) {
	if drv == nil {
		return nil, fmt.Errorf("list devices: %w", driver.ErrInvalidParam)
	}

	ctx, err := drv.Init()
	if err != nil {
		return nil, fmt.Errorf("init driver: %w", err)
	}
	defer ctx.Exit()

	devs, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("get device list: %w", err)
	}

	descs := make([]driver.Descriptor, 0, len(devs))
	for _, dev := range devs {
		d, descErr := dev.Descriptor()
		if descErr == nil {
			descs = append(descs, d)
		}
	}
	for _, dev := range devs {
		dev.Unref()
	}
	return descs, nil
}
