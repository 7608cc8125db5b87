package cameras

import (
	"time"

	"github.com/smazurov/uvcnode/internal/config"
	"github.com/smazurov/uvcnode/internal/driver"
	"github.com/smazurov/uvcnode/internal/metrics/collectors"
)

// Status is a snapshot of one configured camera.
type Status struct {
	ID           string            `json:"id"`
	Spec         config.CameraSpec `json:"spec"`
	State        string            `json:"state"`
	Available    bool              `json:"available"`
	Wanted       bool              `json:"wanted"`
	Error        string            `json:"error,omitempty"`
	LastActivity time.Time         `json:"last_activity,omitzero"`
	HandleID     string            `json:"handle_id"`
	Product      string            `json:"product,omitempty"`
	Manufacturer string            `json:"manufacturer,omitempty"`
	Serial       string            `json:"serial,omitempty"`
	Attempts     int               `json:"reopen_attempts"`
}

func (e *entry) statusLocked() Status {
	st := Status{
		ID:           e.id,
		Spec:         e.spec,
		State:        e.cam.State().String(),
		Available:    e.cam.IsAvailable(),
		Wanted:       e.streaming,
		Error:        e.cam.Err(),
		LastActivity: e.cam.LastActivity(),
		HandleID:     e.cam.ID(),
		Attempts:     e.attempts,
	}
	if d, err := e.cam.Descriptor(); err == nil {
		st.Product = d.Product
		st.Manufacturer = d.Manufacturer
		st.Serial = d.SerialNumber
	}
	return st
}

// Statuses implements collectors.StatusSource.
func (s *Service) Statuses() []collectors.CameraStatus {
	out := make([]collectors.CameraStatus, 0)
	for _, e := range s.snapshot() {
		e.mu.Lock()
		out = append(out, collectors.CameraStatus{
			ID:           e.id,
			Available:    e.cam.IsAvailable(),
			State:        uint8(e.cam.State()),
			LastActivity: e.cam.LastActivity(),
		})
		e.mu.Unlock()
	}
	return out
}

// Device is an attached device with the modes it offers.
type Device struct {
	driver.Descriptor
	Modes []driver.Mode `json:"modes,omitempty"`
}

// Devices lists attached devices without opening them.
func (s *Service) Devices() ([]Device, error) {
	return ListDevices(s.drv)
}

// ListDevices enumerates the devices of drv with their modes when the
// backend can list them.
func ListDevices(drv driver.Driver) ([]Device, error) {
	if drv == nil {
		return nil, driver.ErrInvalidParam
	}
	ctx, err := drv.Init()
	if err != nil {
		return nil, err
	}
	defer ctx.Exit()

	devs, err := ctx.Devices()
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, d := range devs {
			d.Unref()
		}
	}()

	out := make([]Device, 0, len(devs))
	for _, d := range devs {
		desc, err := d.Descriptor()
		if err != nil {
			continue
		}
		dev := Device{Descriptor: desc}
		if ml, ok := d.(driver.ModeLister); ok {
			if modes, err := ml.Modes(); err == nil {
				dev.Modes = modes
			}
		}
		out = append(out, dev)
	}
	return out, nil
}
