package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/uvcnode/internal/api/models"
	"github.com/smazurov/uvcnode/internal/cameras"
)

func toDeviceInfo(d cameras.Device) models.DeviceInfo {
	info := models.DeviceInfo{
		VendorID:     fmt.Sprintf("%04x", d.VendorID),
		ProductID:    fmt.Sprintf("%04x", d.ProductID),
		Serial:       d.SerialNumber,
		Manufacturer: d.Manufacturer,
		Product:      d.Product,
		Bus:          d.BusNumber,
		Address:      d.Address,
	}
	for _, m := range d.Modes {
		info.Modes = append(info.Modes, models.ModeInfo{
			Format: m.Format.String(),
			Width:  m.Width,
			Height: m.Height,
			FPS:    m.FPS,
		})
	}
	return info
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List attached USB video devices and the modes they offer, without opening them",
		Tags:        []string{"devices"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.DeviceResponse, error) {
		devs, err := s.cameras.Devices()
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list devices", err)
		}
		resp := &models.DeviceResponse{Body: models.DeviceData{Devices: make([]models.DeviceInfo, 0, len(devs))}}
		for _, d := range devs {
			resp.Body.Devices = append(resp.Body.Devices, toDeviceInfo(d))
		}
		resp.Body.Count = len(resp.Body.Devices)
		return resp, nil
	})
}
