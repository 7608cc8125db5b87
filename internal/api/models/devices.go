package models

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/uvcnode/internal/camera"
)

// FormatName is a requested stream format, such as "mjpeg" or "any".
type FormatName string

// Schema lists the accepted names as an enum.
func (FormatName) Schema(_ huma.Registry) *huma.Schema {
	formats := camera.Formats()
	enum := make([]any, 0, len(formats))
	for _, f := range formats {
		enum = append(enum, f.String())
	}
	return &huma.Schema{
		Type:        huma.TypeString,
		Enum:        enum,
		Description: "Frame format name",
	}
}

// ModeInfo is one format, size and rate a device offers.
type ModeInfo struct {
	Format string `json:"format" example:"mjpeg" doc:"Frame format"`
	Width  int    `json:"width" example:"1280" doc:"Width in pixels"`
	Height int    `json:"height" example:"720" doc:"Height in pixels"`
	FPS    int    `json:"fps" example:"30" doc:"Frames per second"`
}

// DeviceInfo is an attached USB video device.
type DeviceInfo struct {
	VendorID     string     `json:"vendor_id" example:"046d" doc:"USB vendor id (hex)"`
	ProductID    string     `json:"product_id" example:"0825" doc:"USB product id (hex)"`
	Serial       string     `json:"serial,omitempty" example:"ABC123" doc:"Serial number"`
	Manufacturer string     `json:"manufacturer,omitempty" example:"Logitech" doc:"Manufacturer string"`
	Product      string     `json:"product,omitempty" example:"Webcam C270" doc:"Product string"`
	Bus          int        `json:"bus" example:"1" doc:"USB bus number"`
	Address      int        `json:"address" example:"4" doc:"USB device address"`
	Modes        []ModeInfo `json:"modes,omitempty" doc:"Supported stream modes, when the backend can list them"`
}

type DeviceData struct {
	Devices []DeviceInfo `json:"devices" doc:"Attached devices"`
	Count   int          `json:"count" example:"1" doc:"Number of devices found"`
}

type DeviceResponse struct {
	Body DeviceData
}
