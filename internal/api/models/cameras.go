package models

import "time"

// CameraRequestData creates or replaces a camera.
type CameraRequestData struct {
	ID        string     `json:"id" pattern:"^[a-zA-Z0-9_-]+$" minLength:"1" maxLength:"64" example:"front" doc:"Camera identifier (alphanumeric, dashes, underscores)"`
	VendorID  int        `json:"vendor_id,omitempty" minimum:"0" maximum:"65535" example:"1133" doc:"USB vendor id, 0 matches any"`
	ProductID int        `json:"product_id,omitempty" minimum:"0" maximum:"65535" example:"2085" doc:"USB product id, 0 matches any"`
	Serial    string     `json:"serial,omitempty" example:"ABC123" doc:"Serial number, empty matches any"`
	Format    FormatName `json:"format,omitempty" doc:"Stream format"`
	Width     int        `json:"width,omitempty" minimum:"0" example:"1280" doc:"Width in pixels"`
	Height    int        `json:"height,omitempty" minimum:"0" example:"720" doc:"Height in pixels"`
	FPS       int        `json:"fps,omitempty" minimum:"0" example:"30" doc:"Frames per second"`
	Autostart bool       `json:"autostart,omitempty" doc:"Start streaming as soon as the device opens"`
}

type CameraRequest struct {
	Body CameraRequestData
}

// CameraData is the state of one configured camera.
type CameraData struct {
	ID           string    `json:"id" example:"front" doc:"Camera identifier"`
	VendorID     int       `json:"vendor_id" example:"1133" doc:"Configured USB vendor id"`
	ProductID    int       `json:"product_id" example:"2085" doc:"Configured USB product id"`
	Serial       string    `json:"serial,omitempty" doc:"Device serial number"`
	Product      string    `json:"product,omitempty" example:"Webcam C270" doc:"Product string of the opened device"`
	Manufacturer string    `json:"manufacturer,omitempty" example:"Logitech" doc:"Manufacturer string of the opened device"`
	Format       string    `json:"format" example:"mjpeg" doc:"Configured format"`
	Width        int       `json:"width" example:"1280" doc:"Configured width"`
	Height       int       `json:"height" example:"720" doc:"Configured height"`
	FPS          int       `json:"fps" example:"30" doc:"Configured frame rate"`
	Autostart    bool      `json:"autostart" doc:"Whether the camera streams on open"`
	State        string    `json:"state" example:"streaming" doc:"Lifecycle state: closed, open, streaming"`
	Available    bool      `json:"available" doc:"Open and active within the liveness window"`
	Wanted       bool      `json:"wanted" doc:"Whether the watchdog keeps this camera streaming"`
	Error        string    `json:"error,omitempty" example:"No such device" doc:"Last recorded driver error"`
	LastActivity time.Time `json:"last_activity,omitzero" doc:"Last open or frame time"`
	Attempts     int       `json:"reopen_attempts" doc:"Consecutive watchdog reopen attempts"`

	FramesReceived uint64 `json:"frames_received" doc:"Frames delivered by the driver"`
	FramesServed   uint64 `json:"frames_served" doc:"Frames handed to clients"`
	StaleReads     uint64 `json:"stale_reads" doc:"Frame requests without a fresh frame"`
	Errors         uint64 `json:"errors" doc:"Driver errors recorded"`
}

type CameraResponse struct {
	Body CameraData
}

type CameraListData struct {
	Cameras []CameraData `json:"cameras" doc:"Configured cameras"`
	Count   int          `json:"count" example:"1" doc:"Number of cameras"`
}

type CameraListResponse struct {
	Body CameraListData
}

// CameraIDInput selects a camera by path.
type CameraIDInput struct {
	CameraID string `path:"camera_id" example:"front" doc:"Camera identifier"`
}

// StartRequest overrides stream parameters for one start.
type StartRequest struct {
	CameraIDInput
	Body *struct {
		Format FormatName `json:"format,omitempty" doc:"Stream format"`
		Width  int        `json:"width,omitempty" minimum:"0" example:"1280" doc:"Width in pixels"`
		Height int        `json:"height,omitempty" minimum:"0" example:"720" doc:"Height in pixels"`
		FPS    int        `json:"fps,omitempty" minimum:"0" example:"30" doc:"Frames per second"`
	} `required:"false"`
}

// FrameResponse carries the raw bytes of the latest frame. Status is 204
// when there is no fresh frame.
type FrameResponse struct {
	Status      int
	ContentType string `header:"Content-Type"`
	Format      string `header:"X-Frame-Format"`
	Width       string `header:"X-Frame-Width"`
	Height      string `header:"X-Frame-Height"`
	Sequence    string `header:"X-Frame-Sequence"`
	Body        []byte
}
