package events

// Event type constants for kelindar/event.
const (
	TypeCameraError uint32 = iota + 1
	TypeCameraStateChanged
	TypeCameraStalled
	TypeCameraConfigured
	TypeDeviceHotplug
	TypeCameraMetrics
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CameraErrorEvent carries a driver error recorded on a camera.
type CameraErrorEvent struct {
	CameraID  string `json:"camera_id" example:"front" doc:"Configured camera identifier"`
	Op        string `json:"op" example:"start_streaming" doc:"Operation that failed"`
	Code      string `json:"code" example:"UVC_ERROR_BUSY" doc:"Driver error code"`
	Message   string `json:"message" example:"Resource busy" doc:"Translated error text"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Error timestamp"`
}

// Type returns the event type identifier for CameraErrorEvent.
func (e CameraErrorEvent) Type() uint32 { return TypeCameraError }

// CameraStateChangedEvent is published when a camera opens, starts or stops
// streaming, or closes.
type CameraStateChangedEvent struct {
	CameraID  string `json:"camera_id" example:"front" doc:"Configured camera identifier"`
	State     string `json:"state" example:"streaming" doc:"Lifecycle state: closed, open, streaming"`
	Available bool   `json:"available" doc:"Whether the camera is within its liveness window"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraStateChangedEvent.
func (e CameraStateChangedEvent) Type() uint32 { return TypeCameraStateChanged }

// CameraStalledEvent is published by the watchdog when a camera that
// should be streaming has gone quiet.
type CameraStalledEvent struct {
	CameraID     string `json:"camera_id" example:"front" doc:"Configured camera identifier"`
	LastActivity string `json:"last_activity" example:"2026-01-27T10:29:55Z" doc:"Last open or frame time"`
	Attempt      int    `json:"attempt" example:"1" doc:"Reopen attempt number"`
	Timestamp    string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraStalledEvent.
func (e CameraStalledEvent) Type() uint32 { return TypeCameraStalled }

// CameraConfiguredEvent reports a camera added, changed or removed.
type CameraConfiguredEvent struct {
	CameraID  string `json:"camera_id" example:"front" doc:"Configured camera identifier"`
	Action    string `json:"action" example:"added" doc:"Action type: added, updated, removed"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraConfiguredEvent.
func (e CameraConfiguredEvent) Type() uint32 { return TypeCameraConfigured }

// DeviceHotplugEvent reports a USB device arriving or leaving.
type DeviceHotplugEvent struct {
	Action    string `json:"action" example:"add" doc:"Kernel action: add, remove"`
	VendorID  int    `json:"vendor_id" example:"1133" doc:"USB vendor id"`
	ProductID int    `json:"product_id" example:"2085" doc:"USB product id"`
	DevPath   string `json:"devpath" example:"/devices/pci0000:00/0000:00:14.0/usb1/1-1" doc:"Kernel device path"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceHotplugEvent.
func (e DeviceHotplugEvent) Type() uint32 { return TypeDeviceHotplug }

// CameraMetricsEvent is a periodic per-camera counter snapshot.
type CameraMetricsEvent struct {
	CameraID       string `json:"camera_id" example:"front" doc:"Configured camera identifier"`
	FramesReceived string `json:"frames_received" example:"9000" doc:"Frames delivered by the driver"`
	FramesServed   string `json:"frames_served" example:"300" doc:"Frames handed to consumers"`
	StaleReads     string `json:"stale_reads" example:"12" doc:"Frame requests that found no fresh frame"`
	Errors         string `json:"errors" example:"0" doc:"Driver errors recorded"`
	LastFrameBytes string `json:"last_frame_bytes" example:"614400" doc:"Size of the last delivered frame"`
}

// Type returns the event type identifier for CameraMetricsEvent.
func (e CameraMetricsEvent) Type() uint32 { return TypeCameraMetrics }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2026-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	CameraID   string         `json:"camera_id,omitempty" example:"front" doc:"Camera the entry is about, if any"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
