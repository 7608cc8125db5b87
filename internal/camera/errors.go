package camera

import (
	"errors"
	"fmt"

	"github.com/smazurov/uvcnode/internal/driver"
)

// ErrNotAvailable is returned by StartRecording when the camera is closed or
// its liveness window has expired.
var ErrNotAvailable = errors.New("camera not available")

var errorTexts = map[driver.ErrorCode]string{
	driver.ErrIO:             "Input/output error",
	driver.ErrInvalidParam:   "Invalid Parameter",
	driver.ErrAccess:         "Access denied",
	driver.ErrNoDevice:       "No such device",
	driver.ErrNotFound:       "Entity not found",
	driver.ErrBusy:           "Resource busy",
	driver.ErrTimeout:        "Operation timed out",
	driver.ErrOverflow:       "Overflow",
	driver.ErrPipe:           "Pipe error",
	driver.ErrInterrupted:    "System call interrupted",
	driver.ErrNoMem:          "Insufficient memory",
	driver.ErrNotSupported:   "Operation not supported",
	driver.ErrInvalidDevice:  "Device not supported",
	driver.ErrInvalidMode:    "Mode not supported",
	driver.ErrCallbackExists: "Callback already registered",
	driver.ErrOther:          "something went wrong",
}

// ErrorText returns the human-readable message for a driver error code.
// Success yields an empty string; unlisted codes use the ErrOther message.
func ErrorText(code driver.ErrorCode) string {
	if code == driver.Success {
		return ""
	}
	if text, ok := errorTexts[code]; ok {
		return text
	}
	return errorTexts[driver.ErrOther]
}

// Error is a translated driver failure.
type Error struct {
	CameraID string
	Op       string
	Code     driver.ErrorCode
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("camera %s: %s: %s", e.CameraID, e.Op, e.Message)
}

// Unwrap exposes the driver code to errors.Is.
func (e *Error) Unwrap() error {
	return e.Code
}

// ErrorSink receives every driver error recorded on a camera.
type ErrorSink interface {
	ReportError(err *Error)
}

// ErrorSinkFunc adapts a function to ErrorSink.
type ErrorSinkFunc func(err *Error)

// ReportError implements ErrorSink.
func (f ErrorSinkFunc) ReportError(err *Error) { f(err) }
