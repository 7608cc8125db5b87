package driver

import (
	"errors"
	"fmt"
)

// ErrorCode is a driver status code. Values follow the libuvc numbering.
type ErrorCode int

// Driver status codes.
const (
	Success           ErrorCode = 0
	ErrIO             ErrorCode = -1
	ErrInvalidParam   ErrorCode = -2
	ErrAccess         ErrorCode = -3
	ErrNoDevice       ErrorCode = -4
	ErrNotFound       ErrorCode = -5
	ErrBusy           ErrorCode = -6
	ErrTimeout        ErrorCode = -7
	ErrOverflow       ErrorCode = -8
	ErrPipe           ErrorCode = -9
	ErrInterrupted    ErrorCode = -10
	ErrNoMem          ErrorCode = -11
	ErrNotSupported   ErrorCode = -12
	ErrInvalidDevice  ErrorCode = -50
	ErrInvalidMode    ErrorCode = -51
	ErrCallbackExists ErrorCode = -52
	ErrOther          ErrorCode = -99
)

var codeNames = map[ErrorCode]string{
	Success:           "UVC_SUCCESS",
	ErrIO:             "UVC_ERROR_IO",
	ErrInvalidParam:   "UVC_ERROR_INVALID_PARAM",
	ErrAccess:         "UVC_ERROR_ACCESS",
	ErrNoDevice:       "UVC_ERROR_NO_DEVICE",
	ErrNotFound:       "UVC_ERROR_NOT_FOUND",
	ErrBusy:           "UVC_ERROR_BUSY",
	ErrTimeout:        "UVC_ERROR_TIMEOUT",
	ErrOverflow:       "UVC_ERROR_OVERFLOW",
	ErrPipe:           "UVC_ERROR_PIPE",
	ErrInterrupted:    "UVC_ERROR_INTERRUPTED",
	ErrNoMem:          "UVC_ERROR_NO_MEM",
	ErrNotSupported:   "UVC_ERROR_NOT_SUPPORTED",
	ErrInvalidDevice:  "UVC_ERROR_INVALID_DEVICE",
	ErrInvalidMode:    "UVC_ERROR_INVALID_MODE",
	ErrCallbackExists: "UVC_ERROR_CALLBACK_EXISTS",
	ErrOther:          "UVC_ERROR_OTHER",
}

// Error implements error.
func (c ErrorCode) Error() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UVC_ERROR(%d)", int(c))
}

// Codes returns every defined error code except Success.
func Codes() []ErrorCode {
	return []ErrorCode{
		ErrIO, ErrInvalidParam, ErrAccess, ErrNoDevice, ErrNotFound, ErrBusy,
		ErrTimeout, ErrOverflow, ErrPipe, ErrInterrupted, ErrNoMem,
		ErrNotSupported, ErrInvalidDevice, ErrInvalidMode, ErrCallbackExists,
		ErrOther,
	}
}

// CodeOf classifies err. A nil error is Success and anything that does not
// wrap an ErrorCode is ErrOther.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var code ErrorCode
	if errors.As(err, &code) {
		return code
	}
	return ErrOther
}
