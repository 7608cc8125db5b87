//go:build linux && (amd64 || arm64)

package v4l2uvc

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/smazurov/uvcnode/internal/driver"
	"github.com/smazurov/uvcnode/pkg/linuxav/v4l2"
)

// fourccs maps concrete frame formats to V4L2 pixel formats. V4L2 names
// BGGR Bayer "BA81", so BA81 and SBGGR8 share one FourCC.
var fourccs = map[driver.FrameFormat]uint32{
	driver.FrameFormatYUYV:   v4l2.PixFmtYUYV,
	driver.FrameFormatUYVY:   v4l2.PixFmtUYVY,
	driver.FrameFormatRGB:    v4l2.PixFmtRGB24,
	driver.FrameFormatBGR:    v4l2.PixFmtBGR24,
	driver.FrameFormatMJPEG:  v4l2.PixFmtMJPEG,
	driver.FrameFormatH264:   v4l2.PixFmtH264,
	driver.FrameFormatGray8:  v4l2.PixFmtGrey,
	driver.FrameFormatGray16: v4l2.PixFmtY16,
	driver.FrameFormatBY8:    v4l2.PixFmtBY8,
	driver.FrameFormatBA81:   v4l2.PixFmtBA81,
	driver.FrameFormatSGRBG8: v4l2.PixFmtGRBG8,
	driver.FrameFormatSGBRG8: v4l2.PixFmtGBRG8,
	driver.FrameFormatSRGGB8: v4l2.PixFmtRGGB8,
	driver.FrameFormatSBGGR8: v4l2.PixFmtBA81,
	driver.FrameFormatNV12:   v4l2.PixFmtNV12,
	driver.FrameFormatP010:   v4l2.PixFmtP010,
}

// pixelFormat returns the FourCC for a concrete format.
func pixelFormat(f driver.FrameFormat) (uint32, bool) {
	pix, ok := fourccs[f]
	return pix, ok
}

// frameFormat maps a FourCC back. BA81 is reported as SBGGR8.
func frameFormat(pix uint32) driver.FrameFormat {
	if pix == v4l2.PixFmtBA81 {
		return driver.FrameFormatSBGGR8
	}
	for f, p := range fourccs {
		if p == pix {
			return f
		}
	}
	return driver.FrameFormatUnknown
}

// accepts reports whether a device format satisfies the requested one.
func accepts(requested driver.FrameFormat, offered v4l2.FormatInfo) bool {
	native := frameFormat(offered.PixelFormat)
	if native == driver.FrameFormatUnknown {
		return false
	}
	switch requested {
	case driver.FrameFormatAny:
		return true
	case driver.FrameFormatUncompressed:
		return !offered.Compressed && !native.Compressed()
	case driver.FrameFormatCompressed:
		return offered.Compressed || native.Compressed()
	}
	pix, ok := pixelFormat(requested)
	return ok && pix == offered.PixelFormat
}

// codeOf classifies an errno from the V4L2 layer.
func codeOf(err error) driver.ErrorCode {
	var code driver.ErrorCode
	switch {
	case err == nil:
		return driver.Success
	case errors.As(err, &code):
		return code
	case errors.Is(err, v4l2.ErrTimeout), errors.Is(err, unix.ETIMEDOUT):
		return driver.ErrTimeout
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return driver.ErrAccess
	case errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO), errors.Is(err, unix.ENOENT):
		return driver.ErrNoDevice
	case errors.Is(err, unix.EBUSY):
		return driver.ErrBusy
	case errors.Is(err, unix.EINVAL):
		return driver.ErrInvalidParam
	case errors.Is(err, unix.ENOMEM):
		return driver.ErrNoMem
	case errors.Is(err, unix.ENOTSUP), errors.Is(err, unix.ENOTTY):
		return driver.ErrNotSupported
	case errors.Is(err, unix.EINTR):
		return driver.ErrInterrupted
	case errors.Is(err, unix.EOVERFLOW):
		return driver.ErrOverflow
	case errors.Is(err, unix.EPIPE):
		return driver.ErrPipe
	case errors.Is(err, unix.EIO):
		return driver.ErrIO
	}
	return driver.ErrOther
}

// wrap attaches the driver code to err so callers can classify it with
// driver.CodeOf while keeping the system error text.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w (%v)", op, codeOf(err), err)
}
