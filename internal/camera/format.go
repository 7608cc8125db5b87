package camera

import (
	"fmt"
	"strings"

	"github.com/smazurov/uvcnode/internal/driver"
)

// Format is the device-agnostic pixel format requested by callers.
type Format int

// Device-agnostic formats. FormatAny is an alias of FormatUnknown and lets
// the driver choose.
const (
	FormatUnknown Format = iota
	FormatUncompressed
	FormatCompressed
	FormatYUYV
	FormatUYVY
	FormatRGB
	FormatBGR
	FormatMJPEG
	FormatH264
	FormatGray8
	FormatGray16
	FormatBY8
	FormatBA81
	FormatSGRBG8
	FormatSGBRG8
	FormatSRGGB8
	FormatSBGGR8
	FormatNV12
	FormatP010
	FormatCount

	FormatAny = FormatUnknown
)

var nativeFormats = map[Format]driver.FrameFormat{
	FormatUnknown:      driver.FrameFormatUnknown,
	FormatUncompressed: driver.FrameFormatUncompressed,
	FormatCompressed:   driver.FrameFormatCompressed,
	FormatYUYV:         driver.FrameFormatYUYV,
	FormatUYVY:         driver.FrameFormatUYVY,
	FormatRGB:          driver.FrameFormatRGB,
	FormatBGR:          driver.FrameFormatBGR,
	FormatMJPEG:        driver.FrameFormatMJPEG,
	FormatH264:         driver.FrameFormatH264,
	FormatGray8:        driver.FrameFormatGray8,
	FormatGray16:       driver.FrameFormatGray16,
	FormatBY8:          driver.FrameFormatBY8,
	FormatBA81:         driver.FrameFormatBA81,
	FormatSGRBG8:       driver.FrameFormatSGRBG8,
	FormatSGBRG8:       driver.FrameFormatSGBRG8,
	FormatSRGGB8:       driver.FrameFormatSRGGB8,
	FormatSBGGR8:       driver.FrameFormatSBGGR8,
	FormatNV12:         driver.FrameFormatNV12,
	FormatP010:         driver.FrameFormatP010,
	FormatCount:        driver.FrameFormatCount,
}

var formatNames = map[Format]string{
	FormatAny:          "any",
	FormatUncompressed: "uncompressed",
	FormatCompressed:   "compressed",
	FormatYUYV:         "yuyv",
	FormatUYVY:         "uyvy",
	FormatRGB:          "rgb",
	FormatBGR:          "bgr",
	FormatMJPEG:        "mjpeg",
	FormatH264:         "h264",
	FormatGray8:        "gray8",
	FormatGray16:       "gray16",
	FormatBY8:          "by8",
	FormatBA81:         "ba81",
	FormatSGRBG8:       "sgrbg8",
	FormatSGBRG8:       "sgbrg8",
	FormatSRGGB8:       "srggb8",
	FormatSBGGR8:       "sbggr8",
	FormatNV12:         "nv12",
	FormatP010:         "p010",
}

// NativeFormat translates f to the driver's format code. Values outside the
// enumeration translate to driver.FrameFormatAny.
func NativeFormat(f Format) driver.FrameFormat {
	if native, ok := nativeFormats[f]; ok {
		return native
	}
	return driver.FrameFormatAny
}

var formatsByNative = func() map[driver.FrameFormat]Format {
	m := make(map[driver.FrameFormat]Format, len(nativeFormats))
	for f, native := range nativeFormats {
		if f < FormatCount {
			m[native] = f
		}
	}
	return m
}()

// FormatFromNative translates a driver format code back to the enumeration.
// Codes without a counterpart translate to FormatUnknown.
func FormatFromNative(native driver.FrameFormat) Format {
	if f, ok := formatsByNative[native]; ok {
		return f
	}
	return FormatUnknown
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat accepts the names returned by Format.String, case-insensitive.
// "unknown", "yuyv422" and "mjpg" are accepted as aliases.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", "unknown":
		return FormatAny, nil
	case "yuyv422":
		return FormatYUYV, nil
	case "mjpg":
		return FormatMJPEG, nil
	}
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}
	return FormatAny, fmt.Errorf("unknown frame format %q", name)
}

// Formats returns every named format in enumeration order.
func Formats() []Format {
	formats := make([]Format, 0, int(FormatCount))
	for f := FormatUnknown; f < FormatCount; f++ {
		formats = append(formats, f)
	}
	return formats
}
