package driver

import (
	"fmt"
	"strings"
)

// FrameFormat is the driver's native frame format code (libuvc numbering).
type FrameFormat int

// Native frame formats.
const (
	FrameFormatUnknown      FrameFormat = 0
	FrameFormatAny          FrameFormat = 0
	FrameFormatUncompressed FrameFormat = 1
	FrameFormatCompressed   FrameFormat = 2
	FrameFormatYUYV         FrameFormat = 3
	FrameFormatUYVY         FrameFormat = 4
	FrameFormatRGB          FrameFormat = 5
	FrameFormatBGR          FrameFormat = 6
	FrameFormatMJPEG        FrameFormat = 7
	FrameFormatH264         FrameFormat = 8
	FrameFormatGray8        FrameFormat = 9
	FrameFormatGray16       FrameFormat = 10
	FrameFormatBY8          FrameFormat = 11
	FrameFormatBA81         FrameFormat = 12
	FrameFormatSGRBG8       FrameFormat = 13
	FrameFormatSGBRG8       FrameFormat = 14
	FrameFormatSRGGB8       FrameFormat = 15
	FrameFormatSBGGR8       FrameFormat = 16
	FrameFormatNV12         FrameFormat = 17
	FrameFormatP010         FrameFormat = 18
	FrameFormatCount        FrameFormat = 19
)

var frameFormatNames = [...]string{
	"any", "uncompressed", "compressed", "yuyv", "uyvy", "rgb", "bgr",
	"mjpeg", "h264", "gray8", "gray16", "by8", "ba81", "sgrbg8", "sgbrg8",
	"srggb8", "sbggr8", "nv12", "p010",
}

func (f FrameFormat) String() string {
	if f >= 0 && int(f) < len(frameFormatNames) {
		return frameFormatNames[f]
	}
	return "unknown"
}

// Compressed reports whether frames of this format are a compressed bitstream.
func (f FrameFormat) Compressed() bool {
	return f == FrameFormatMJPEG || f == FrameFormatH264 || f == FrameFormatCompressed
}

// MarshalText encodes the format by name.
func (f FrameFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText accepts the names produced by String.
func (f *FrameFormat) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range frameFormatNames {
		if n == name {
			*f = FrameFormat(i)
			return nil
		}
	}
	return fmt.Errorf("unknown frame format %q", text)
}
