package simdriver

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/smazurov/uvcnode/internal/driver"
)

// frameSize returns the byte size of one uncompressed frame. Compressed
// formats get a worst-case buffer.
func frameSize(format driver.FrameFormat, width, height int) int {
	pixels := width * height
	switch format {
	case driver.FrameFormatRGB, driver.FrameFormatBGR:
		return pixels * 3
	case driver.FrameFormatYUYV, driver.FrameFormatUYVY, driver.FrameFormatGray16:
		return pixels * 2
	case driver.FrameFormatNV12:
		return pixels * 3 / 2
	case driver.FrameFormatP010:
		return pixels * 3
	case driver.FrameFormatGray8, driver.FrameFormatBY8, driver.FrameFormatBA81,
		driver.FrameFormatSGRBG8, driver.FrameFormatSGBRG8,
		driver.FrameFormatSRGGB8, driver.FrameFormatSBGGR8:
		return pixels
	}
	return pixels * 2
}

// fillPattern draws vertical bars that scroll by one step per frame. MJPEG
// frames are encoded into a fresh buffer; the returned slice is what the
// frame carries.
func fillPattern(buf []byte, format driver.FrameFormat, width, height int, seq uint32) []byte {
	if format == driver.FrameFormatMJPEG {
		return encodeJPEG(width, height, seq)
	}
	if width <= 0 || len(buf) == 0 {
		return buf
	}
	stride := len(buf) / max(height, 1)
	shift := int(seq) * 4
	for y := 0; y < height; y++ {
		row := buf[y*stride : (y+1)*stride]
		for x := range row {
			row[x] = byte(((x + shift) / 16 % 8) * 32)
		}
	}
	return buf
}

func encodeJPEG(width, height int, seq uint32) []byte {
	img := image.NewGray(image.Rect(0, 0, width, height))
	shift := int(seq) * 4
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: byte(((x + shift) / 16 % 8) * 32)})
		}
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil
	}
	return out.Bytes()
}
