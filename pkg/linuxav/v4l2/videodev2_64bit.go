//go:build linux && (amd64 || arm64)

package v4l2

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Compile-time struct size assertions.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Fmtdesc{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2FrmsizeDiscrete{})]byte{}
	_ [24]byte  = [unsafe.Sizeof(v4l2FrmsizeStepwise{})]byte{}
	_ [44]byte  = [unsafe.Sizeof(v4l2Frmsizeenum{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2Fract{})]byte{}
	_ [52]byte  = [unsafe.Sizeof(v4l2Frmivalenum{})]byte{}
	_ [48]byte  = [unsafe.Sizeof(v4l2PixFormat{})]byte{}
	_ [208]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [204]byte = [unsafe.Sizeof(v4l2Streamparm{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2Requestbuffers{})]byte{}
	_ [16]byte  = [unsafe.Sizeof(v4l2Timecode{})]byte{}
	_ [88]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
)

// IOCTL requests for 64-bit architectures.
var (
	vidiocQuerycap           = ior(0, unsafe.Sizeof(v4l2Capability{}))
	vidiocEnumFmt            = iowr(2, unsafe.Sizeof(v4l2Fmtdesc{}))
	vidiocGFmt               = iowr(4, unsafe.Sizeof(v4l2Format{}))
	vidiocSFmt               = iowr(5, unsafe.Sizeof(v4l2Format{}))
	vidiocReqbufs            = iowr(8, unsafe.Sizeof(v4l2Requestbuffers{}))
	vidiocQuerybuf           = iowr(9, unsafe.Sizeof(v4l2Buffer{}))
	vidiocQbuf               = iowr(15, unsafe.Sizeof(v4l2Buffer{}))
	vidiocDqbuf              = iowr(17, unsafe.Sizeof(v4l2Buffer{}))
	vidiocStreamon           = iow(18, unsafe.Sizeof(int32(0)))
	vidiocStreamoff          = iow(19, unsafe.Sizeof(int32(0)))
	vidiocGParm              = iowr(21, unsafe.Sizeof(v4l2Streamparm{}))
	vidiocSParm              = iowr(22, unsafe.Sizeof(v4l2Streamparm{}))
	vidiocEnumFramesizes     = iowr(74, unsafe.Sizeof(v4l2Frmsizeenum{}))
	vidiocEnumFrameintervals = iowr(75, unsafe.Sizeof(v4l2Frmivalenum{}))
)

// v4l2Capability has size 104 bytes.
type v4l2Capability struct {
	driver       [16]byte  // offset 0
	card         [32]byte  // offset 16
	busInfo      [32]byte  // offset 48
	version      uint32    // offset 80
	capabilities uint32    // offset 84
	deviceCaps   uint32    // offset 88
	reserved     [3]uint32 // offset 92
}

// v4l2Fmtdesc has size 64 bytes.
type v4l2Fmtdesc struct {
	index       uint32    // offset 0
	typ         uint32    // offset 4
	flags       uint32    // offset 8
	description [32]byte  // offset 12
	pixelformat uint32    // offset 44
	mbusCode    uint32    // offset 48
	reserved    [3]uint32 // offset 52
}

// v4l2FrmsizeDiscrete has size 8 bytes.
type v4l2FrmsizeDiscrete struct {
	width  uint32
	height uint32
}

// v4l2FrmsizeStepwise has size 24 bytes.
type v4l2FrmsizeStepwise struct {
	minWidth   uint32
	maxWidth   uint32
	stepWidth  uint32
	minHeight  uint32
	maxHeight  uint32
	stepHeight uint32
}

// v4l2Frmsizeenum has size 44 bytes.
type v4l2Frmsizeenum struct {
	index       uint32              // offset 0
	pixelFormat uint32              // offset 4
	typ         uint32              // offset 8
	discrete    v4l2FrmsizeDiscrete // offset 12 (union with stepwise)
	_           [16]byte            // padding for stepwise
	reserved    [2]uint32           // offset 36
}

// v4l2Fract has size 8 bytes.
type v4l2Fract struct {
	numerator   uint32
	denominator uint32
}

// v4l2Frmivalenum has size 52 bytes.
type v4l2Frmivalenum struct {
	index       uint32    // offset 0
	pixelFormat uint32    // offset 4
	width       uint32    // offset 8
	height      uint32    // offset 12
	typ         uint32    // offset 16
	discrete    v4l2Fract // offset 20 (union with stepwise)
	_           [16]byte  // padding for stepwise
	reserved    [2]uint32 // offset 44
}

// v4l2PixFormat has size 48 bytes.
type v4l2PixFormat struct {
	width        uint32 // offset 0
	height       uint32 // offset 4
	pixelformat  uint32 // offset 8
	field        uint32 // offset 12
	bytesperline uint32 // offset 16
	sizeimage    uint32 // offset 20
	colorspace   uint32 // offset 24
	priv         uint32 // offset 28
	flags        uint32 // offset 32
	ycbcrEnc     uint32 // offset 36
	quantization uint32 // offset 40
	xferFunc     uint32 // offset 44
}

// v4l2Format has size 208 bytes. The format union holds pointers in some
// members, so it starts 8-byte aligned.
type v4l2Format struct {
	typ uint32        // offset 0
	_   uint32        // padding
	pix v4l2PixFormat // offset 8 (union)
	_   [152]byte     // rest of the 200 byte union
}

// v4l2Captureparm has size 40 bytes.
type v4l2Captureparm struct {
	capability   uint32    // offset 0
	capturemode  uint32    // offset 4
	timeperframe v4l2Fract // offset 8
	extendedmode uint32    // offset 16
	readbuffers  uint32    // offset 20
	reserved     [4]uint32 // offset 24
}

// v4l2Streamparm has size 204 bytes.
type v4l2Streamparm struct {
	typ     uint32          // offset 0
	capture v4l2Captureparm // offset 4 (union)
	_       [160]byte       // rest of the 200 byte union
}

// v4l2Requestbuffers has size 20 bytes.
type v4l2Requestbuffers struct {
	count        uint32   // offset 0
	typ          uint32   // offset 4
	memory       uint32   // offset 8
	capabilities uint32   // offset 12
	flags        uint8    // offset 16
	reserved     [3]uint8 // offset 17
}

// v4l2Timecode has size 16 bytes.
type v4l2Timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

// v4l2Buffer has size 88 bytes.
type v4l2Buffer struct {
	index     uint32       // offset 0
	typ       uint32       // offset 4
	bytesused uint32       // offset 8
	flags     uint32       // offset 12
	field     uint32       // offset 16
	_         uint32       // padding
	timestamp unix.Timeval // offset 24
	timecode  v4l2Timecode // offset 40
	sequence  uint32       // offset 56
	memory    uint32       // offset 60
	offset    uint64       // offset 64 (union with userptr, planes, fd)
	length    uint32       // offset 72
	reserved2 uint32       // offset 76
	requestFD int32        // offset 80
	_         uint32       // padding to 88
}
