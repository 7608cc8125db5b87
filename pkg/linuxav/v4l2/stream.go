//go:build linux && (amd64 || arm64)

package v4l2

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrTimeout is returned by ReadFrame when no frame arrived in time.
var ErrTimeout = errors.New("v4l2: timed out waiting for frame")

// ErrNotStreaming is returned by frame operations on a stopped stream.
var ErrNotStreaming = errors.New("v4l2: stream not started")

// PixFormat is a negotiated capture format.
type PixFormat struct {
	PixelFormat  uint32
	Width        uint32
	Height       uint32
	BytesPerLine uint32
	SizeImage    uint32
}

// Buffer is one dequeued capture buffer. Data aliases the mapping and is
// valid until the buffer is requeued or the stream is stopped.
type Buffer struct {
	Index     uint32
	Data      []byte
	Sequence  uint32
	Timestamp time.Time
}

// Stream is an open capture device using memory-mapped buffers. A Stream
// is not safe for concurrent use.
type Stream struct {
	fd        int
	path      string
	buffers   [][]byte
	streaming bool
}

// OpenStream opens devicePath for capture.
func OpenStream(devicePath string) (*Stream, error) {
	fd, err := open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}

	caps := v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&caps)); err != nil {
		closeFD(fd)
		return nil, fmt.Errorf("failed to query capabilities: %w", err)
	}
	effective := caps.capabilities
	if effective&v4l2CapDeviceCaps != 0 {
		effective = caps.deviceCaps
	}
	if effective&v4l2CapVideoCapture == 0 || effective&v4l2CapStreaming == 0 {
		closeFD(fd)
		return nil, fmt.Errorf("%s does not support streaming capture: %w", devicePath, unix.ENOTSUP)
	}

	return &Stream{fd: fd, path: devicePath}, nil
}

// Path returns the device node.
func (s *Stream) Path() string {
	return s.path
}

// Formats enumerates the pixel formats of the open device.
func (s *Stream) Formats() ([]FormatInfo, error) {
	return enumFormats(s.fd)
}

// Resolutions enumerates frame sizes for pixelFormat.
func (s *Stream) Resolutions(pixelFormat uint32) ([]Resolution, error) {
	return enumResolutions(s.fd, pixelFormat)
}

// Framerates enumerates frame intervals for a format and size.
func (s *Stream) Framerates(pixelFormat, width, height uint32) ([]Framerate, error) {
	return enumFramerates(s.fd, pixelFormat, width, height)
}

// SetFormat requests a capture format. The driver may adjust the size; the
// returned format is what was actually set.
func (s *Stream) SetFormat(pixelFormat, width, height uint32) (PixFormat, error) {
	f := v4l2Format{typ: v4l2BufTypeVideoCapture}
	f.pix.width = width
	f.pix.height = height
	f.pix.pixelformat = pixelFormat
	f.pix.field = v4l2FieldAny

	if err := ioctl(s.fd, vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, fmt.Errorf("VIDIOC_S_FMT: %w", err)
	}

	return PixFormat{
		PixelFormat:  f.pix.pixelformat,
		Width:        f.pix.width,
		Height:       f.pix.height,
		BytesPerLine: f.pix.bytesperline,
		SizeImage:    f.pix.sizeimage,
	}, nil
}

// GetFormat returns the current capture format.
func (s *Stream) GetFormat() (PixFormat, error) {
	f := v4l2Format{typ: v4l2BufTypeVideoCapture}
	if err := ioctl(s.fd, vidiocGFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, fmt.Errorf("VIDIOC_G_FMT: %w", err)
	}
	return PixFormat{
		PixelFormat:  f.pix.pixelformat,
		Width:        f.pix.width,
		Height:       f.pix.height,
		BytesPerLine: f.pix.bytesperline,
		SizeImage:    f.pix.sizeimage,
	}, nil
}

// SetFrameRate requests fps frames per second and returns the rate the
// driver settled on. Devices without frame interval control return 0 and
// no error.
func (s *Stream) SetFrameRate(fps uint32) (Framerate, error) {
	parm := v4l2Streamparm{typ: v4l2BufTypeVideoCapture}
	if err := ioctl(s.fd, vidiocGParm, unsafe.Pointer(&parm)); err != nil {
		if errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EINVAL) {
			return Framerate{}, nil
		}
		return Framerate{}, fmt.Errorf("VIDIOC_G_PARM: %w", err)
	}
	if parm.capture.capability&v4l2CapTimeperframe == 0 {
		return Framerate{}, nil
	}

	parm.capture.timeperframe = v4l2Fract{numerator: 1, denominator: fps}
	if err := ioctl(s.fd, vidiocSParm, unsafe.Pointer(&parm)); err != nil {
		return Framerate{}, fmt.Errorf("VIDIOC_S_PARM: %w", err)
	}

	return Framerate{
		Numerator:   parm.capture.timeperframe.numerator,
		Denominator: parm.capture.timeperframe.denominator,
	}, nil
}

// Start requests count mmap buffers, queues them and turns the stream on.
func (s *Stream) Start(count uint32) error {
	if s.streaming {
		return nil
	}

	req := v4l2Requestbuffers{
		count:  count,
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMmap,
	}
	if err := ioctl(s.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("VIDIOC_REQBUFS: %w", err)
	}
	if req.count == 0 {
		return fmt.Errorf("VIDIOC_REQBUFS: driver granted no buffers: %w", unix.ENOMEM)
	}

	for i := uint32(0); i < req.count; i++ {
		buf := v4l2Buffer{
			index:  i,
			typ:    v4l2BufTypeVideoCapture,
			memory: v4l2MemoryMmap,
		}
		if err := ioctl(s.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
			s.release()
			return fmt.Errorf("VIDIOC_QUERYBUF %d: %w", i, err)
		}

		data, err := unix.Mmap(s.fd, int64(buf.offset), int(buf.length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			s.release()
			return fmt.Errorf("mmap buffer %d: %w", i, err)
		}
		s.buffers = append(s.buffers, data)

		if err := s.Requeue(i); err != nil {
			s.release()
			return err
		}
	}

	bufType := uint32(v4l2BufTypeVideoCapture)
	if err := ioctl(s.fd, vidiocStreamon, unsafe.Pointer(&bufType)); err != nil {
		s.release()
		return fmt.Errorf("VIDIOC_STREAMON: %w", err)
	}

	s.streaming = true
	return nil
}

// Wait blocks until a frame is ready or timeout passes. It reports whether
// a frame is ready.
func (s *Stream) Wait(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, int(timeout.Milliseconds()))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, err
		}
		if n > 0 && fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return false, unix.ENODEV
		}
		return n > 0, nil
	}
}

// Dequeue takes the next filled buffer. It returns unix.EAGAIN when none
// is ready.
func (s *Stream) Dequeue() (Buffer, error) {
	if !s.streaming {
		return Buffer{}, ErrNotStreaming
	}

	buf := v4l2Buffer{
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMmap,
	}
	if err := ioctl(s.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		return Buffer{}, err
	}
	if int(buf.index) >= len(s.buffers) {
		return Buffer{}, fmt.Errorf("VIDIOC_DQBUF: buffer index %d out of range", buf.index)
	}

	data := s.buffers[buf.index]
	used := min(int(buf.bytesused), len(data))
	return Buffer{
		Index:     buf.index,
		Data:      data[:used],
		Sequence:  buf.sequence,
		Timestamp: time.Now(),
	}, nil
}

// ReadFrame waits up to timeout and dequeues one buffer.
func (s *Stream) ReadFrame(timeout time.Duration) (Buffer, error) {
	ready, err := s.Wait(timeout)
	if err != nil {
		return Buffer{}, err
	}
	if !ready {
		return Buffer{}, ErrTimeout
	}
	return s.Dequeue()
}

// Requeue hands buffer index back to the driver.
func (s *Stream) Requeue(index uint32) error {
	buf := v4l2Buffer{
		index:  index,
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMmap,
	}
	if err := ioctl(s.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
		return fmt.Errorf("VIDIOC_QBUF %d: %w", index, err)
	}
	return nil
}

// Stop turns the stream off and unmaps all buffers.
func (s *Stream) Stop() error {
	if !s.streaming {
		return nil
	}
	s.streaming = false

	bufType := uint32(v4l2BufTypeVideoCapture)
	err := ioctl(s.fd, vidiocStreamoff, unsafe.Pointer(&bufType))
	s.release()
	if err != nil {
		return fmt.Errorf("VIDIOC_STREAMOFF: %w", err)
	}
	return nil
}

// release unmaps buffers and frees them in the driver.
func (s *Stream) release() {
	for _, b := range s.buffers {
		_ = unix.Munmap(b)
	}
	s.buffers = nil

	req := v4l2Requestbuffers{
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMmap,
	}
	_ = ioctl(s.fd, vidiocReqbufs, unsafe.Pointer(&req))
}

// Close stops streaming and closes the device.
func (s *Stream) Close() error {
	stopErr := s.Stop()
	if err := closeFD(s.fd); err != nil {
		return err
	}
	return stopErr
}
