// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for device enumeration, format queries and memory-mapped capture.
//
// This package does not use cgo. The ioctl structures are laid out for
// 64-bit Linux (amd64, arm64); on other platforms the package is empty.
//
// # Device Enumeration
//
// Use FindDevices to discover all V4L2 video capture devices:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s (%s)\n", dev.DevicePath, dev.DeviceName, dev.Driver)
//	}
//
// # Format Queries
//
// Query supported formats, resolutions, and framerates:
//
//	formats, _ := v4l2.GetFormats("/dev/video0")
//	for _, f := range formats {
//	    resolutions, _ := v4l2.GetResolutions("/dev/video0", f.PixelFormat)
//	    for _, res := range resolutions {
//	        framerates, _ := v4l2.GetFramerates("/dev/video0", f.PixelFormat, res.Width, res.Height)
//	    }
//	}
//
// # Streaming
//
// OpenStream negotiates a format and maps capture buffers:
//
//	s, err := v4l2.OpenStream("/dev/video0")
//	defer s.Close()
//	s.SetFormat(v4l2.PixFmtMJPEG, 1280, 720)
//	s.SetFrameRate(30)
//	s.Start(4)
//	for {
//	    buf, err := s.ReadFrame(time.Second)
//	    ...
//	    s.Requeue(buf)
//	}
package v4l2
