//go:build linux

// Package hotplug listens for kernel uevents over netlink without cgo.
//
// The service uses it to notice USB cameras being plugged back in:
//
//	m, err := hotplug.NewMonitor()
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//	m.AddSubsystemFilter(hotplug.SubsystemUSB)
//	m.AddDevTypeFilter(hotplug.DevTypeUSBDevice)
//
//	events := make(chan hotplug.Event, 16)
//	go m.Run(ctx, events)
//	for ev := range events {
//		if vid, pid, ok := ev.USBID(); ok {
//			...
//		}
//	}
package hotplug

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Action constants for device events.
const (
	ActionAdd     = "add"
	ActionRemove  = "remove"
	ActionChange  = "change"
	ActionMove    = "move"
	ActionBind    = "bind"
	ActionUnbind  = "unbind"
	ActionOnline  = "online"
	ActionOffline = "offline"
)

// Common subsystem names.
const (
	SubsystemVideo4Linux = "video4linux"
	SubsystemUSB         = "usb"
	SubsystemSound       = "sound"
)

// DevTypeUSBDevice marks whole USB devices, as opposed to their interfaces.
const DevTypeUSBDevice = "usb_device"

// netlinkKobjectUEvent is the netlink protocol for kernel object events.
const netlinkKobjectUEvent = 15

// pollTimeoutMs bounds each wait so Run notices cancellation.
const pollTimeoutMs = 1000

// Event represents a kernel device event.
type Event struct {
	Action    string            // "add", "remove", "change", etc.
	KObj      string            // Kernel object path: /devices/pci0000:00/...
	Subsystem string            // "video4linux", "usb", "sound", etc.
	DevType   string            // "usb_device", "usb_interface", ...
	DevName   string            // Device name (e.g., "bus/usb/001/004")
	DevPath   string            // Kernel device path
	Env       map[string]string // All environment variables from the event
}

// USBID returns the vendor and product ids from the PRODUCT variable,
// formatted by the kernel as "vid/pid/bcdDevice" in unpadded hex.
func (e Event) USBID() (vendorID, productID int, ok bool) {
	parts := strings.Split(e.Env["PRODUCT"], "/")
	if len(parts) < 2 {
		return 0, 0, false
	}
	vid, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return 0, 0, false
	}
	pid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return 0, 0, false
	}
	return int(vid), int(pid), true
}

// IsUSBDevice reports whether the event is about a whole USB device.
func (e Event) IsUSBDevice() bool {
	return e.Subsystem == SubsystemUSB && e.DevType == DevTypeUSBDevice
}

// Monitor listens for kernel device events via netlink.
type Monitor struct {
	fd int

	filtersMu sync.RWMutex
	filters   map[string]struct{}
	devTypes  map[string]struct{}
}

// NewMonitor opens a netlink socket bound to the kernel broadcast group.
func NewMonitor() (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}

	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: 1,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &Monitor{
		fd:       fd,
		filters:  make(map[string]struct{}),
		devTypes: make(map[string]struct{}),
	}, nil
}

// AddSubsystemFilter limits events to the given subsystems. Without
// filters every subsystem passes. Safe for concurrent use.
func (m *Monitor) AddSubsystemFilter(subsystem string) {
	m.filtersMu.Lock()
	m.filters[subsystem] = struct{}{}
	m.filtersMu.Unlock()
}

// AddDevTypeFilter limits events to the given device types.
func (m *Monitor) AddDevTypeFilter(devType string) {
	m.filtersMu.Lock()
	m.devTypes[devType] = struct{}{}
	m.filtersMu.Unlock()
}

// Close releases the monitor resources.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}

func (m *Monitor) accept(ev *Event) bool {
	m.filtersMu.RLock()
	defer m.filtersMu.RUnlock()
	if len(m.filters) > 0 {
		if _, ok := m.filters[ev.Subsystem]; !ok {
			return false
		}
	}
	if len(m.devTypes) > 0 {
		if _, ok := m.devTypes[ev.DevType]; !ok {
			return false
		}
	}
	return true
}

// Run sends matching events to events until ctx is cancelled or the socket
// fails. The events channel is closed when Run returns.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, 8192)
	fds := []unix.PollFd{{Fd: int32(m.fd), Events: unix.POLLIN}}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := unix.Poll(fds, pollTimeoutMs)
		if errors.Is(err, unix.EINTR) || (err == nil && n == 0) {
			continue
		}
		if err != nil {
			return err
		}

		n, _, err = unix.Recvfrom(m.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			// The kernel drops messages when the socket buffer overflows.
			if errors.Is(err, unix.ENOBUFS) {
				continue
			}
			return err
		}
		if n == 0 {
			continue
		}

		event := ParseUEvent(buf[:n])
		if event == nil || !m.accept(event) {
			continue
		}

		select {
		case events <- *event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// udevHeaderLen is the size of the binary header udev puts in front of
// the properties it re-broadcasts. The properties offset is at byte 16.
const udevHeaderLen = 40

// ParseUEvent parses a kernel uevent message of the form
// "ACTION@KOBJ\0KEY=VALUE\0...". Messages re-broadcast by udev, which
// start with "libudev", are parsed from their properties block.
func ParseUEvent(data []byte) *Event {
	if len(data) == 0 {
		return nil
	}
	if bytes.HasPrefix(data, []byte("libudev\x00")) {
		return parseUdev(data)
	}

	header, rest, _ := bytes.Cut(data, []byte{0})
	action, kobj, found := strings.Cut(string(header), "@")
	if !found || action == "" {
		return nil
	}

	event := &Event{Action: action, KObj: kobj}
	event.setEnv(rest)
	return event
}

func parseUdev(data []byte) *Event {
	if len(data) < udevHeaderLen {
		return nil
	}
	off := int(binary.NativeEndian.Uint32(data[16:20]))
	if off < udevHeaderLen || off >= len(data) {
		return nil
	}

	event := &Event{}
	event.setEnv(data[off:])
	event.Action = event.Env["ACTION"]
	if event.Action == "" {
		return nil
	}
	event.KObj = event.DevPath
	return event
}

// setEnv fills Env and the well-known fields from NUL separated pairs.
func (e *Event) setEnv(data []byte) {
	e.Env = make(map[string]string)
	for _, part := range bytes.Split(data, []byte{0}) {
		key, value, ok := strings.Cut(string(part), "=")
		if !ok || key == "" {
			continue
		}
		e.Env[key] = value

		switch key {
		case "SUBSYSTEM":
			e.Subsystem = value
		case "DEVTYPE":
			e.DevType = value
		case "DEVNAME":
			e.DevName = value
		case "DEVPATH":
			e.DevPath = value
		}
	}
}
