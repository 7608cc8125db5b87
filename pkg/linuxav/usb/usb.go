// Package usb reads USB device descriptors from sysfs.
//
// The kernel exposes every enumerated device under /sys/bus/usb/devices
// with its descriptor fields as attribute files (idVendor, idProduct,
// serial, ...). Reading them needs no device access rights, unlike opening
// the device node.
//
//	devices, err := usb.List(usb.DefaultRoot)
//	for _, d := range devices {
//	    fmt.Printf("%04x:%04x %s\n", d.VendorID, d.ProductID, d.Product)
//	}
package usb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultRoot is where the kernel lists USB devices.
const DefaultRoot = "/sys/bus/usb/devices"

// ErrNotUSB is returned when a sysfs path has no USB device above it.
var ErrNotUSB = errors.New("usb: not a USB device")

// Device is a USB device as described by sysfs.
type Device struct {
	SysPath      string
	Name         string // kernel name, e.g. "1-1.2"
	VendorID     uint16
	ProductID    uint16
	Serial       string
	Manufacturer string
	Product      string
	BusNum       int
	DevNum       int
}

// ReadDevice reads the descriptor attributes of the device directory
// sysPath.
func ReadDevice(sysPath string) (Device, error) {
	vid, err := readHex(filepath.Join(sysPath, "idVendor"))
	if err != nil {
		return Device{}, fmt.Errorf("read idVendor: %w", err)
	}
	pid, err := readHex(filepath.Join(sysPath, "idProduct"))
	if err != nil {
		return Device{}, fmt.Errorf("read idProduct: %w", err)
	}

	return Device{
		SysPath:      sysPath,
		Name:         filepath.Base(sysPath),
		VendorID:     vid,
		ProductID:    pid,
		Serial:       readString(filepath.Join(sysPath, "serial")),
		Manufacturer: readString(filepath.Join(sysPath, "manufacturer")),
		Product:      readString(filepath.Join(sysPath, "product")),
		BusNum:       readInt(filepath.Join(sysPath, "busnum")),
		DevNum:       readInt(filepath.Join(sysPath, "devnum")),
	}, nil
}

// List returns every device under root. Interface directories and root
// hubs' interfaces are skipped because they carry no idVendor.
func List(root string) ([]Device, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []Device{}, nil
		}
		return nil, fmt.Errorf("failed to read usb devices directory: %w", err)
	}

	devices := []Device{}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ":") {
			continue
		}
		dev, err := ReadDevice(filepath.Join(root, entry.Name()))
		if err != nil {
			continue
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// DeviceFor walks up from sysPath, typically a USB interface directory
// resolved from a video node, to the owning USB device.
func DeviceFor(sysPath string) (Device, error) {
	dir := filepath.Clean(sysPath)
	for dir != "/" && dir != "." {
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			return ReadDevice(dir)
		}
		dir = filepath.Dir(dir)
	}
	return Device{}, fmt.Errorf("%s: %w", sysPath, ErrNotUSB)
}

// Matches reports whether d matches the ids. A zero id and an empty serial
// match anything.
func (d Device) Matches(vendorID, productID int, serial string) bool {
	if vendorID != 0 && int(d.VendorID) != vendorID {
		return false
	}
	if productID != 0 && int(d.ProductID) != productID {
		return false
	}
	return serial == "" || d.Serial == serial
}

func readString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func readInt(path string) int {
	val, _ := strconv.Atoi(readString(path))
	return val
}

func readHex(path string) (uint16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	val, err := strconv.ParseUint(strings.TrimSpace(string(data)), 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(val), nil
}
