//go:build linux && (amd64 || arm64)

package v4l2

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"
)

// Sysfs and devfs locations. Variables so tests can point them elsewhere.
var (
	sysClassDir = "/sys/class/video4linux"
	devDir      = "/dev"
	byIDDir     = "/dev/v4l/by-id"
)

// FindDevices finds all V4L2 video capture devices on the system.
func FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(sysClassDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	devices := []DeviceInfo{}

	for _, entry := range entries {
		devicePath := filepath.Join(devDir, entry.Name())

		caps, err := queryCapability(devicePath)
		if err != nil {
			slog.With("component", "linuxav").Debug("failed to query device capabilities", "path", devicePath, "error", err)
			continue
		}

		// Get the effective capabilities
		effective := caps.capabilities
		if effective&v4l2CapDeviceCaps != 0 {
			effective = caps.deviceCaps
		}

		// Only include video capture devices
		if effective&v4l2CapVideoCapture == 0 {
			continue
		}

		indexValue := readSysfsInt(filepath.Join(sysClassDir, entry.Name(), "index"))
		busInfo := cstr(caps.busInfo[:])

		stableID := findStableID(entry.Name(), indexValue)
		if stableID == "" {
			// Fallback: synthetic ID from bus_info + index
			if strings.HasPrefix(busInfo, "usb-") {
				stableID = fmt.Sprintf("%s-video-index%d", busInfo, indexValue)
			} else {
				stableID = fmt.Sprintf("platform-%s-video-index%d", busInfo, indexValue)
			}
		}

		devices = append(devices, DeviceInfo{
			DevicePath: devicePath,
			DeviceName: cstr(caps.card[:]),
			DeviceID:   stableID,
			Driver:     cstr(caps.driver[:]),
			BusInfo:    busInfo,
			Caps:       effective,
		})
	}

	return devices, nil
}

// GetDevicePathByID finds the device path for a given stable device ID.
func GetDevicePathByID(deviceID string) (string, error) {
	devices, err := FindDevices()
	if err != nil {
		return "", fmt.Errorf("failed to find devices: %w", err)
	}

	for _, device := range devices {
		if device.DeviceID == deviceID {
			return device.DevicePath, nil
		}
	}

	return "", fmt.Errorf("device with ID %s not found", deviceID)
}

// SysfsDevicePath resolves the sysfs directory of the hardware behind a
// video node, e.g. ".../usb1/1-1/1-1:1.0" for a UVC interface.
func SysfsDevicePath(devicePath string) (string, error) {
	link := filepath.Join(sysClassDir, filepath.Base(devicePath), "device")
	return filepath.EvalSymlinks(link)
}

// findStableID looks for a stable ID symlink in /dev/v4l/by-id/
func findStableID(deviceName string, indexValue int) string {
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	expectedSuffix := fmt.Sprintf("-video-index%d", indexValue)

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		target, err := os.Readlink(filepath.Join(byIDDir, entry.Name()))
		if err != nil {
			continue
		}

		if filepath.Base(target) == deviceName && strings.HasSuffix(entry.Name(), expectedSuffix) {
			return entry.Name()
		}
	}

	return ""
}

// readSysfsInt reads an integer value from a sysfs file.
func readSysfsInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	val, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return val
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// queryCapability opens devicePath and issues VIDIOC_QUERYCAP.
func queryCapability(devicePath string) (*v4l2Capability, error) {
	fd, err := open(devicePath)
	if err != nil {
		return nil, err
	}
	defer closeFD(fd)

	caps := &v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(caps)); err != nil {
		return nil, err
	}

	return caps, nil
}
