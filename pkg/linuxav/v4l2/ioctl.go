//go:build linux && (amd64 || arm64)

package v4l2

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl request encoding from asm-generic/ioctl.h.
const (
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, nr, size uintptr) uint {
	return uint(dir<<iocDirShift | size<<iocSizeShift | uintptr('V')<<iocTypeShift | nr<<iocNRShift)
}

func ior(nr, size uintptr) uint  { return ioc(iocRead, nr, size) }
func iow(nr, size uintptr) uint  { return ioc(iocWrite, nr, size) }
func iowr(nr, size uintptr) uint { return ioc(iocRead|iocWrite, nr, size) }

// ioctl issues req and retries when interrupted by a signal.
func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
		if errno == 0 {
			return nil
		}
		if errors.Is(errno, unix.EINTR) {
			continue
		}
		return errno
	}
}

func open(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
}

func closeFD(fd int) error {
	return unix.Close(fd)
}
