package led

import (
	"fmt"
	"os"
	"path/filepath"
)

const sysfsLEDPath = "/sys/class/leds"

// sysfs drives /sys/class/leds/<name> through its trigger and brightness
// attributes.
type sysfs struct {
	dir string
}

func newSysfs(root, name string) *sysfs {
	return &sysfs{dir: filepath.Join(root, name)}
}

func (s *sysfs) Name() string {
	return filepath.Base(s.dir)
}

func (s *sysfs) Set(p Pattern) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("LED %s: %w", s.Name(), err)
	}

	trigger, brightness := "none", "0"
	switch p {
	case PatternOff:
	case PatternSolid:
		brightness = "1"
	case PatternBlink:
		// The heartbeat trigger owns brightness.
		return s.write("trigger", "heartbeat")
	default:
		return fmt.Errorf("LED %s: unknown pattern %q", s.Name(), p)
	}

	if err := s.write("trigger", trigger); err != nil {
		return err
	}
	return s.write("brightness", brightness)
}

func (s *sysfs) write(attr, value string) error {
	if err := os.WriteFile(filepath.Join(s.dir, attr), []byte(value), 0o644); err != nil {
		return fmt.Errorf("LED %s: set %s: %w", s.Name(), attr, err)
	}
	return nil
}
