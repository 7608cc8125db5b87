package led

import (
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// statusLEDs maps a device-tree model substring to the LED used for status.
var statusLEDs = []struct {
	model string
	led   string
}{
	{"NanoPC-T6", "sys_led"},
	{"Orange Pi", "green_led"},
	{"Raspberry Pi", "ACT"},
}

// New returns the status LED controller for the running board, or a no-op
// controller when the board is unknown.
func New(logger *slog.Logger) Controller {
	return forBoard(detectBoard(deviceTreeModelPath), sysfsLEDPath, logger)
}

func forBoard(model, root string, logger *slog.Logger) Controller {
	for _, b := range statusLEDs {
		if strings.Contains(model, b.model) {
			logger.Info("Using status LED", "board_model", model, "led", b.led)
			return newSysfs(root, b.led)
		}
	}
	logger.Info("No status LED for board", "board_model", model)
	return noop{logger: logger}
}

// detectBoard reads the device-tree model, which is NUL terminated.
func detectBoard(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(data), "\x00")
}
