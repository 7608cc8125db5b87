package led

import "log/slog"

// noop is used on boards without a known status LED.
type noop struct {
	logger *slog.Logger
}

func (n noop) Set(p Pattern) error {
	n.logger.Debug("LED control not available", "pattern", p)
	return nil
}

func (noop) Name() string { return "" }
