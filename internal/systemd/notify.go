// Package systemd reports service state to systemd over the notify socket.
// Every call is a no-op when the process was not started by systemd.
package systemd

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages for a Type=notify unit.
type Notifier struct {
	logger   *slog.Logger
	notify   func(unsetEnvironment bool, state string) (bool, error)
	interval func(unsetEnvironment bool) (time.Duration, error)
}

// NewNotifier creates a notifier that logs through logger.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		logger:   logger,
		notify:   daemon.SdNotify,
		interval: daemon.SdWatchdogEnabled,
	}
}

func (n *Notifier) send(state string) bool {
	sent, err := n.notify(false, state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return false
	}
	return sent
}

// Ready tells systemd that startup finished.
func (n *Notifier) Ready() {
	if n.send(daemon.SdNotifyReady) {
		n.logger.Info("Notified systemd of readiness")
	}
}

// Stopping tells systemd that shutdown began.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(status string) {
	n.send("STATUS=" + status)
}

// RunWatchdog pings the systemd watchdog at half the configured WatchdogSec
// for as long as healthy reports true. A wedged service stops pinging and
// gets restarted. It returns immediately when the watchdog is not enabled.
func (n *Notifier) RunWatchdog(ctx context.Context, healthy func() bool) {
	timeout, err := n.interval(false)
	if err != nil {
		n.logger.Warn("Failed to read systemd watchdog settings", "error", err)
		return
	}
	if timeout <= 0 {
		return
	}

	n.logger.Info("systemd watchdog enabled", "timeout", timeout)
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if healthy != nil && !healthy() {
				n.logger.Warn("Skipping watchdog ping, service unhealthy")
				continue
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
