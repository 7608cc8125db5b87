//go:build linux

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/smazurov/uvcnode/internal/events"
	"github.com/smazurov/uvcnode/pkg/linuxav/hotplug"
)

// startHotplug forwards USB device add/remove uevents to the bus until ctx
// is cancelled.
func startHotplug(ctx context.Context, bus *events.Bus, logger *slog.Logger) {
	mon, err := hotplug.NewMonitor()
	if err != nil {
		logger.Warn("Hotplug monitoring unavailable", "error", err)
		return
	}
	mon.AddSubsystemFilter(hotplug.SubsystemUSB)
	mon.AddDevTypeFilter(hotplug.DevTypeUSBDevice)

	ch := make(chan hotplug.Event, 16)
	go func() {
		defer mon.Close()
		if err := mon.Run(ctx, ch); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Hotplug monitor stopped", "error", err)
		}
	}()

	go func() {
		for ev := range ch {
			if ev.Action != hotplug.ActionAdd && ev.Action != hotplug.ActionRemove {
				continue
			}
			vid, pid, ok := ev.USBID()
			if !ok {
				continue
			}
			logger.Debug("USB device event", "action", ev.Action, "vendor_id", vid, "product_id", pid, "devpath", ev.DevPath)
			bus.Publish(events.DeviceHotplugEvent{
				Action:    ev.Action,
				VendorID:  vid,
				ProductID: pid,
				DevPath:   ev.DevPath,
				Timestamp: time.Now().Format(time.RFC3339),
			})
		}
	}()
	logger.Info("Hotplug monitoring started")
}
