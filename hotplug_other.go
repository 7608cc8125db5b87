//go:build !linux

package main

import (
	"context"
	"log/slog"

	"github.com/smazurov/uvcnode/internal/events"
)

func startHotplug(_ context.Context, _ *events.Bus, logger *slog.Logger) {
	logger.Info("Hotplug monitoring is only supported on Linux")
}
