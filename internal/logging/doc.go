// Package logging provides structured logging with per-module log levels.
//
// Every module gets its own *slog.Logger tagged with a "module" attribute
// and backed by a LevelVar, so levels can change after loggers were handed
// out:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"camera": "debug",
//			"api":    "warn",
//		},
//	})
//
//	logger := logging.GetLogger("cameras").With("camera", id)
//	logger.Info("Camera opened", "vendor_id", vid)
//
// Records go to stdout when it is connected, to the systemd journal when
// journald is reachable, and always to an in-memory ring buffer served by
// the API. Journal entries carry the identifier "uvcnode":
//
//	journalctl -t uvcnode -f
//	journalctl -t uvcnode MODULE=camera
//
// The same settings load from the [logging] table of the config file:
//
//	[logging]
//	level = "info"
//	format = "json"
//
//	[logging.modules]
//	driver = "debug"
package logging
