package api

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/uvcnode/internal/api/models"
	"github.com/smazurov/uvcnode/internal/events"
	"github.com/smazurov/uvcnode/internal/logging"
)

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Get the most recent buffered log entries, optionally only those about one camera",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *struct {
		Limit    int    `query:"limit" minimum:"1" maximum:"1000" default:"100" doc:"Maximum number of entries"`
		CameraID string `query:"camera_id" doc:"Only entries about this camera"`
	}) (*models.LogListResponse, error) {
		resp := &models.LogListResponse{}
		resp.Body.Entries = []models.LogEntry{}
		if buffer := logging.GetBuffer(); buffer != nil {
			entries := buffer.ReadAll()
			if input.CameraID != "" {
				entries = slices.DeleteFunc(entries, func(e logging.LogEntry) bool {
					return e.CameraID != input.CameraID
				})
			}
			if len(entries) > input.Limit {
				entries = entries[len(entries)-input.Limit:]
			}
			for _, e := range entries {
				resp.Body.Entries = append(resp.Body.Entries, models.LogEntry{
					Timestamp:  e.Timestamp.Format(time.RFC3339Nano),
					Level:      e.Level,
					Module:     e.Module,
					CameraID:   e.CameraID,
					Message:    e.Message,
					Attributes: e.Attributes,
				})
			}
		}
		resp.Body.Count = len(resp.Body.Entries)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/level",
		Summary:     "Set Log Level",
		Description: "Change the log level of one module at runtime",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(_ context.Context, input *models.LogLevelRequest) (*models.MessageResponse, error) {
		if !logging.SetModuleLevel(input.Body.Module, input.Body.Level) {
			return nil, huma.Error400BadRequest("invalid log level")
		}
		s.logger.Info("Log level changed", "target", input.Body.Module, "level", input.Body.Level)
		return models.NewMessage("log level updated"), nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends buffered logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing logged in between is lost.
		// Clients dedupe on Seq.
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				if err := send.Data(events.LogEntryEvent{
					Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
					Level:      entry.Level,
					Module:     entry.Module,
					CameraID:   entry.CameraID,
					Message:    entry.Message,
					Attributes: entry.Attributes,
				}); err != nil {
					return
				}
			}
		}

		forward(ctx, eventCh, send)
	})
}
