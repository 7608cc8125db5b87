package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/uvcnode/internal/events"
)

// eventTypes maps SSE event names to the bus events forwarded on /api/events.
var eventTypes = map[string]any{
	"camera-error":         events.CameraErrorEvent{},
	"camera-state-changed": events.CameraStateChangedEvent{},
	"camera-stalled":       events.CameraStalledEvent{},
	"camera-configured":    events.CameraConfiguredEvent{},
	"device-hotplug":       events.DeviceHotplugEvent{},
}

func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time camera lifecycle, error and hotplug events. The current state of every camera is sent first.",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, eventTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.CameraErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CameraStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CameraStalledEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CameraConfiguredEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DeviceHotplugEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		if s.cameras != nil {
			now := time.Now().Format(time.RFC3339)
			for _, st := range s.cameras.List() {
				if err := send.Data(events.CameraStateChangedEvent{
					CameraID:  st.ID,
					State:     st.State,
					Available: st.Available,
					Timestamp: now,
				}); err != nil {
					return
				}
			}
		}

		forward(ctx, eventCh, send)
	})
}

// forward sends events from ch until the client goes away.
func forward(ctx context.Context, ch <-chan any, send sse.Sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			if err := send.Data(ev); err != nil {
				return
			}
		}
	}
}
