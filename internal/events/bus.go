package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. Delivery is asynchronous; each
// subscriber sees events in publish order.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish sends ev to every subscriber of its concrete type.
// Usage: bus.Publish(CameraErrorEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case CameraErrorEvent:
		event.Publish(b.dispatcher, e)
	case CameraStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case CameraStalledEvent:
		event.Publish(b.dispatcher, e)
	case CameraConfiguredEvent:
		event.Publish(b.dispatcher, e)
	case DeviceHotplugEvent:
		event.Publish(b.dispatcher, e)
	case CameraMetricsEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type of its argument and
// returns the unsubscribe function. Unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e CameraStalledEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(CameraErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraStalledEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraConfiguredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceHotplugEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

