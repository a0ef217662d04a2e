package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(UnitStateChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	// The generic Publish needs the concrete type
	switch e := ev.(type) {
	case DeviceDiscoveryEvent:
		event.Publish(b.dispatcher, e)
	case UnitOpenedEvent:
		event.Publish(b.dispatcher, e)
	case UnitClosedEvent:
		event.Publish(b.dispatcher, e)
	case UnitStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case UnitFormatChangedEvent:
		event.Publish(b.dispatcher, e)
	case UnitRestartedEvent:
		event.Publish(b.dispatcher, e)
	case ControlChangedEvent:
		event.Publish(b.dispatcher, e)
	case PresetsAppliedEvent:
		event.Publish(b.dispatcher, e)
	case UnitMetricsEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e UnitRestartedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(DeviceDiscoveryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(UnitOpenedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(UnitClosedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(UnitStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(UnitFormatChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(UnitRestartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ControlChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PresetsAppliedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(UnitMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Unknown handler types get a no-op unsubscribe
		return func() {}
	}
}
