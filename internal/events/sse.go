package events

import "github.com/kelindar/event"

// SubscribeToChannel delivers events of type T into ch for select-based
// consumers such as SSE handlers. Events are dropped while ch is full so a
// slow client never stalls the publisher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeUnitEvents feeds ch with discovery, unit lifecycle, control and
// preset events. Metrics and log entries have their own streams.
func SubscribeUnitEvents(bus *Bus, ch chan<- any) func() {
	unsubs := []func(){
		SubscribeToChannel[DeviceDiscoveryEvent](bus, ch),
		SubscribeToChannel[UnitOpenedEvent](bus, ch),
		SubscribeToChannel[UnitClosedEvent](bus, ch),
		SubscribeToChannel[UnitStateChangedEvent](bus, ch),
		SubscribeToChannel[UnitFormatChangedEvent](bus, ch),
		SubscribeToChannel[UnitRestartedEvent](bus, ch),
		SubscribeToChannel[ControlChangedEvent](bus, ch),
		SubscribeToChannel[PresetsAppliedEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
