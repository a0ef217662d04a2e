package api

import (
	"context"
	"maps"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/camunit/internal/events"
	"github.com/smazurov/camunit/internal/metrics/exporters"
)

// streamEvents forwards bus events from eventCh until the client leaves.
func streamEvents(ctx context.Context, send sse.Sender, eventCh <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			if err := send.Data(event); err != nil {
				return
			}
		}
	}
}

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of device discovery, unit lifecycle and control changes",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func() map[string]any {
		eventTypes := map[string]any{
			"device-discovery":    events.DeviceDiscoveryEvent{},
			"unit-opened":         events.UnitOpenedEvent{},
			"unit-closed":         events.UnitClosedEvent{},
			"unit-state-changed":  events.UnitStateChangedEvent{},
			"unit-format-changed": events.UnitFormatChangedEvent{},
			"unit-restarted":      events.UnitRestartedEvent{},
			"control-changed":     events.ControlChangedEvent{},
			"presets-applied":     events.PresetsAppliedEvent{},
		}
		maps.Copy(eventTypes, exporters.GetEventTypesForEndpoint("events"))
		return eventTypes
	}(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		defer events.SubscribeUnitEvents(s.eventBus, eventCh)()

		streamEvents(ctx, send, eventCh)
	})
}
