package exporters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camunit/internal/events"
	"github.com/smazurov/camunit/internal/metrics"
)

type mockEventBus struct {
	mu        sync.Mutex
	events    []events.Event
	published chan struct{}
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{
		events:    make([]events.Event, 0),
		published: make(chan struct{}, 100),
	}
}

func (m *mockEventBus) Publish(ev events.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.published <- struct{}{}:
	default:
	}
}

func (m *mockEventBus) getEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

func TestSSEExporterPublishesMetrics(t *testing.T) {
	deviceID := "sse-test-unit"
	metrics.DeleteUnitMetrics(deviceID)

	metrics.SetUnitMetrics(deviceID, metrics.UnitMetrics{FPS: 30, Frames: 120, Dropped: 5, Restarts: 2})

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)

	// Wait for at least one publish cycle
	select {
	case <-mock.published:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for metrics publish")
	}

	cancel()
	exporter.Stop()

	evts := mock.getEvents()
	if len(evts) == 0 {
		t.Fatal("expected at least one event")
	}

	var found bool
	for _, ev := range evts {
		if ume, ok := ev.(events.UnitMetricsEvent); ok && ume.DeviceID == deviceID {
			found = true
			if ume.FPS != "30.00" {
				t.Errorf("FPS = %q, want \"30.00\"", ume.FPS)
			}
			if ume.Frames != "120" {
				t.Errorf("Frames = %q, want \"120\"", ume.Frames)
			}
			if ume.Dropped != "5" || ume.Restarts != "2" {
				t.Errorf("Dropped/Restarts = %q/%q, want 5/2", ume.Dropped, ume.Restarts)
			}
			break
		}
	}

	if !found {
		t.Error("expected UnitMetricsEvent for test unit")
	}

	metrics.DeleteUnitMetrics(deviceID)
}

func TestSSEExporterNoMetrics(t *testing.T) {
	// Unique id to avoid interference from other tests
	deviceID := "sse-no-metrics-test"
	metrics.DeleteUnitMetrics(deviceID)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)

	// Wait for at least one publish cycle
	time.Sleep(50 * time.Millisecond)

	cancel()
	exporter.Stop()

	for _, ev := range mock.getEvents() {
		if ume, ok := ev.(events.UnitMetricsEvent); ok && ume.DeviceID == deviceID {
			t.Error("expected no events for deleted unit")
		}
	}
}

func TestSSEExporterStopIdempotent(t *testing.T) {
	deviceID := "sse-idempotent-test"
	metrics.SetUnitMetrics(deviceID, metrics.UnitMetrics{FPS: 30})
	defer metrics.DeleteUnitMetrics(deviceID)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	ctx := context.Background()
	exporter.Start(ctx)

	// Let it run briefly
	time.Sleep(30 * time.Millisecond)

	// Stop multiple times
	exporter.Stop()
	exporter.Stop()
	exporter.Stop()

	// Record event count after stops
	countAfterStop := len(mock.getEvents())

	// Wait and verify no new events after stop
	time.Sleep(30 * time.Millisecond)
	countAfterWait := len(mock.getEvents())

	if countAfterWait != countAfterStop {
		t.Errorf("events published after stop: got %d, want %d", countAfterWait, countAfterStop)
	}
}

func TestSSEExporterStopBeforeStart(t *testing.T) {
	deviceID := "sse-stop-before-start-test"
	metrics.SetUnitMetrics(deviceID, metrics.UnitMetrics{FPS: 45})
	defer metrics.DeleteUnitMetrics(deviceID)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	// Stop before start should not panic
	exporter.Stop()

	// Should still be able to start and function normally
	ctx := t.Context()
	exporter.Start(ctx)

	// Wait for publish cycle
	time.Sleep(30 * time.Millisecond)
	exporter.Stop()

	// Verify events were published after start
	if len(mock.getEvents()) == 0 {
		t.Error("expected events after Start(), got none")
	}
}

func TestGetEventTypesForEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     []string
	}{
		{"metrics", []string{"unit-metrics"}},
		{"events", nil},
		{"unknown", nil},
	}
	for _, tt := range tests {
		types := GetEventTypesForEndpoint(tt.endpoint)
		if len(types) != len(tt.want) {
			t.Errorf("GetEventTypesForEndpoint(%q) = %v, want %v", tt.endpoint, types, tt.want)
			continue
		}
		for _, name := range tt.want {
			if _, ok := types[name]; !ok {
				t.Errorf("GetEventTypesForEndpoint(%q) missing %s", tt.endpoint, name)
			}
		}
	}
}
