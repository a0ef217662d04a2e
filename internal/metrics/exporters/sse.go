package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/camunit/internal/events"
	"github.com/smazurov/camunit/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter publishes capture unit metrics as events for SSE clients.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		interval: 1 * time.Second,
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

func (s *SSEExporter) publishMetrics() {
	all := metrics.GetAllUnitMetrics()
	for _, id := range metrics.UnitIDs() {
		m, ok := all[id]
		if !ok {
			continue
		}
		s.eventBus.Publish(events.UnitMetricsEvent{
			EventType: "unit_metrics",
			DeviceID:  id,
			FPS:       strconv.FormatFloat(m.FPS, 'f', 2, 64),
			Frames:    strconv.FormatUint(m.Frames, 10),
			Dropped:   strconv.FormatUint(m.Dropped, 10),
			Restarts:  strconv.FormatUint(m.Restarts, 10),
		})
	}
}

// eventEndpoints maps SSE event names to the endpoint that streams them.
var eventEndpoints = map[string]struct {
	endpoint string
	example  any
}{
	"unit-metrics": {"metrics", events.UnitMetricsEvent{}},
}

// GetEventTypesForEndpoint returns the event types an SSE endpoint
// registers with huma.
func GetEventTypesForEndpoint(endpoint string) map[string]any {
	types := map[string]any{}
	for name, e := range eventEndpoints {
		if e.endpoint == endpoint {
			types[name] = e.example
		}
	}
	return types
}
