// Package collectors feeds capture unit statistics into the metrics package.
package collectors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/internal/logging"
	"github.com/smazurov/camunit/internal/metrics"
	"github.com/smazurov/camunit/internal/scheduler"
)

// UnitSource lists open units. *scheduler.Scheduler satisfies it.
type UnitSource interface {
	Units() []scheduler.UnitInfo
}

// UnitCollector samples unit statistics periodically.
type UnitCollector struct {
	logger   *slog.Logger
	source   UnitSource
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	tracked map[string]bool
}

// NewUnitCollector creates a collector polling source every second.
func NewUnitCollector(source UnitSource) *UnitCollector {
	return &UnitCollector{
		logger:   logging.GetLogger("metrics"),
		source:   source,
		interval: time.Second,
		tracked:  make(map[string]bool),
	}
}

// Start begins collecting unit metrics.
func (c *UnitCollector) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run()
	return nil
}

// Stop stops the collector and removes the metrics it published.
func (c *UnitCollector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	for id := range c.tracked {
		metrics.DeleteUnitMetrics(id)
		delete(c.tracked, id)
	}
	return nil
}

func (c *UnitCollector) run() {
	defer c.wg.Done()
	c.logger.Info("Starting unit metrics collection", "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *UnitCollector) collect() {
	seen := make(map[string]bool)
	for _, u := range c.source.Units() {
		id := u.Device.ID
		seen[id] = true
		metrics.SetUnitMetrics(id, metrics.UnitMetrics{
			FPS:           u.FPS,
			Frames:        u.Stats.Frames,
			Bytes:         u.Bytes,
			Dropped:       u.Stats.Dropped,
			Restarts:      u.Stats.Restarts,
			HandlerErrors: u.Stats.HandlerErrors,
			Streaming:     u.State == capture.StateStreaming,
		})
	}
	for id := range c.tracked {
		if !seen[id] {
			c.logger.Debug("Unit gone, dropping metrics", "device", id)
			metrics.DeleteUnitMetrics(id)
		}
	}
	c.tracked = seen
}
