//go:build linux

package devices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/camunit/pkg/linuxav/hotplug"
)

// Monitor timings. New nodes take a moment to finish enumerating, so
// refreshes are debounced after the last event.
const (
	hotplugDebounce     = time.Second
	signalCheckInterval = 30 * time.Second
)

// Monitor performs an initial refresh, then rescans on video4linux and
// firewire hotplug events and periodically while HDMI bridges are present.
// It blocks until ctx is cancelled.
func (r *Registry) Monitor(ctx context.Context) error {
	if devs, err := r.Refresh(ctx); err != nil {
		r.logger.Warn("Initial device scan incomplete", "error", err)
	} else {
		r.logger.Info("Initialized capture devices", "count", len(devs))
	}

	mon, err := hotplug.NewMonitor()
	if err != nil {
		return fmt.Errorf("hotplug monitor: %w", err)
	}
	defer func() { _ = mon.Close() }()
	mon.AddSubsystemFilter(hotplug.SubsystemVideo4Linux, hotplug.SubsystemFirewire)

	events := make(chan hotplug.Event, 16)
	runErr := make(chan error, 1)
	go func() { runErr <- mon.Run(ctx, events) }()
	r.logger.Info("Hotplug monitoring started")

	debounce := time.NewTimer(hotplugDebounce)
	debounce.Stop()
	defer debounce.Stop()

	signals := time.NewTicker(signalCheckInterval)
	defer signals.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Hotplug monitoring stopped")
			return nil
		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Action != hotplug.ActionAdd && ev.Action != hotplug.ActionRemove {
				continue
			}
			r.logger.Debug("Hotplug event", "action", ev.Action, "subsystem", ev.Subsystem, "node", ev.Node())
			debounce.Reset(hotplugDebounce)
		case <-debounce.C:
			if _, err := r.Refresh(ctx); err != nil {
				r.logger.Warn("Device rescan incomplete", "error", err)
			}
		case <-signals.C:
			if !r.hasType(TypeHDMI) {
				continue
			}
			if _, err := r.Refresh(ctx); err != nil {
				r.logger.Debug("Signal check rescan incomplete", "error", err)
			}
		}
	}
}
