//go:build linux && integration

package hotplug

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestMonitorIntegration needs a camera plugged or unplugged while it runs:
//
//	go test -tags=integration -v -run TestMonitorIntegration ./pkg/linuxav/hotplug
func TestMonitorIntegration(t *testing.T) {
	m, err := NewMonitor()
	if err != nil {
		t.Fatalf("NewMonitor() error: %v", err)
	}
	defer func() { _ = m.Close() }()

	m.AddSubsystemFilter(SubsystemVideo4Linux, SubsystemFirewire)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	events := make(chan Event, 10)
	go func() {
		if runErr := m.Run(ctx, events); runErr != nil && !errors.Is(runErr, context.DeadlineExceeded) {
			t.Logf("Run() error: %v", runErr)
		}
	}()

	t.Log("Waiting for a video4linux or firewire event")
	select {
	case ev := <-events:
		t.Logf("event: action=%s subsystem=%s node=%s kobj=%s", ev.Action, ev.Subsystem, ev.Node(), ev.KObj)
	case <-ctx.Done():
		t.Log("no events received")
	}
}
