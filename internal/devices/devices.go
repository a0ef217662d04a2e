// Package devices discovers capture hardware across backends and tracks
// hotplug changes.
package devices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/smazurov/camunit/internal/capture"
)

// ErrDeviceNotFound is returned when no driver reports the requested id.
var ErrDeviceNotFound = errors.New("device not found")

// Device types reported in DeviceInfo.Type.
const (
	TypeWebcam  = "webcam"
	TypeHDMI    = "hdmi"
	TypeCapture = "capture"
	TypeIIDC    = "iidc"
)

// Discovery actions passed to EventBroadcaster.
const (
	ActionAdded         = "added"
	ActionRemoved       = "removed"
	ActionChanged       = "changed"
	ActionStatusChanged = "status_changed"
)

// Signal is the input signal state of an HDMI capture bridge.
type Signal struct {
	State  string
	Width  int
	Height int
	FPS    float64
}

// DeviceInfo identifies one capture device reported by a driver.
type DeviceInfo struct {
	ID      string // stable across reboots and re-plugs
	Name    string
	Driver  string
	Path    string
	Type    string
	BusInfo string
	Ready   bool
	Signal  Signal
}

// Driver discovers and opens devices of one backend.
type Driver interface {
	Name() string
	// Discover scans the system. Drivers keep no cache between calls.
	Discover(ctx context.Context) ([]DeviceInfo, error)
	Open(id string) (capture.Device, error)
}

// EventBroadcaster receives device discovery changes.
type EventBroadcaster interface {
	BroadcastDeviceDiscovery(action string, device DeviceInfo, timestamp string)
}

// Registry aggregates drivers and remembers the last scan for change
// detection.
type Registry struct {
	drivers []Driver
	logger  *slog.Logger

	mu          sync.Mutex
	devices     map[string]DeviceInfo
	broadcaster EventBroadcaster
}

// NewRegistry creates a registry over drivers.
func NewRegistry(logger *slog.Logger, drivers ...Driver) *Registry {
	return &Registry{
		drivers: drivers,
		logger:  logger,
		devices: make(map[string]DeviceInfo),
	}
}

// SetBroadcaster installs the receiver of discovery changes.
func (r *Registry) SetBroadcaster(b EventBroadcaster) {
	r.mu.Lock()
	r.broadcaster = b
	r.mu.Unlock()
}

// Drivers returns the names of the registered drivers.
func (r *Registry) Drivers() []string {
	names := make([]string, len(r.drivers))
	for i, d := range r.drivers {
		names[i] = d.Name()
	}
	return names
}

// Discover scans every driver. A failing driver is logged and skipped; its
// error is returned alongside the devices the other drivers found.
func (r *Registry) Discover(ctx context.Context) ([]DeviceInfo, error) {
	found, _, err := r.discover(ctx)
	return found, err
}

func (r *Registry) discover(ctx context.Context) ([]DeviceInfo, map[string]bool, error) {
	var all []DeviceInfo
	var errs []error
	failed := make(map[string]bool)
	for _, d := range r.drivers {
		found, err := d.Discover(ctx)
		if err != nil {
			r.logger.Warn("Device discovery failed", "driver", d.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
			failed[d.Name()] = true
			continue
		}
		for i := range found {
			found[i].Driver = d.Name()
		}
		all = append(all, found...)
	}
	sortDevices(all)
	return all, failed, errors.Join(errs...)
}

// Refresh rescans and broadcasts every difference from the previous scan.
// Devices of a failing driver are kept as they were rather than reported
// removed.
func (r *Registry) Refresh(ctx context.Context) ([]DeviceInfo, error) {
	found, failed, err := r.discover(ctx)

	current := make(map[string]DeviceInfo, len(found))
	for _, dev := range found {
		current[dev.ID] = dev
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	for id, old := range r.devices {
		if _, ok := current[id]; ok || failed[old.Driver] {
			continue
		}
		r.logger.Info("Device removed", "id", id, "name", old.Name, "path", old.Path)
		delete(r.devices, id)
		r.broadcast(ActionRemoved, old, now)
	}
	for id, dev := range current {
		old, ok := r.devices[id]
		r.devices[id] = dev
		switch {
		case !ok:
			r.logger.Info("Device added", "id", id, "name", dev.Name, "path", dev.Path, "driver", dev.Driver)
			r.broadcast(ActionAdded, dev, now)
		case old.Ready != dev.Ready || old.Signal != dev.Signal:
			r.logSignal(old, dev)
			r.broadcast(ActionStatusChanged, dev, now)
		case old != dev:
			r.logger.Info("Device changed", "id", id, "name", dev.Name, "path", dev.Path)
			r.broadcast(ActionChanged, dev, now)
		}
	}
	return r.snapshot(), err
}

func (r *Registry) logSignal(old, dev DeviceInfo) {
	if dev.Ready && !old.Ready {
		r.logger.Info("Device signal acquired",
			"id", dev.ID,
			"name", dev.Name,
			"resolution", fmt.Sprintf("%dx%d", dev.Signal.Width, dev.Signal.Height),
			"fps", fmt.Sprintf("%.2f", dev.Signal.FPS))
		return
	}
	if !dev.Ready && old.Ready {
		r.logger.Warn("Device signal lost", "id", dev.ID, "name", dev.Name, "reason", dev.Signal.State)
		return
	}
	r.logger.Debug("Device signal changed", "id", dev.ID, "state", dev.Signal.State)
}

// broadcast must be called with r.mu held.
func (r *Registry) broadcast(action string, dev DeviceInfo, ts string) {
	if r.broadcaster != nil {
		r.broadcaster.BroadcastDeviceDiscovery(action, dev, ts)
	}
}

// snapshot must be called with r.mu held.
func (r *Registry) snapshot() []DeviceInfo {
	out := make([]DeviceInfo, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, dev)
	}
	sortDevices(out)
	return out
}

// Devices returns the result of the last refresh.
func (r *Registry) Devices() []DeviceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Lookup returns the device with the given id, rescanning once when it is
// not known yet.
func (r *Registry) Lookup(ctx context.Context, id string) (DeviceInfo, error) {
	r.mu.Lock()
	dev, ok := r.devices[id]
	r.mu.Unlock()
	if ok {
		return dev, nil
	}

	found, _ := r.Refresh(ctx)
	for _, dev := range found {
		if dev.ID == id {
			return dev, nil
		}
	}
	return DeviceInfo{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// Open opens the device with the given id through its driver.
func (r *Registry) Open(ctx context.Context, id string) (capture.Device, DeviceInfo, error) {
	info, err := r.Lookup(ctx, id)
	if err != nil {
		return nil, DeviceInfo{}, err
	}
	for _, d := range r.drivers {
		if d.Name() != info.Driver {
			continue
		}
		dev, err := d.Open(info.ID)
		if err != nil {
			return nil, info, fmt.Errorf("open %s: %w", info.ID, err)
		}
		r.logger.Debug("Device opened", "id", info.ID, "driver", info.Driver, "path", info.Path)
		return dev, info, nil
	}
	return nil, info, fmt.Errorf("%w: no driver %q for %s", ErrDeviceNotFound, info.Driver, id)
}

// hasType reports whether the last scan contains a device of type t.
func (r *Registry) hasType(t string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dev := range r.devices {
		if dev.Type == t {
			return true
		}
	}
	return false
}

func sortDevices(devs []DeviceInfo) {
	sort.Slice(devs, func(i, j int) bool {
		if devs[i].Driver != devs[j].Driver {
			return devs[i].Driver < devs[j].Driver
		}
		return devs[i].ID < devs[j].ID
	})
}
