//go:build linux

package iidccam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/internal/devices"
	"github.com/smazurov/camunit/pkg/iidc"
	"github.com/smazurov/camunit/pkg/linuxav/firewire"
)

// DriverName identifies IIDC cameras in discovery results.
const DriverName = "iidc"

// Driver discovers and opens IIDC cameras on the firewire bus.
type Driver struct {
	logger    *slog.Logger
	findNodes func() ([]firewire.NodeInfo, error)
}

// NewDriver creates an IIDC driver.
func NewDriver(logger *slog.Logger) *Driver {
	return &Driver{logger: logger, findNodes: firewire.FindNodes}
}

// Name implements devices.Driver.
func (d *Driver) Name() string { return DriverName }

// GUIDString formats a camera GUID as its device id.
func GUIDString(guid uint64) string {
	return fmt.Sprintf("%016x", guid)
}

// Discover implements devices.Driver. Nodes without an IIDC unit directory
// are skipped.
func (d *Driver) Discover(ctx context.Context) ([]devices.DeviceInfo, error) {
	nodes, err := d.findNodes()
	if err != nil {
		return nil, err
	}
	var out []devices.DeviceInfo
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, romErr := iidc.ParseROM(n.ROM)
		if romErr != nil {
			if !errors.Is(romErr, iidc.ErrNotIIDC) {
				d.logger.Debug("Unreadable config ROM", "path", n.Path, "error", romErr)
			}
			continue
		}
		out = append(out, devices.DeviceInfo{
			ID:      GUIDString(info.GUID),
			Name:    info.Name(),
			Path:    n.Path,
			Type:    devices.TypeIIDC,
			BusInfo: fmt.Sprintf("firewire:%04x", n.NodeID),
			Ready:   true,
		})
	}
	return out, nil
}

// Open implements devices.Driver. id is a GUID from Discover or a /dev/fw
// path.
func (d *Driver) Open(id string) (capture.Device, error) {
	path, err := d.resolvePath(id)
	if err != nil {
		return nil, err
	}
	return Open(path, d.logger)
}

func (d *Driver) resolvePath(id string) (string, error) {
	if strings.HasPrefix(id, "/dev/") {
		return id, nil
	}
	nodes, err := d.findNodes()
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		info, romErr := iidc.ParseROM(n.ROM)
		if romErr == nil && strings.EqualFold(GUIDString(info.GUID), id) {
			return n.Path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", devices.ErrDeviceNotFound, id)
}

// Open opens the IIDC camera at a /dev/fw path.
func Open(path string, logger *slog.Logger) (*Camera, error) {
	node, err := firewire.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := iidc.ParseROM(node.ROM())
	if err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("Opened IIDC camera", "path", path, "camera", info.Name(), "guid", GUIDString(info.GUID))
	open := func(cfg firewire.IsoConfig) (isoStream, error) {
		return firewire.OpenIsoReceive(path, cfg)
	}
	return newCamera(iidc.NewCamera(node, info), node, open, logger), nil
}
