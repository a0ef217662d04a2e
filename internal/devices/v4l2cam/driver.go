//go:build linux

package v4l2cam

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/internal/devices"
	"github.com/smazurov/camunit/pkg/linuxav/v4l2"
)

// DriverName identifies V4L2 devices in discovery results.
const DriverName = "v4l2"

// Driver discovers and opens V4L2 capture nodes.
type Driver struct {
	logger *slog.Logger
}

// NewDriver creates a V4L2 driver.
func NewDriver(logger *slog.Logger) *Driver {
	return &Driver{logger: logger}
}

// Name implements devices.Driver.
func (d *Driver) Name() string { return DriverName }

// Discover implements devices.Driver.
func (d *Driver) Discover(ctx context.Context) ([]devices.DeviceInfo, error) {
	found, err := v4l2.FindDevices()
	if err != nil {
		return nil, err
	}
	out := make([]devices.DeviceInfo, 0, len(found))
	for _, dev := range found {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info := devices.DeviceInfo{
			ID:      dev.DeviceID,
			Name:    dev.DeviceName,
			Path:    dev.DevicePath,
			BusInfo: dev.BusInfo,
			Type:    devices.TypeCapture,
		}

		status := v4l2.GetDeviceStatus(dev.DevicePath)
		info.Ready = status.Ready
		switch status.DeviceType {
		case v4l2.DeviceTypeHDMI:
			info.Type = devices.TypeHDMI
			info.Signal = signalInfo(v4l2.GetDVTimings(dev.DevicePath))
		case v4l2.DeviceTypeWebcam:
			info.Type = devices.TypeWebcam
		}
		out = append(out, info)
	}
	return out, nil
}

// Open implements devices.Driver. id is a stable id from Discover or a
// /dev path.
func (d *Driver) Open(id string) (capture.Device, error) {
	path, err := resolvePath(id)
	if err != nil {
		return nil, err
	}
	return Open(path, id, d.logger)
}

// resolvePath maps a stable id to a video node, preferring the udev
// symlinks and falling back to a sysfs scan for synthetic ids.
func resolvePath(id string) (string, error) {
	if strings.HasPrefix(id, "/dev/") {
		return id, nil
	}
	for _, dir := range []string{"/dev/v4l/by-id/", "/dev/v4l/by-path/"} {
		if _, err := os.Stat(dir + id); err == nil {
			return dir + id, nil
		}
	}
	path, err := v4l2.GetDevicePathByID(id)
	if err != nil {
		return "", fmt.Errorf("%w: %s", devices.ErrDeviceNotFound, id)
	}
	return path, nil
}

func signalInfo(s v4l2.SignalStatus) devices.Signal {
	sig := devices.Signal{State: signalStateString(s.State)}
	if s.State == v4l2.SignalStateLocked {
		sig.Width = int(s.Width)
		sig.Height = int(s.Height)
		sig.FPS = s.FPS
	}
	return sig
}

func signalStateString(state v4l2.SignalState) string {
	switch state {
	case v4l2.SignalStateNoLink:
		return "no_link"
	case v4l2.SignalStateNoSignal:
		return "no_signal"
	case v4l2.SignalStateUnstable:
		return "unstable"
	case v4l2.SignalStateLocked:
		return "locked"
	case v4l2.SignalStateOutOfRange:
		return "out_of_range"
	case v4l2.SignalStateNotSupported:
		return "not_supported"
	default:
		return "no_device"
	}
}
