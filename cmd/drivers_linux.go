//go:build linux

package cmd

import (
	"github.com/smazurov/camunit/internal/devices"
	"github.com/smazurov/camunit/internal/devices/iidccam"
	"github.com/smazurov/camunit/internal/devices/v4l2cam"
	"github.com/smazurov/camunit/internal/logging"
)

// NewRegistry returns a device registry over every backend this platform
// supports.
func NewRegistry() *devices.Registry {
	return devices.NewRegistry(logging.GetLogger("devices"),
		v4l2cam.NewDriver(logging.GetLogger("v4l2")),
		iidccam.NewDriver(logging.GetLogger("iidc")),
	)
}
