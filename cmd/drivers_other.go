//go:build !linux

package cmd

import (
	"github.com/smazurov/camunit/internal/devices"
	"github.com/smazurov/camunit/internal/logging"
)

// NewRegistry returns an empty registry; capture backends are Linux only.
func NewRegistry() *devices.Registry {
	return devices.NewRegistry(logging.GetLogger("devices"))
}
