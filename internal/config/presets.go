package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// Presets maps a device id to the control values applied whenever a unit
// opens on it. Values are int64, float64, bool, or a string naming an enum
// option.
//
//	[devices."usb-046d_HD_Pro_Webcam_C920-video-index0"]
//	exposure-mode = "Manual"
//	exposure = 250
type Presets map[string]map[string]any

// For returns the presets of one device, or nil.
func (p Presets) For(deviceID string) map[string]any {
	return p[deviceID]
}

// Devices returns the configured device ids in sorted order.
func (p Presets) Devices() []string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type presetsFile struct {
	Devices map[string]map[string]any `toml:"devices"`
}

// LoadPresets reads a presets file. A missing file yields empty presets.
func LoadPresets(path string) (Presets, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Presets{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	return ParsePresets(data)
}

// ParsePresets decodes presets TOML.
func ParsePresets(data []byte) (Presets, error) {
	var f presetsFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}
	p := make(Presets, len(f.Devices))
	for dev, controls := range f.Devices {
		for id, v := range controls {
			switch v.(type) {
			case int64, float64, bool, string:
			default:
				return nil, fmt.Errorf("preset %s.%s: unsupported value type %T", dev, id, v)
			}
		}
		p[dev] = controls
	}
	return p, nil
}
