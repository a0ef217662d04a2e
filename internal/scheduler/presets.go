package scheduler

import (
	"sort"

	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/internal/config"
	"github.com/smazurov/camunit/internal/events"
)

// Control change sources reported in events.
const (
	SourceAPI    = "api"
	SourcePreset = "preset"
)

// SetPresets replaces the stored presets and applies them to every open
// unit they name. Units opened later get theirs in Open.
func (s *Scheduler) SetPresets(p config.Presets) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets = p
	for _, id := range p.Devices() {
		if sess, ok := s.units[id]; ok {
			s.applyPresets(sess, p.For(id))
		}
	}
}

// presetOrder sorts control ids so that mode controls come before the
// controls they govern. A value for a governed control is only accepted
// once its mode allows it.
func presetOrder(unit *capture.Unit, values map[string]any) []string {
	var modes, governed []string
	for id := range values {
		d, err := unit.Control(id)
		if err == nil && d.DependsOn >= 0 {
			governed = append(governed, id)
			continue
		}
		modes = append(modes, id)
	}
	sort.Strings(modes)
	sort.Strings(governed)
	return append(modes, governed...)
}

// applyPresets must be called with s.mu held or before the session is
// registered. Rejected values are logged and skipped.
func (s *Scheduler) applyPresets(sess *session, values map[string]any) {
	var applied int
	var rejected []string
	for _, id := range presetOrder(sess.unit, values) {
		if _, err := s.propose(sess, id, values[id], SourcePreset); err != nil {
			s.logger.Warn("Preset rejected",
				"device", sess.device.ID, "control", id, "value", values[id], "error", err)
			rejected = append(rejected, id)
			continue
		}
		applied++
	}
	s.logger.Info("Presets applied", "device", sess.device.ID, "applied", applied, "rejected", len(rejected))
	s.publisher.Publish(events.PresetsAppliedEvent{
		DeviceID:  sess.device.ID,
		Applied:   applied,
		Rejected:  rejected,
		Timestamp: timestamp(),
	})
}
