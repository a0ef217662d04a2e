package events

import "github.com/smazurov/camunit/internal/api/models"

// Event type constants for kelindar/event.
const (
	TypeDeviceDiscovery uint32 = iota + 1
	TypeUnitOpened
	TypeUnitClosed
	TypeUnitStateChanged
	TypeUnitFormatChanged
	TypeUnitRestarted
	TypeControlChanged
	TypePresetsApplied
	TypeUnitMetrics
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// DeviceDiscoveryEvent represents device hotplug events.
type DeviceDiscoveryEvent struct {
	models.DeviceInfo
	Action    string `json:"action" example:"added" doc:"Action type: added, removed, changed, status_changed"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceDiscoveryEvent.
func (e DeviceDiscoveryEvent) Type() uint32 { return TypeDeviceDiscovery }

// UnitOpenedEvent is published when a capture unit is opened on a device.
type UnitOpenedEvent struct {
	DeviceID   string `json:"device_id" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Device identifier"`
	SessionID  string `json:"session_id" doc:"Session identifier of the new unit"`
	DeviceName string `json:"device_name" example:"HD Pro Webcam C920" doc:"Device name"`
	Driver     string `json:"driver" example:"v4l2" doc:"Backend driver"`
	Timestamp  string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for UnitOpenedEvent.
func (e UnitOpenedEvent) Type() uint32 { return TypeUnitOpened }

// UnitClosedEvent is published after a unit and its device are closed.
type UnitClosedEvent struct {
	DeviceID  string `json:"device_id" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Device identifier"`
	SessionID string `json:"session_id" doc:"Session identifier of the closed unit"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for UnitClosedEvent.
func (e UnitClosedEvent) Type() uint32 { return TypeUnitClosed }

// UnitStateChangedEvent reports a capture state transition.
type UnitStateChangedEvent struct {
	DeviceID  string `json:"device_id" doc:"Device identifier"`
	SessionID string `json:"session_id" doc:"Unit session identifier"`
	From      string `json:"from" example:"configured" doc:"Previous state"`
	To        string `json:"to" example:"streaming" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for UnitStateChangedEvent.
func (e UnitStateChangedEvent) Type() uint32 { return TypeUnitStateChanged }

// GetDeviceID returns the device the transition belongs to.
func (e UnitStateChangedEvent) GetDeviceID() string { return e.DeviceID }

// IsStreaming reports whether the unit entered the streaming state.
func (e UnitStateChangedEvent) IsStreaming() bool { return e.To == "streaming" }

// UnitFormatChangedEvent reports a committed format or an input change.
// Format is nil when the unit no longer has a format.
type UnitFormatChangedEvent struct {
	DeviceID  string             `json:"device_id" doc:"Device identifier"`
	SessionID string             `json:"session_id" doc:"Unit session identifier"`
	Format    *models.FormatInfo `json:"format,omitempty" doc:"New format, absent when torn down"`
	Timestamp string             `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for UnitFormatChangedEvent.
func (e UnitFormatChangedEvent) Type() uint32 { return TypeUnitFormatChanged }

// UnitRestartedEvent is published after an automatic restart attempt.
type UnitRestartedEvent struct {
	DeviceID  string `json:"device_id" doc:"Device identifier"`
	SessionID string `json:"session_id" doc:"Unit session identifier"`
	Cause     string `json:"cause" example:"input/output error" doc:"Fault that triggered the restart"`
	Recovered bool   `json:"recovered" doc:"Whether the unit is streaming again"`
	Error     string `json:"error,omitempty" doc:"Restart failure, if any"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for UnitRestartedEvent.
func (e UnitRestartedEvent) Type() uint32 { return TypeUnitRestarted }

// ControlChangedEvent reports the value a device actually took for a control.
type ControlChangedEvent struct {
	DeviceID  string `json:"device_id" doc:"Device identifier"`
	Control   string `json:"control" example:"brightness" doc:"Control identifier"`
	Value     string `json:"value" example:"128" doc:"Formatted actual value"`
	Source    string `json:"source" example:"api" doc:"Who proposed the value: api or preset"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ControlChangedEvent.
func (e ControlChangedEvent) Type() uint32 { return TypeControlChanged }

// PresetsAppliedEvent summarizes one preset application on a unit.
type PresetsAppliedEvent struct {
	DeviceID  string   `json:"device_id" doc:"Device identifier"`
	Applied   int      `json:"applied" example:"4" doc:"Controls that accepted their preset"`
	Rejected  []string `json:"rejected,omitempty" doc:"Controls that refused their preset"`
	Timestamp string   `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PresetsAppliedEvent.
func (e PresetsAppliedEvent) Type() uint32 { return TypePresetsApplied }

// UnitMetricsEvent carries periodic per-unit capture counters.
type UnitMetricsEvent struct {
	EventType string `json:"type"`
	DeviceID  string `json:"device_id"`
	FPS       string `json:"fps"`
	Frames    string `json:"frames"`
	Dropped   string `json:"dropped"`
	Restarts  string `json:"restarts"`
}

// Type returns the event type identifier for UnitMetricsEvent.
func (e UnitMetricsEvent) Type() uint32 { return TypeUnitMetrics }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2026-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"capture" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
