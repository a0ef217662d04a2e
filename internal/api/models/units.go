package models

import (
	"time"

	"github.com/smazurov/camunit/internal/capture"
)

// FormatInfo is one catalogued format. Index is its position in the unit's
// catalog and is what clients pass back to select it.
type FormatInfo struct {
	Index    int    `json:"index" example:"0" doc:"Catalog index"`
	Pixel    string `json:"pixel" example:"YUYV" doc:"FourCC pixel code"`
	Name     string `json:"name" example:"YUYV 4:2:2" doc:"Device description of the encoding"`
	Width    int    `json:"width" example:"1280" doc:"Width in pixels"`
	Height   int    `json:"height" example:"720" doc:"Height in pixels"`
	Stride   int    `json:"stride" example:"2560" doc:"Bytes per line"`
	MaxBytes int    `json:"max_bytes" example:"1843200" doc:"Largest frame the format produces"`
}

// NewFormatInfo converts a catalog entry.
func NewFormatInfo(index int, f capture.FormatDescriptor) FormatInfo {
	return FormatInfo{
		Index:    index,
		Pixel:    f.Pixel.String(),
		Name:     f.Name,
		Width:    f.Width,
		Height:   f.Height,
		Stride:   f.Stride,
		MaxBytes: f.MaxBytes,
	}
}

// OptionInfo is one enum entry.
type OptionInfo struct {
	Index   int    `json:"index" example:"1" doc:"Value to propose"`
	Label   string `json:"label" example:"Auto" doc:"Option label"`
	Enabled bool   `json:"enabled" example:"true" doc:"Whether the option can be selected"`
}

// ControlInfo describes a device control and its current value.
type ControlInfo struct {
	ID        string       `json:"id" example:"brightness" doc:"Control identifier"`
	Label     string       `json:"label" example:"Brightness" doc:"Device label"`
	Kind      string       `json:"kind" enum:"integer,boolean,enum,float,button" doc:"Control type"`
	Enabled   bool         `json:"enabled" doc:"Whether the control accepts values"`
	OneShot   bool         `json:"one_shot,omitempty" doc:"Set-and-forget control without readback"`
	Value     float64      `json:"value" example:"128" doc:"Current value; enum option index for enums"`
	Display   string       `json:"display" example:"128" doc:"Current value rendered for humans"`
	Min       float64      `json:"min" example:"0" doc:"Lower bound"`
	Max       float64      `json:"max" example:"255" doc:"Upper bound"`
	Step      float64      `json:"step,omitempty" example:"1" doc:"Value granularity"`
	Options   []OptionInfo `json:"options,omitempty" doc:"Enum options"`
	DependsOn string       `json:"depends_on,omitempty" example:"exposure-mode" doc:"Mode control governing this one"`
}

// NewControlInfo converts a descriptor. mode is the id of the governing
// control, or empty.
func NewControlInfo(d capture.ControlDescriptor, mode string) ControlInfo {
	info := ControlInfo{
		ID:        d.ID,
		Label:     d.Label,
		Kind:      d.Kind.String(),
		Enabled:   d.Enabled,
		OneShot:   d.OneShot,
		Value:     NumericValue(d.Kind, d.Value),
		Display:   d.FormatValue(d.Value),
		DependsOn: mode,
	}
	switch d.Kind {
	case capture.KindInteger:
		info.Min, info.Max, info.Step = float64(d.Int.Min), float64(d.Int.Max), float64(d.Int.Step)
	case capture.KindFloat:
		info.Min, info.Max, info.Step = d.Float.Min, d.Float.Max, d.Float.Step
	case capture.KindBoolean, capture.KindButton:
		info.Max = 1
	case capture.KindEnum:
		info.Max = float64(len(d.Options) - 1)
		for i, o := range d.Options {
			info.Options = append(info.Options, OptionInfo{Index: i, Label: o.Label, Enabled: o.Enabled})
		}
	}
	return info
}

// NumericValue flattens a control value to a number.
func NumericValue(k capture.Kind, v capture.Value) float64 {
	if k == capture.KindFloat {
		return v.Float
	}
	return float64(v.Int)
}

// StatsData holds a unit's capture counters.
type StatsData struct {
	Frames        uint64  `json:"frames" example:"1800" doc:"Frames delivered"`
	Bytes         uint64  `json:"bytes" example:"3317760000" doc:"Payload bytes delivered"`
	FPS           float64 `json:"fps" example:"30" doc:"Delivery rate over the last second"`
	Dropped       uint64  `json:"dropped" example:"0" doc:"Frames lost to stream restarts"`
	Restarts      uint64  `json:"restarts" example:"0" doc:"Automatic stream restarts"`
	HandlerErrors uint64  `json:"handler_errors" example:"0" doc:"Frames the consumers failed on"`
	WouldBlock    uint64  `json:"would_block" example:"12" doc:"Polls that found no frame ready"`
}

// UnitData is an opened capture unit.
type UnitData struct {
	DeviceID   string      `json:"device_id" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Device identifier"`
	SessionID  string      `json:"session_id" example:"3f0c9a52-1b7e-4d1f-9a8e-5d6c7b8a9f01" doc:"Identifier of this open session"`
	DeviceName string      `json:"device_name" example:"HD Pro Webcam C920" doc:"Device name"`
	Driver     string      `json:"driver" example:"v4l2" doc:"Backend driver"`
	State      string      `json:"state" enum:"idle,configured,streaming" doc:"Capture state"`
	Format     *FormatInfo `json:"format,omitempty" doc:"Committed format"`
	OpenedAt   time.Time   `json:"opened_at" doc:"When the unit was opened"`
	Stats      StatsData   `json:"stats" doc:"Capture counters"`
}

type UnitListData struct {
	Units []UnitData `json:"units" doc:"Opened capture units"`
	Count int        `json:"count" example:"1" doc:"Number of units"`
}

type UnitListResponse struct {
	Body UnitListData
}

type UnitResponse struct {
	Body UnitData
}

type UnitOpenRequestData struct {
	DeviceID string `json:"device_id" minLength:"1" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Device to open"`
	Format   *int   `json:"format,omitempty" minimum:"0" example:"0" doc:"Catalog index to configure; omit to stay idle"`
	Start    bool   `json:"start,omitempty" doc:"Start streaming after configuring"`
	Buffers  int    `json:"buffers,omitempty" minimum:"0" maximum:"256" example:"5" doc:"Buffer count, 0 for the device default"`
}

type UnitOpenRequest struct {
	Body UnitOpenRequestData
}

type FormatListData struct {
	Formats []FormatInfo `json:"formats" doc:"Catalogued formats"`
	Current *int         `json:"current,omitempty" doc:"Index of the committed format"`
}

type FormatListResponse struct {
	Body FormatListData
}

type ControlListData struct {
	Controls []ControlInfo `json:"controls" doc:"Device controls"`
}

type ControlListResponse struct {
	Body ControlListData
}

type ControlSetData struct {
	Value  *float64 `json:"value,omitempty" example:"128" doc:"Numeric value; option index for enums, 0 or 1 for booleans"`
	Option string   `json:"option,omitempty" example:"Manual" doc:"Enum option label, instead of value"`
}

type ControlSetRequest struct {
	DeviceID  string `path:"device_id" doc:"Device identifier"`
	ControlID string `path:"control" example:"brightness" doc:"Control identifier"`
	Body      ControlSetData
}

type ControlSetResult struct {
	Control ControlInfo `json:"control" doc:"Control after the change"`
	Actual  bool        `json:"actual" doc:"Whether value is what the device reports, false for one-shot controls"`
}

type ControlSetResponse struct {
	Body ControlSetResult
}
