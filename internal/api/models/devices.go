package models

import "github.com/smazurov/camunit/internal/devices"

// SignalInfo is the input signal of an HDMI capture bridge.
type SignalInfo struct {
	State  string  `json:"state" example:"locked" doc:"Signal state: locked, no_signal, no_sync, out_of_range"`
	Width  int     `json:"width,omitempty" example:"1920" doc:"Detected width"`
	Height int     `json:"height,omitempty" example:"1080" doc:"Detected height"`
	FPS    float64 `json:"fps,omitempty" example:"60" doc:"Detected frame rate"`
}

// DeviceInfo represents a capture device with snake_case fields
type DeviceInfo struct {
	DeviceID   string      `json:"device_id" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Stable device identifier"`
	DeviceName string      `json:"device_name" example:"HD Pro Webcam C920" doc:"Device name"`
	DevicePath string      `json:"device_path" example:"/dev/video0" doc:"System device path"`
	Driver     string      `json:"driver" example:"v4l2" doc:"Backend driver: v4l2 or iidc"`
	Type       string      `json:"type" example:"webcam" doc:"Device type: webcam, hdmi, capture, iidc"`
	BusInfo    string      `json:"bus_info,omitempty" example:"usb-0000:00:14.0-1" doc:"Bus location"`
	Ready      bool        `json:"ready" example:"true" doc:"Whether the device can deliver frames"`
	Signal     *SignalInfo `json:"signal,omitempty" doc:"Input signal, for HDMI bridges"`
}

// NewDeviceInfo converts a discovered device.
func NewDeviceInfo(d devices.DeviceInfo) DeviceInfo {
	info := DeviceInfo{
		DeviceID:   d.ID,
		DeviceName: d.Name,
		DevicePath: d.Path,
		Driver:     d.Driver,
		Type:       d.Type,
		BusInfo:    d.BusInfo,
		Ready:      d.Ready,
	}
	if d.Signal.State != "" {
		info.Signal = &SignalInfo{
			State:  d.Signal.State,
			Width:  d.Signal.Width,
			Height: d.Signal.Height,
			FPS:    d.Signal.FPS,
		}
	}
	return info
}

// Device API response models
type DeviceData struct {
	Devices []DeviceInfo `json:"devices" doc:"List of available capture devices"`
	Count   int          `json:"count" example:"2" doc:"Number of devices found"`
}

type DeviceResponse struct {
	Body DeviceData
}
