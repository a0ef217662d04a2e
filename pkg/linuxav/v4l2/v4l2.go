//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for device enumeration, format negotiation, memory-mapped streaming and
// device controls.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Enumeration
//
// Use FindDevices to discover all V4L2 video capture devices:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	}
//
// # Streaming
//
// Open a device, negotiate a format and stream memory-mapped buffers:
//
//	dev, _ := v4l2.Open("/dev/video0")
//	defer dev.Close()
//
//	pix, _ := dev.SetFormat(v4l2.PixFormat{Width: 640, Height: 480, PixelFormat: v4l2.PixFmtYUYV})
//	count, _ := dev.RequestBuffers(4)
//	for i := uint32(0); i < count; i++ {
//	    info, _ := dev.QueryBuffer(i)
//	    mem, _ := dev.MapBuffer(info)
//	    _ = dev.QueueBuffer(i)
//	}
//	_ = dev.StreamOn()
//
// The descriptor is non-blocking: DequeueBuffer returns unix.EAGAIN when no
// buffer is ready, and callers poll Fd for readability.
//
// # Controls
//
// QueryControl, QueryMenu, GetControl and SetControl wrap the legacy
// VIDIOC_*CTRL ioctls. Inputs, analog standards and tuners are exposed
// through Inputs, Standards and Tuner.
//
// # HDMI Signal Detection
//
// For HDMI capture devices, check signal status:
//
//	status := v4l2.GetDVTimings("/dev/video0")
//	if status.State == v4l2.SignalStateLocked {
//	    fmt.Printf("Signal: %dx%d @ %.2f fps\n", status.Width, status.Height, status.FPS)
//	}
//
// Source change events (an HDMI input switching resolution) are consumed
// without blocking via SubscribeSourceChange and PendingSourceChange.
package v4l2
