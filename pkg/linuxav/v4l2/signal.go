//go:build linux

package v4l2

import (
	"encoding/binary"
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrEventsNotSupported is returned when the device doesn't support V4L2 events.
var ErrEventsNotSupported = unix.ENOTSUP

// SourceChangeResolution is set in the change mask when the input resolution changed.
const SourceChangeResolution = 0x0001

// GetDeviceStatus returns the combined device type and ready status.
func GetDeviceStatus(devicePath string) DeviceStatus {
	status := DeviceStatus{
		DeviceType: DeviceTypeUnknown,
		Ready:      false,
	}

	d, err := Open(devicePath)
	if err != nil {
		return status
	}
	defer d.Close()

	caps, err := d.Capability()
	if err != nil {
		return status
	}

	// Try to get DV timings - if it works or returns specific errors, it's HDMI
	timings := v4l2DVTimings{}
	err = ioctl(d.fd, vidiocGDVTimings, unsafe.Pointer(&timings))

	if err == nil || errors.Is(err, unix.ENOLINK) || errors.Is(err, unix.ENOLCK) {
		status.DeviceType = DeviceTypeHDMI
		if err == nil && timingsValid(&timings.bt) {
			status.Ready = true
		}
		return status
	}

	if caps.Driver == "uvcvideo" {
		status.DeviceType = DeviceTypeWebcam
	}

	// Openable means ready
	status.Ready = true
	return status
}

// GetDVTimings returns the current DV timings and signal status for HDMI devices.
func GetDVTimings(devicePath string) SignalStatus {
	d, err := Open(devicePath)
	if err != nil {
		return SignalStatus{State: SignalStateNoDevice}
	}
	defer d.Close()
	return d.DVTimings()
}

// DVTimings returns the current DV timings and signal status.
func (d *Device) DVTimings() SignalStatus {
	var status SignalStatus

	timings := v4l2DVTimings{}
	err := ioctl(d.fd, vidiocGDVTimings, unsafe.Pointer(&timings))
	if err == nil {
		if timingsValid(&timings.bt) {
			status.State = SignalStateLocked
			status.Width = timings.bt.width
			status.Height = timings.bt.height
			status.FPS = calculateFPS(&timings.bt)
			status.Interlaced = timings.bt.interlaced != 0
		} else {
			status.State = SignalStateNoSignal
		}
		return status
	}

	switch {
	case errors.Is(err, unix.ENOLINK):
		status.State = SignalStateNoLink
	case errors.Is(err, unix.ENOLCK):
		status.State = SignalStateUnstable
	case errors.Is(err, unix.ERANGE):
		status.State = SignalStateOutOfRange
	case errors.Is(err, unix.ENOTTY):
		status.State = SignalStateNotSupported
	default:
		status.State = SignalStateNoSignal
	}

	return status
}

// SubscribeSourceChange subscribes the descriptor to source change events.
// Pending events make the descriptor report POLLPRI.
func (d *Device) SubscribeSourceChange() error {
	sub := v4l2EventSubscription{typ: v4l2EventSourceChange}
	if err := ioctl(d.fd, vidiocSubscribeEvent, unsafe.Pointer(&sub)); err != nil {
		if errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EINVAL) {
			return ErrEventsNotSupported
		}
		return err
	}
	return nil
}

// UnsubscribeSourceChange drops a subscription made by SubscribeSourceChange.
func (d *Device) UnsubscribeSourceChange() error {
	sub := v4l2EventSubscription{typ: v4l2EventSourceChange}
	return ioctl(d.fd, vidiocUnsubscribeEvent, unsafe.Pointer(&sub))
}

// PendingSourceChange dequeues queued events without blocking and returns
// the union of their source change masks. It returns 0 when none are queued.
func (d *Device) PendingSourceChange() (uint32, error) {
	var changes uint32
	for {
		event := v4l2Event{}
		if err := ioctl(d.fd, vidiocDqevent, unsafe.Pointer(&event)); err != nil {
			if errors.Is(err, unix.ENOENT) {
				return changes, nil
			}
			return changes, err
		}
		if event.typ == v4l2EventSourceChange {
			changes |= binary.LittleEndian.Uint32(event.u[:4])
		}
		if event.pending == 0 {
			return changes, nil
		}
	}
}

func timingsValid(bt *v4l2BTTimings) bool {
	return bt.width > 0 && bt.height > 0 && bt.pixelclock() > 0
}

// calculateFPS calculates the frame rate from DV timings.
func calculateFPS(bt *v4l2BTTimings) float64 {
	pixelclock := bt.pixelclock()
	if pixelclock == 0 {
		return 0
	}

	totalWidth := uint64(bt.width + bt.hfrontporch + bt.hsync + bt.hbackporch)
	totalHeight := uint64(bt.height + bt.vfrontporch + bt.vsync + bt.vbackporch)

	if bt.interlaced != 0 {
		totalHeight /= 2
	}

	if totalWidth == 0 || totalHeight == 0 {
		return 0
	}

	return float64(pixelclock) / float64(totalWidth*totalHeight)
}
