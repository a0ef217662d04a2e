//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Inputs enumerates the video inputs of the device.
func (d *Device) Inputs() ([]InputInfo, error) {
	var inputs []InputInfo
	for i := uint32(0); ; i++ {
		in := v4l2Input{index: i}
		if err := ioctl(d.fd, vidiocEnuminput, unsafe.Pointer(&in)); err != nil {
			if errors.Is(err, unix.EINVAL) {
				break
			}
			return nil, fmt.Errorf("failed to enumerate input %d: %w", i, err)
		}
		inputs = append(inputs, InputInfo{
			Index:  in.index,
			Name:   cstr(in.name[:]),
			Type:   in.typ,
			Tuner:  in.tuner,
			Std:    in.std,
			Status: in.status,
		})
	}
	return inputs, nil
}

// GetInput returns the index of the active input.
func (d *Device) GetInput() (uint32, error) {
	var index int32
	if err := ioctl(d.fd, vidiocGInput, unsafe.Pointer(&index)); err != nil {
		return 0, err
	}
	return uint32(index), nil
}

// SetInput selects the active input.
func (d *Device) SetInput(index uint32) error {
	v := int32(index)
	return ioctl(d.fd, vidiocSInput, unsafe.Pointer(&v))
}

// Standards enumerates the analog video standards of the active input.
func (d *Device) Standards() ([]StandardInfo, error) {
	var stds []StandardInfo
	for i := uint32(0); ; i++ {
		s := v4l2Standard{index: i}
		if err := ioctl(d.fd, vidiocEnumstd, unsafe.Pointer(&s)); err != nil {
			if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENODATA) || errors.Is(err, unix.ENOTTY) {
				break
			}
			return nil, fmt.Errorf("failed to enumerate standard %d: %w", i, err)
		}
		stds = append(stds, StandardInfo{
			Index: s.index,
			ID:    s.id,
			Name:  cstr(s.name[:]),
			FramePeriod: Framerate{
				Numerator:   s.frameperiod.numerator,
				Denominator: s.frameperiod.denominator,
			},
			FrameLines: s.framelines,
		})
	}
	return stds, nil
}

// GetStandard returns the active standard mask.
func (d *Device) GetStandard() (uint64, error) {
	var id uint64
	if err := ioctl(d.fd, vidiocGStd, unsafe.Pointer(&id)); err != nil {
		return 0, err
	}
	return id, nil
}

// SetStandard selects a standard.
func (d *Device) SetStandard(id uint64) error {
	return ioctl(d.fd, vidiocSStd, unsafe.Pointer(&id))
}

// Tuner describes tuner index.
func (d *Device) Tuner(index uint32) (TunerInfo, error) {
	t := v4l2Tuner{index: index}
	if err := ioctl(d.fd, vidiocGTuner, unsafe.Pointer(&t)); err != nil {
		return TunerInfo{}, err
	}
	return TunerInfo{
		Index:      t.index,
		Name:       cstr(t.name[:]),
		Type:       t.typ,
		Capability: t.capability,
		RangeLow:   t.rangelow,
		RangeHigh:  t.rangehigh,
		Signal:     t.signal,
	}, nil
}

// GetFrequency returns the frequency of a tuner in tuner units.
func (d *Device) GetFrequency(tuner uint32) (uint32, error) {
	f := v4l2Frequency{tuner: tuner}
	if err := ioctl(d.fd, vidiocGFrequency, unsafe.Pointer(&f)); err != nil {
		return 0, err
	}
	return f.frequency, nil
}

// SetFrequency tunes a tuner of the given type.
func (d *Device) SetFrequency(tuner, typ, frequency uint32) error {
	f := v4l2Frequency{tuner: tuner, typ: typ, frequency: frequency}
	return ioctl(d.fd, vidiocSFrequency, unsafe.Pointer(&f))
}
