//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Formats returns all supported capture pixel formats.
func (d *Device) Formats() ([]FormatInfo, error) {
	var formats []FormatInfo

	for i := uint32(0); ; i++ {
		fmtdesc := v4l2Fmtdesc{
			index: i,
			typ:   v4l2BufTypeVideoCapture,
		}

		if err := ioctl(d.fd, vidiocEnumFmt, unsafe.Pointer(&fmtdesc)); err != nil {
			if errors.Is(err, unix.EINVAL) {
				break // End of enumeration
			}
			return nil, fmt.Errorf("failed to enumerate format %d: %w", i, err)
		}

		if enumWrapped(i, &fmtdesc, formats) {
			break
		}

		formats = append(formats, FormatInfo{
			PixelFormat: fmtdesc.pixelformat,
			FormatName:  cstr(fmtdesc.description[:]),
			Emulated:    fmtdesc.flags&v4l2FmtFlagEmulated != 0,
			Compressed:  fmtdesc.flags&v4l2FmtFlagCompressed != 0,
		})
	}

	return formats, nil
}

// enumWrapped reports the end of a VIDIOC_ENUM_FMT walk on drivers that wrap
// around or ignore the requested index instead of returning EINVAL.
func enumWrapped(req uint32, desc *v4l2Fmtdesc, formats []FormatInfo) bool {
	if desc.index != req {
		return true
	}
	return len(formats) > 0 && formats[0].PixelFormat == desc.pixelformat
}

// FrameSizes returns the supported resolutions for a pixel format. Stepwise
// and continuous ranges are reported as the common resolutions they contain.
func (d *Device) FrameSizes(pixelFormat uint32) ([]Resolution, error) {
	var resolutions []Resolution

	for i := uint32(0); ; i++ {
		frmsize := v4l2Frmsizeenum{
			index:       i,
			pixelFormat: pixelFormat,
		}

		if err := ioctl(d.fd, vidiocEnumFramesizes, unsafe.Pointer(&frmsize)); err != nil {
			if errors.Is(err, unix.EINVAL) {
				break // End of enumeration
			}
			// ENOTTY means device doesn't support frame size enumeration
			if errors.Is(err, unix.ENOTTY) {
				return []Resolution{}, nil
			}
			return nil, fmt.Errorf("failed to enumerate frame size %d: %w", i, err)
		}

		switch frmsize.typ {
		case v4l2FrmsizeTypeDiscrete:
			resolutions = append(resolutions, Resolution{
				Width:  frmsize.discrete.width,
				Height: frmsize.discrete.height,
			})
		case v4l2FrmsizeTypeContinuous, v4l2FrmsizeTypeStepwise:
			stepwise := (*v4l2FrmsizeStepwise)(unsafe.Pointer(&frmsize.discrete))
			return append(resolutions, stepwiseResolutions(stepwise)...), nil
		}
	}

	return resolutions, nil
}

// FrameIntervals returns the supported framerates for a format and resolution.
func (d *Device) FrameIntervals(pixelFormat uint32, width, height uint32) ([]Framerate, error) {
	var framerates []Framerate

	for i := uint32(0); ; i++ {
		frmival := v4l2Frmivalenum{
			index:       i,
			pixelFormat: pixelFormat,
			width:       width,
			height:      height,
		}

		if err := ioctl(d.fd, vidiocEnumFrameintervals, unsafe.Pointer(&frmival)); err != nil {
			if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOTTY) {
				break // End of enumeration
			}
			return nil, fmt.Errorf("failed to enumerate frame interval %d: %w", i, err)
		}

		switch frmival.typ {
		case v4l2FrmivalTypeDiscrete:
			framerates = append(framerates, Framerate{
				Numerator:   frmival.discrete.numerator,
				Denominator: frmival.discrete.denominator,
			})
		case v4l2FrmivalTypeContinuous, v4l2FrmivalTypeStepwise:
			return append(framerates, commonFramerates()...), nil
		}
	}

	return framerates, nil
}

// TryFormat asks the driver to adjust pf without changing device state.
func (d *Device) TryFormat(pf PixFormat) (PixFormat, error) {
	return d.format(vidiocTryFmt, pf)
}

// SetFormat commits pf and returns the format the driver actually chose.
func (d *Device) SetFormat(pf PixFormat) (PixFormat, error) {
	return d.format(vidiocSFmt, pf)
}

// GetFormat returns the current capture format.
func (d *Device) GetFormat() (PixFormat, error) {
	f := v4l2Format{typ: v4l2BufTypeVideoCapture}
	if err := ioctl(d.fd, vidiocGFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, err
	}
	return decodePix(&f.pix), nil
}

func (d *Device) format(req uint, pf PixFormat) (PixFormat, error) {
	f := v4l2Format{typ: v4l2BufTypeVideoCapture}
	f.pix = v4l2PixFormat{
		width:        pf.Width,
		height:       pf.Height,
		pixelformat:  pf.PixelFormat,
		field:        pf.Field,
		bytesperline: pf.BytesPerLine,
		sizeimage:    pf.SizeImage,
	}
	if err := ioctl(d.fd, req, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, err
	}
	return decodePix(&f.pix), nil
}

func decodePix(p *v4l2PixFormat) PixFormat {
	return PixFormat{
		Width:        p.width,
		Height:       p.height,
		PixelFormat:  p.pixelformat,
		Field:        p.field,
		BytesPerLine: p.bytesperline,
		SizeImage:    p.sizeimage,
		Colorspace:   p.colorspace,
	}
}

// GetFormats returns all supported pixel formats for a device.
func GetFormats(devicePath string) ([]FormatInfo, error) {
	d, err := Open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	defer d.Close()
	return d.Formats()
}

// GetResolutions returns all supported resolutions for a device and pixel format.
func GetResolutions(devicePath string, pixelFormat uint32) ([]Resolution, error) {
	d, err := Open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	defer d.Close()
	return d.FrameSizes(pixelFormat)
}

// GetFramerates returns all supported framerates for a device, format, and resolution.
func GetFramerates(devicePath string, pixelFormat uint32, width, height uint32) ([]Framerate, error) {
	d, err := Open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	defer d.Close()
	return d.FrameIntervals(pixelFormat, width, height)
}

// stepwiseResolutions returns common resolutions within a stepwise range.
func stepwiseResolutions(sw *v4l2FrmsizeStepwise) []Resolution {
	commonResolutions := [][2]uint32{
		{320, 240},  // QVGA
		{640, 480},  // VGA
		{800, 600},  // SVGA
		{1024, 768}, // XGA
		{1280, 720}, // HD
		{1280, 960},
		{1280, 1024}, // SXGA
		{1920, 1080}, // Full HD
		{1920, 1200}, // WUXGA
		{2560, 1440}, // QHD
		{3840, 2160}, // 4K UHD
		{4096, 2160}, // 4K DCI
	}

	var resolutions []Resolution
	for _, res := range commonResolutions {
		w, h := res[0], res[1]
		if w >= sw.minWidth && w <= sw.maxWidth &&
			h >= sw.minHeight && h <= sw.maxHeight {
			resolutions = append(resolutions, Resolution{Width: w, Height: h})
		}
	}
	if len(resolutions) == 0 && sw.maxWidth > 0 && sw.maxHeight > 0 {
		resolutions = append(resolutions, Resolution{Width: sw.maxWidth, Height: sw.maxHeight})
	}

	return resolutions
}

func commonFramerates() []Framerate {
	return []Framerate{
		{1, 60}, // 60 fps
		{1, 50}, // 50 fps
		{1, 30}, // 30 fps
		{1, 25}, // 25 fps
		{1, 20}, // 20 fps
		{1, 15}, // 15 fps
		{1, 10}, // 10 fps
		{1, 5},  // 5 fps
	}
}

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	b := make([]byte, 4)
	b[0] = byte(format & 0xFF)
	b[1] = byte((format >> 8) & 0xFF)
	b[2] = byte((format >> 16) & 0xFF)
	b[3] = byte((format >> 24) & 0xFF)
	return string(b)
}
