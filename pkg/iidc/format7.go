package iidc

import (
	"fmt"
	"time"
)

// ColorCoding is an IIDC Format7 color coding id.
type ColorCoding uint32

// Color codings.
const (
	CodingMono8 ColorCoding = iota
	CodingYUV411
	CodingYUV422
	CodingYUV444
	CodingRGB8
	CodingMono16
	CodingRGB16
	CodingMono16S
	CodingRGB16S
	CodingRaw8
	CodingRaw16
)

var codingInfo = map[ColorCoding]struct {
	name string
	bpp  int
}{
	CodingMono8:   {"MONO8", 8},
	CodingYUV411:  {"YUV411", 12},
	CodingYUV422:  {"YUV422", 16},
	CodingYUV444:  {"YUV444", 24},
	CodingRGB8:    {"RGB8", 24},
	CodingMono16:  {"MONO16", 16},
	CodingRGB16:   {"RGB16", 48},
	CodingMono16S: {"MONO16S", 16},
	CodingRGB16S:  {"RGB16S", 48},
	CodingRaw8:    {"RAW8", 8},
	CodingRaw16:   {"RAW16", 16},
}

// BitsPerPixel returns the packed bits per pixel, or 0 when unknown.
func (c ColorCoding) BitsPerPixel() int { return codingInfo[c].bpp }

func (c ColorCoding) String() string {
	if info, ok := codingInfo[c]; ok {
		return info.name
	}
	return fmt.Sprintf("coding-%d", uint32(c))
}

// Format7Mode is the inquiry data of one scalable image mode.
type Format7Mode struct {
	Mode       uint32
	MaxWidth   uint32
	MaxHeight  uint32
	UnitWidth  uint32
	UnitHeight uint32
	Codings    []ColorCoding

	csr uint64
}

// PacketInfo describes the isochronous packetization of a Format7 image.
type PacketInfo struct {
	UnitBytes       uint32
	MaxBytes        uint32
	BytesPerPacket  uint32
	PacketsPerFrame uint32
	TotalBytes      uint64
}

// ValueSettingTimeout bounds the wait for a Format7 value setting to apply.
var ValueSettingTimeout = 500 * time.Millisecond

// Format7Modes returns the available Format7 modes. A camera without
// Format7 yields ErrUnsupported.
func (c *Camera) Format7Modes() ([]Format7Mode, error) {
	formats, err := c.read(regVFormatInq)
	if err != nil {
		return nil, fmt.Errorf("inquire formats: %w", err)
	}
	if formats&formatBit7 == 0 {
		return nil, fmt.Errorf("%w: format 7", ErrUnsupported)
	}
	modes, err := c.read(regVModeInq7)
	if err != nil {
		return nil, fmt.Errorf("inquire format 7 modes: %w", err)
	}

	var out []Format7Mode
	for m := uint32(0); m < format7Modes; m++ {
		if modes&(1<<(31-m)) == 0 {
			continue
		}
		mode, modeErr := c.format7Mode(m)
		if modeErr != nil {
			return nil, modeErr
		}
		out = append(out, mode)
	}
	return out, nil
}

func (c *Camera) format7Mode(m uint32) (Format7Mode, error) {
	off, err := c.read(regVCSRInq7 + uint64(m)*4)
	if err != nil {
		return Format7Mode{}, fmt.Errorf("inquire format 7 mode %d: %w", m, err)
	}
	mode := Format7Mode{Mode: m, csr: csrBase + uint64(off)*4}

	maxSize, err := c.bus.ReadQuadlet(mode.csr + f7MaxImageSize)
	if err != nil {
		return Format7Mode{}, fmt.Errorf("mode %d max size: %w", m, err)
	}
	unit, err := c.bus.ReadQuadlet(mode.csr + f7UnitSize)
	if err != nil {
		return Format7Mode{}, fmt.Errorf("mode %d unit size: %w", m, err)
	}
	codings, err := c.bus.ReadQuadlet(mode.csr + f7ColorCodingInq)
	if err != nil {
		return Format7Mode{}, fmt.Errorf("mode %d codings: %w", m, err)
	}

	mode.MaxWidth, mode.MaxHeight = maxSize>>16, maxSize&0xffff
	mode.UnitWidth, mode.UnitHeight = unit>>16, unit&0xffff
	for i := uint32(0); i < maxColorCodings; i++ {
		if codings&(1<<(31-i)) != 0 {
			mode.Codings = append(mode.Codings, ColorCoding(i))
		}
	}
	return mode, nil
}

// SetFormat7 selects mode, coding and a full-sensor-width image of the given
// size at the origin, then reads back the packet parameters.
func (c *Camera) SetFormat7(mode Format7Mode, coding ColorCoding, width, height uint32) (PacketInfo, error) {
	if err := c.SetVideoMode(format7, mode.Mode, 0); err != nil {
		return PacketInfo{}, err
	}
	writes := []struct {
		off uint64
		v   uint32
	}{
		{f7ImagePosition, 0},
		{f7ImageSize, width<<16 | height},
		{f7ColorCodingID, uint32(coding) << colorCodingShift},
	}
	for _, w := range writes {
		if err := c.bus.WriteQuadlet(mode.csr+w.off, w.v); err != nil {
			return PacketInfo{}, fmt.Errorf("format 7 register %#x: %w", w.off, err)
		}
	}
	if err := c.applyValueSetting(mode); err != nil {
		return PacketInfo{}, err
	}
	return c.PacketInfo(mode)
}

// applyValueSetting latches Format7 registers on cameras implementing
// VALUE_SETTING and reports a setting error.
func (c *Camera) applyValueSetting(mode Format7Mode) error {
	v, err := c.bus.ReadQuadlet(mode.csr + f7ValueSetting)
	if err != nil || v&inqPresence == 0 {
		return nil
	}
	if err := c.bus.WriteQuadlet(mode.csr+f7ValueSetting, valueSetting1); err != nil {
		return fmt.Errorf("value setting: %w", err)
	}
	deadline := time.Now().Add(ValueSettingTimeout)
	for {
		v, err = c.bus.ReadQuadlet(mode.csr + f7ValueSetting)
		if err != nil {
			return fmt.Errorf("value setting: %w", err)
		}
		if v&valueSetting1 == 0 {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: value setting did not complete", ErrFormat7)
		}
		time.Sleep(time.Millisecond)
	}
	if v&valueErrorFlag1 != 0 {
		return fmt.Errorf("%w: mode %d", ErrFormat7, mode.Mode)
	}
	return nil
}

// PacketInfo reads the packet parameters of the current Format7 setting.
func (c *Camera) PacketInfo(mode Format7Mode) (PacketInfo, error) {
	para, err := c.bus.ReadQuadlet(mode.csr + f7PacketParaInq)
	if err != nil {
		return PacketInfo{}, fmt.Errorf("packet parameters: %w", err)
	}
	bpp, err := c.bus.ReadQuadlet(mode.csr + f7BytePerPacket)
	if err != nil {
		return PacketInfo{}, fmt.Errorf("bytes per packet: %w", err)
	}
	hi, hiErr := c.bus.ReadQuadlet(mode.csr + f7TotalBytesHi)
	lo, loErr := c.bus.ReadQuadlet(mode.csr + f7TotalBytesLo)
	if hiErr != nil || loErr != nil {
		return PacketInfo{}, fmt.Errorf("total bytes: %w", firstErr(hiErr, loErr))
	}
	info := PacketInfo{
		UnitBytes:      para >> 16,
		MaxBytes:       para & 0xffff,
		BytesPerPacket: bpp >> 16,
		TotalBytes:     uint64(hi)<<32 | uint64(lo),
	}
	if info.BytesPerPacket == 0 {
		info.BytesPerPacket = bpp & 0xffff // recommended
	}
	info.PacketsPerFrame = c.packetsPerFrame(mode, info)
	return info, nil
}

func (c *Camera) packetsPerFrame(mode Format7Mode, info PacketInfo) uint32 {
	if ppf, err := c.bus.ReadQuadlet(mode.csr + f7PacketPerFrame); err == nil && ppf != 0 {
		return ppf
	}
	if info.BytesPerPacket == 0 {
		return 0
	}
	return uint32((info.TotalBytes + uint64(info.BytesPerPacket) - 1) / uint64(info.BytesPerPacket))
}

// SetPacketSize writes the bytes per packet, quantized to the unit and
// clamped to the maximum. Zero selects 4096 bytes.
func (c *Camera) SetPacketSize(mode Format7Mode, size uint32) (PacketInfo, error) {
	info, err := c.PacketInfo(mode)
	if err != nil {
		return PacketInfo{}, err
	}
	size = QuantizePacketSize(size, info.UnitBytes, info.MaxBytes)
	if err := c.bus.WriteQuadlet(mode.csr+f7BytePerPacket, size<<16); err != nil {
		return PacketInfo{}, fmt.Errorf("bytes per packet: %w", err)
	}
	if err := c.applyValueSetting(mode); err != nil {
		return PacketInfo{}, err
	}
	return c.PacketInfo(mode)
}

// QuantizePacketSize rounds size down to a multiple of unit, keeping it inside
// [unit, maxBytes]. Zero selects 4096.
func QuantizePacketSize(size, unit, maxBytes uint32) uint32 {
	if size == 0 {
		size = 4096
	}
	if unit == 0 {
		unit = 4
	}
	if maxBytes != 0 && size > maxBytes {
		size = maxBytes
	}
	size = size / unit * unit
	if size < unit {
		size = unit
	}
	return size
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
