package iidc

import (
	"fmt"
)

// Camera drives one IIDC camera over a Bus.
type Camera struct {
	bus  Bus
	base uint64
	info ROMInfo
}

// NewCamera creates a camera using the command base found in info.
func NewCamera(bus Bus, info ROMInfo) *Camera {
	base := info.CommandBase
	if base == 0 {
		base = DefaultCommandBase
	}
	return &Camera{bus: bus, base: base, info: info}
}

// Info returns the ROM identity of the camera.
func (c *Camera) Info() ROMInfo { return c.info }

func (c *Camera) read(off uint64) (uint32, error) {
	return c.bus.ReadQuadlet(c.base + off)
}

func (c *Camera) write(off uint64, v uint32) error {
	return c.bus.WriteQuadlet(c.base+off, v)
}

// Reset restores factory defaults.
func (c *Camera) Reset() error {
	return c.write(regInitialize, initializeBit)
}

// SetVideoMode selects the current format, mode and frame rate.
func (c *Camera) SetVideoMode(format, mode, rate uint32) error {
	if err := c.write(regCurVFormat, format<<29); err != nil {
		return fmt.Errorf("set format %d: %w", format, err)
	}
	if err := c.write(regCurVMode, mode<<29); err != nil {
		return fmt.Errorf("set mode %d: %w", mode, err)
	}
	if format != format7 {
		if err := c.write(regCurVFrameRate, rate<<29); err != nil {
			return fmt.Errorf("set rate %d: %w", rate, err)
		}
	}
	return nil
}

// SetISOChannel sets the legacy isochronous channel and speed.
func (c *Camera) SetISOChannel(channel, speed uint32) error {
	return c.write(regISOChannel, (channel&0xf)<<28|(speed&0x3)<<24)
}

// SetTransmission starts or stops isochronous transmission.
func (c *Camera) SetTransmission(on bool) error {
	v := uint32(0)
	if on {
		v = isoEnableBit
	}
	return c.write(regISOEnable, v)
}

// Transmitting reports whether isochronous transmission is enabled.
func (c *Camera) Transmitting() (bool, error) {
	v, err := c.read(regISOEnable)
	if err != nil {
		return false, err
	}
	return v&isoEnableBit != 0, nil
}

// EnableFrameInfo turns on the Point Grey embedded frame information so the
// first quadlet of every frame carries the cycle timer at exposure start.
// It reports false for cameras without the register.
func (c *Camera) EnableFrameInfo() (bool, error) {
	if c.info.VendorID != VendorPointGrey {
		return false, nil
	}
	v, err := c.read(pgrFrameInfo)
	if err != nil {
		return false, err
	}
	if v&inqPresence == 0 {
		return false, nil
	}
	if err := c.write(pgrFrameInfo, v|pgrFrameInfoEnable); err != nil {
		return false, err
	}
	return true, nil
}
