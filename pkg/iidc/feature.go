package iidc

import (
	"fmt"
	"math"
)

// FeatureID indexes the IIDC feature register blocks.
type FeatureID int

// Features in register order. Gaps in the register map are skipped by
// featureOffset.
const (
	FeatureBrightness FeatureID = iota
	FeatureExposure
	FeatureSharpness
	FeatureWhiteBalance
	FeatureHue
	FeatureSaturation
	FeatureGamma
	FeatureShutter
	FeatureGain
	FeatureIris
	FeatureFocus
	FeatureTemperature
	FeatureTrigger
	FeatureTriggerDelay
	FeatureWhiteShading
	FeatureFrameRate
	FeatureZoom
	FeaturePan
	FeatureTilt
	FeatureOpticalFilter
	FeatureCaptureSize
	FeatureCaptureQuality
	featureCount
)

var featureNames = [featureCount]struct{ id, label string }{
	{"brightness", "Brightness"},
	{"exposure", "Exposure"},
	{"sharpness", "Sharpness"},
	{"white-balance", "White Bal."},
	{"hue", "Hue"},
	{"saturation", "Saturation"},
	{"gamma", "Gamma"},
	{"shutter", "Shutter"},
	{"gain", "Gain"},
	{"iris", "Iris"},
	{"focus", "Focus"},
	{"temperature", "Temperature"},
	{"trigger", "Trigger"},
	{"trigger-delay", "Trig. Delay"},
	{"white-shading", "White Shading"},
	{"frame-rate", "Frame Rate"},
	{"zoom", "Zoom"},
	{"pan", "Pan"},
	{"tilt", "Tilt"},
	{"optical-filter", "Optical Filter"},
	{"capture-size", "Capture Size"},
	{"capture-quality", "Capture Qual."},
}

// AllFeatures lists every feature id in register order.
func AllFeatures() []FeatureID {
	ids := make([]FeatureID, featureCount)
	for i := range ids {
		ids[i] = FeatureID(i)
	}
	return ids
}

// Key returns the lowercase control id of the feature.
func (f FeatureID) Key() string {
	if f < 0 || f >= featureCount {
		return fmt.Sprintf("feature-%d", int(f))
	}
	return featureNames[f].id
}

// Label returns the short display label of the feature.
func (f FeatureID) Label() string {
	if f < 0 || f >= featureCount {
		return f.Key()
	}
	return featureNames[f].label
}

func (f FeatureID) String() string { return f.Key() }

// featureOffset returns the quadlet offset of the feature within the
// inquiry, control and absolute CSR banks.
func featureOffset(f FeatureID) uint64 {
	switch {
	case f <= FeatureFrameRate:
		return uint64(f) * 4
	case f <= FeatureOpticalFilter:
		return 0x80 + uint64(f-FeatureZoom)*4
	default:
		return 0xc0 + uint64(f-FeatureCaptureSize)*4
	}
}

// Feature is the decoded inquiry register of a feature.
type Feature struct {
	ID       FeatureID
	Present  bool
	Absolute bool
	OnePush  bool
	Readout  bool
	OnOff    bool
	Auto     bool
	Manual   bool
	Min      uint32
	Max      uint32

	// Absolute range, valid when Absolute is set.
	AbsMin float32
	AbsMax float32
}

// Modes reports whether the feature can be switched at all.
func (f Feature) Modes() bool {
	return f.OnOff || f.Auto || f.Manual
}

func decodeInquiry(id FeatureID, v uint32) Feature {
	return Feature{
		ID:       id,
		Present:  v&inqPresence != 0,
		Absolute: v&inqAbs != 0,
		OnePush:  v&inqOnePush != 0,
		Readout:  v&inqReadout != 0,
		OnOff:    v&inqOnOff != 0,
		Auto:     v&inqAuto != 0,
		Manual:   v&inqManual != 0,
		Min:      (v >> 12) & 0xfff,
		Max:      v & 0xfff,
	}
}

// FeatureState is the decoded control register of a feature.
type FeatureState struct {
	On       bool
	Auto     bool
	Absolute bool
	Value    uint32
}

// Mode is the IIDC operating mode of a feature.
type Mode int

// Feature modes.
const (
	ModeOff Mode = iota
	ModeAuto
	ModeManual
)

// Mode returns the operating mode of the state.
func (s FeatureState) Mode() Mode {
	switch {
	case !s.On:
		return ModeOff
	case s.Auto:
		return ModeAuto
	default:
		return ModeManual
	}
}

// Feature reads the inquiry register, and the absolute range when present.
func (c *Camera) Feature(id FeatureID) (Feature, error) {
	v, err := c.read(regFeatureInq + featureOffset(id))
	if err != nil {
		return Feature{}, fmt.Errorf("inquire %s: %w", id, err)
	}
	f := decodeInquiry(id, v)
	if f.Present && f.Absolute {
		base, absErr := c.absCSR(id)
		if absErr != nil {
			f.Absolute = false
			return f, nil
		}
		lo, loErr := c.bus.ReadQuadlet(base + absMin)
		hi, hiErr := c.bus.ReadQuadlet(base + absMax)
		if loErr != nil || hiErr != nil {
			f.Absolute = false
			return f, nil
		}
		f.AbsMin = math.Float32frombits(lo)
		f.AbsMax = math.Float32frombits(hi)
	}
	return f, nil
}

// Features inquires every feature and returns the present ones.
func (c *Camera) Features() ([]Feature, error) {
	var out []Feature
	for _, id := range AllFeatures() {
		f, err := c.Feature(id)
		if err != nil {
			return nil, err
		}
		if f.Present {
			out = append(out, f)
		}
	}
	return out, nil
}

// State reads the control register of a feature.
func (c *Camera) State(id FeatureID) (FeatureState, error) {
	v, err := c.read(regFeatureCtrl + featureOffset(id))
	if err != nil {
		return FeatureState{}, fmt.Errorf("read %s: %w", id, err)
	}
	return FeatureState{
		On:       v&ctlOn != 0,
		Auto:     v&ctlAuto != 0,
		Absolute: v&ctlAbs != 0,
		Value:    v & ctlValue,
	}, nil
}

func (c *Camera) updateControl(id FeatureID, fn func(uint32) uint32) error {
	off := regFeatureCtrl + featureOffset(id)
	v, err := c.read(off)
	if err != nil {
		return fmt.Errorf("read %s: %w", id, err)
	}
	if err := c.write(off, fn(v)); err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	return nil
}

// SetMode switches a feature between off, auto and manual.
func (c *Camera) SetMode(id FeatureID, m Mode) error {
	return c.updateControl(id, func(v uint32) uint32 {
		v &^= ctlOn | ctlAuto | ctlOnePush
		switch m {
		case ModeAuto:
			v |= ctlOn | ctlAuto
		case ModeManual:
			v |= ctlOn
		}
		return v | ctlPresence
	})
}

// SetValue writes the 12-bit manual value of a feature.
func (c *Camera) SetValue(id FeatureID, value uint32) error {
	return c.updateControl(id, func(v uint32) uint32 {
		return v&^ctlValue | value&ctlValue
	})
}

// SetAbsoluteControl selects absolute rather than 12-bit value control.
func (c *Camera) SetAbsoluteControl(id FeatureID, on bool) error {
	return c.updateControl(id, func(v uint32) uint32 {
		if on {
			return v | ctlAbs
		}
		return v &^ ctlAbs
	})
}

func (c *Camera) absCSR(id FeatureID) (uint64, error) {
	v, err := c.read(regAbsCSRInq + featureOffset(id))
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, fmt.Errorf("%w: absolute CSR for %s", ErrUnsupported, id)
	}
	return csrBase + uint64(v)*4, nil
}

// AbsoluteValue reads the absolute value of a feature.
func (c *Camera) AbsoluteValue(id FeatureID) (float32, error) {
	base, err := c.absCSR(id)
	if err != nil {
		return 0, err
	}
	v, err := c.bus.ReadQuadlet(base + absValue)
	if err != nil {
		return 0, fmt.Errorf("read absolute %s: %w", id, err)
	}
	return math.Float32frombits(v), nil
}

// SetAbsoluteValue writes the absolute value of a feature.
func (c *Camera) SetAbsoluteValue(id FeatureID, value float32) error {
	base, err := c.absCSR(id)
	if err != nil {
		return err
	}
	if err := c.bus.WriteQuadlet(base+absValue, math.Float32bits(value)); err != nil {
		return fmt.Errorf("write absolute %s: %w", id, err)
	}
	return nil
}

// WhiteBalance returns the U/B and V/R values.
func (c *Camera) WhiteBalance() (ub, vr uint32, err error) {
	v, err := c.read(regFeatureCtrl + featureOffset(FeatureWhiteBalance))
	if err != nil {
		return 0, 0, fmt.Errorf("read white balance: %w", err)
	}
	return (v >> 12) & 0xfff, v & 0xfff, nil
}

// SetWhiteBalance writes the U/B and V/R values.
func (c *Camera) SetWhiteBalance(ub, vr uint32) error {
	return c.updateControl(FeatureWhiteBalance, func(v uint32) uint32 {
		return v&^0xffffff | (ub&0xfff)<<12 | vr&0xfff
	})
}
