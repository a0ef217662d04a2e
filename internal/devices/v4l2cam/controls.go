//go:build linux

package v4l2cam

import (
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/pkg/linuxav/v4l2"
)

// Descriptor tokens carry the control source in the high word and the
// V4L2 id or tuner index in the low word.
const (
	tokenCID      uint64 = 0
	tokenInput    uint64 = 1 << 32
	tokenStandard uint64 = 2 << 32
	tokenTuner    uint64 = 3 << 32
)

const (
	maxTuners       = 4
	maxTunerFreq    = 16000
	privateControls = 100
)

func tokenKind(t uint64) uint64 { return t &^ 0xffffffff }
func tokenArg(t uint64) uint32  { return uint32(t) }

var controlNames = map[uint32]string{
	v4l2.CIDBrightness:            "brightness",
	v4l2.CIDContrast:              "contrast",
	v4l2.CIDSaturation:            "saturation",
	v4l2.CIDHue:                   "hue",
	v4l2.CIDAudioVolume:           "audio-volume",
	v4l2.CIDAudioBalance:          "audio-balance",
	v4l2.CIDAudioBass:             "audio-bass",
	v4l2.CIDAudioTreble:           "treble",
	v4l2.CIDAudioMute:             "audio-mute",
	v4l2.CIDAudioLoudness:         "audio-loudness",
	v4l2.CIDBlackLevel:            "black-level",
	v4l2.CIDAutoWhiteBalance:      "auto-white-balance",
	v4l2.CIDDoWhiteBalance:        "do-white-balance",
	v4l2.CIDRedBalance:            "white-balance-red",
	v4l2.CIDBlueBalance:           "white-balance-blue",
	v4l2.CIDGamma:                 "gamma",
	v4l2.CIDExposure:              "exposure",
	v4l2.CIDAutogain:              "auto-gain",
	v4l2.CIDGain:                  "gain",
	v4l2.CIDHFlip:                 "h-flip",
	v4l2.CIDVFlip:                 "v-flip",
	v4l2.CIDHCenter:               "h-center",
	v4l2.CIDVCenter:               "v-center",
	v4l2.CIDPowerLineFrequency:    "power-line-frequency",
	v4l2.CIDHueAuto:               "hue-auto",
	v4l2.CIDWhiteBalanceTemp:      "white-balance-temperature",
	v4l2.CIDSharpness:             "sharpness",
	v4l2.CIDBacklightCompensation: "backlight-compensation",
	v4l2.CIDExposureAuto:          "exposure-mode",
	v4l2.CIDExposureAbsolute:      "exposure",
	v4l2.CIDExposureAutoPriority:  "exposure-auto-priority",
	v4l2.CIDFocusAbsolute:         "focus",
	v4l2.CIDFocusAuto:             "focus-auto",
	v4l2.CIDZoomAbsolute:          "zoom",
	v4l2.CIDPanAbsolute:           "pan",
	v4l2.CIDTiltAbsolute:          "tilt",
}

// modeDependents lists the controls each automatic mode governs.
var modeDependents = map[uint32][]uint32{
	v4l2.CIDAutoWhiteBalance: {v4l2.CIDRedBalance, v4l2.CIDBlueBalance, v4l2.CIDWhiteBalanceTemp, v4l2.CIDDoWhiteBalance},
	v4l2.CIDAutogain:         {v4l2.CIDGain},
	v4l2.CIDHueAuto:          {v4l2.CIDHue},
	v4l2.CIDExposureAuto:     {v4l2.CIDExposureAbsolute, v4l2.CIDExposure},
	v4l2.CIDFocusAuto:        {v4l2.CIDFocusAbsolute},
}

func controlName(id uint32) string {
	if name, ok := controlNames[id]; ok {
		return name
	}
	return "control-" + strconv.FormatUint(uint64(id), 10)
}

// DiscoverControls implements capture.ControlBackend.
func (c *Camera) DiscoverControls(r *capture.Registry) error {
	c.menuMin = make(map[uint32]int32)
	c.tuners = make(map[uint32]v4l2.TunerInfo)

	inputIdx := c.addInputControl(r)
	stdIdx := c.addStandardControl(r)
	tunerIdx := c.addTunerControls(r)
	if inputIdx >= 0 {
		r.Depend(inputIdx, append([]int{stdIdx}, tunerIdx...)...)
	}

	byCID := make(map[uint32]int)
	var update []int
	scan := func(first, last uint32, stopOnMissing bool) {
		for id := first; id < last; id++ {
			info, err := c.dev.QueryControl(id)
			if err != nil {
				if errors.Is(err, unix.EINVAL) {
					if stopOnMissing {
						return
					}
					continue
				}
				c.logger.Debug("Control query failed", "id", id, "error", err)
				continue
			}
			if info.Disabled() {
				continue
			}
			idx, ok := c.addControl(r, info)
			if !ok {
				continue
			}
			byCID[id] = idx
			if info.Flags&v4l2.CtrlFlagUpdate != 0 {
				update = append(update, idx)
			}
		}
	}
	scan(v4l2.CIDBase, v4l2.CIDLastP1, false)
	scan(v4l2.CIDCameraClassBase, v4l2.CIDCameraLastP1, false)
	scan(v4l2.CIDPrivateBase, v4l2.CIDPrivateBase+privateControls, true)

	for mode, deps := range modeDependents {
		modeIdx, ok := byCID[mode]
		if !ok {
			continue
		}
		for _, dep := range deps {
			if depIdx, ok := byCID[dep]; ok {
				r.Depend(modeIdx, depIdx)
			}
		}
	}
	for _, idx := range update {
		all := make([]int, 0, r.Len())
		for i := 0; i < r.Len(); i++ {
			all = append(all, i)
		}
		r.Depend(idx, all...)
	}
	return nil
}

// addControl adds one queried control. ok is false for unsupported types.
func (c *Camera) addControl(r *capture.Registry, info v4l2.ControlInfo) (int, bool) {
	id := controlName(info.ID)
	if _, taken := r.Index(id); taken {
		id = "control-" + strconv.FormatUint(uint64(info.ID), 10)
	}

	d := capture.ControlDescriptor{
		ID:      id,
		Label:   info.Name,
		Enabled: controlEnabled(info),
		Token:   tokenCID | uint64(info.ID),
	}
	switch info.Type {
	case v4l2.CtrlTypeInteger:
		d.Kind = capture.KindInteger
		d.Int = capture.IntRange{Min: int64(info.Minimum), Max: int64(info.Maximum), Step: int64(info.Step)}
		d.Value = capture.IntValue(int64(info.Default))
	case v4l2.CtrlTypeBoolean:
		d.Kind = capture.KindBoolean
		d.Value = capture.BoolValue(info.Default != 0)
	case v4l2.CtrlTypeMenu:
		d.Kind = capture.KindEnum
		d.Options = c.menuOptions(info)
		c.menuMin[info.ID] = info.Minimum
		d.Value = capture.IntValue(int64(info.Default - info.Minimum))
	case v4l2.CtrlTypeButton:
		d.Kind = capture.KindButton
		d.OneShot = true
	case v4l2.CtrlTypeInteger64:
		c.logger.Warn("Skipping unsupported 64-bit control", "control", info.Name)
		return 0, false
	default:
		c.logger.Debug("Skipping control of unsupported type", "control", info.Name, "type", info.Type)
		return 0, false
	}

	if d.Kind != capture.KindButton {
		if v, err := c.dev.GetControl(info.ID); err == nil {
			d.Value = c.fromHardware(&d, info.ID, v)
		}
	}
	return r.Add(d), true
}

func controlEnabled(info v4l2.ControlInfo) bool {
	return info.Flags&(v4l2.CtrlFlagDisabled|v4l2.CtrlFlagReadOnly|v4l2.CtrlFlagInactive) == 0
}

// menuOptions reads menu labels from Minimum. The first failing index ends
// the list.
func (c *Camera) menuOptions(info v4l2.ControlInfo) []capture.EnumOption {
	var opts []capture.EnumOption
	for i := info.Minimum; i <= info.Maximum; i++ {
		label, err := c.dev.QueryMenu(info.ID, uint32(i))
		if err != nil {
			c.logger.Debug("Menu query failed", "control", info.Name, "index", i, "error", err)
			break
		}
		opts = append(opts, capture.EnumOption{Label: label, Enabled: true})
	}
	return opts
}

func (c *Camera) fromHardware(d *capture.ControlDescriptor, cid uint32, v int32) capture.Value {
	switch d.Kind {
	case capture.KindEnum:
		return capture.IntValue(int64(v - c.menuMin[cid]))
	case capture.KindBoolean:
		return capture.BoolValue(v != 0)
	}
	return capture.IntValue(int64(v))
}

func (c *Camera) addInputControl(r *capture.Registry) int {
	inputs, err := c.dev.Inputs()
	if err != nil || len(inputs) == 0 {
		return -1
	}
	cur, err := c.dev.GetInput()
	if err != nil {
		c.logger.Debug("Active input unknown", "error", err)
		return -1
	}
	c.inputs = inputs
	return r.Add(capture.ControlDescriptor{
		ID:      "input",
		Label:   "Input",
		Kind:    capture.KindEnum,
		Options: inputOptions(inputs),
		Value:   capture.IntValue(int64(cur)),
		Enabled: true,
		Token:   tokenInput,
	})
}

func inputOptions(inputs []v4l2.InputInfo) []capture.EnumOption {
	opts := make([]capture.EnumOption, len(inputs))
	for i, in := range inputs {
		opts[i] = capture.EnumOption{Label: in.Name, Enabled: true}
	}
	return opts
}

func (c *Camera) addStandardControl(r *capture.Registry) int {
	d := capture.ControlDescriptor{
		ID:    "standard",
		Label: "Standard",
		Kind:  capture.KindEnum,
		Token: tokenStandard,
	}
	c.loadStandards(&d)
	return r.Add(d)
}

// loadStandards rebuilds the standard options for the active input.
func (c *Camera) loadStandards(d *capture.ControlDescriptor) {
	stds, err := c.dev.Standards()
	if err != nil || len(stds) == 0 {
		c.standards = nil
		d.Options = nil
		d.Enabled = false
		d.Value = capture.IntValue(0)
		return
	}
	cur, _ := c.dev.GetStandard()
	c.standards = make([]uint64, len(stds))
	d.Options = make([]capture.EnumOption, len(stds))
	d.Value = capture.IntValue(0)
	matched := false
	for i, s := range stds {
		c.standards[i] = s.ID
		d.Options[i] = capture.EnumOption{Label: s.Name, Enabled: true}
		if !matched && s.ID&cur != 0 {
			d.Value = capture.IntValue(int64(i))
			matched = true
		}
	}
	d.Enabled = true
}

func (c *Camera) addTunerControls(r *capture.Registry) []int {
	var idx []int
	for i := uint32(0); i < maxTuners; i++ {
		t, err := c.dev.Tuner(i)
		if err != nil {
			break
		}
		freq, err := c.dev.GetFrequency(i)
		if err != nil {
			c.logger.Warn("Can't read tuner frequency", "tuner", i, "error", err)
			continue
		}
		c.tuners[i] = t
		d := capture.ControlDescriptor{
			ID:    fmt.Sprintf("tuner-%d", i),
			Label: t.Name,
			Kind:  capture.KindInteger,
			Value: capture.IntValue(int64(freq)),
			Token: tokenTuner | uint64(i),
		}
		c.tunerBounds(&d, t)
		idx = append(idx, r.Add(d))
	}
	return idx
}

// tunerBounds applies the tuner range and enables the control while an
// input wired to this tuner is active, or always when inputs are unknown.
func (c *Camera) tunerBounds(d *capture.ControlDescriptor, t v4l2.TunerInfo) {
	high := t.RangeHigh
	if high > maxTunerFreq {
		high = maxTunerFreq
	}
	d.Int = capture.IntRange{Min: int64(t.RangeLow), Max: int64(high), Step: 1}
	d.Enabled = true
	if len(c.inputs) == 0 {
		return
	}
	cur, err := c.dev.GetInput()
	if err != nil || int(cur) >= len(c.inputs) {
		return
	}
	in := c.inputs[cur]
	d.Enabled = in.Type == v4l2.InputTypeTuner && in.Tuner == tokenArg(d.Token)
}

// SetControl implements capture.ControlBackend.
func (c *Camera) SetControl(d *capture.ControlDescriptor, v capture.Value) error {
	arg := tokenArg(d.Token)
	switch tokenKind(d.Token) {
	case tokenInput:
		return c.dev.SetInput(uint32(v.Int))
	case tokenStandard:
		if v.Int < 0 || int(v.Int) >= len(c.standards) {
			return fmt.Errorf("no standard %d", v.Int)
		}
		return c.dev.SetStandard(c.standards[v.Int])
	case tokenTuner:
		t, ok := c.tuners[arg]
		if !ok {
			return fmt.Errorf("no tuner %d", arg)
		}
		return c.dev.SetFrequency(arg, t.Type, uint32(v.Int))
	}

	hw := int32(v.Int)
	switch d.Kind {
	case capture.KindEnum:
		hw = int32(v.Int) + c.menuMin[arg]
	case capture.KindButton:
		hw = 1
	}
	return c.dev.SetControl(arg, hw)
}

// GetControl implements capture.ControlBackend.
func (c *Camera) GetControl(d *capture.ControlDescriptor) (capture.Value, error) {
	arg := tokenArg(d.Token)
	switch tokenKind(d.Token) {
	case tokenInput:
		cur, err := c.dev.GetInput()
		return capture.IntValue(int64(cur)), err
	case tokenStandard:
		cur, err := c.dev.GetStandard()
		if err != nil {
			return capture.Value{}, err
		}
		for i, id := range c.standards {
			if id&cur != 0 {
				return capture.IntValue(int64(i)), nil
			}
		}
		return capture.Value{}, fmt.Errorf("standard %#x not enumerated", cur)
	case tokenTuner:
		freq, err := c.dev.GetFrequency(arg)
		return capture.IntValue(int64(freq)), err
	}

	v, err := c.dev.GetControl(arg)
	if err != nil {
		return capture.Value{}, err
	}
	return c.fromHardware(d, arg, v), nil
}

// RefreshControl implements capture.ControlBackend.
func (c *Camera) RefreshControl(d *capture.ControlDescriptor) error {
	arg := tokenArg(d.Token)
	switch tokenKind(d.Token) {
	case tokenInput:
		inputs, err := c.dev.Inputs()
		if err != nil {
			return err
		}
		c.inputs = inputs
		d.Options = inputOptions(inputs)
	case tokenStandard:
		c.loadStandards(d)
		return nil
	case tokenTuner:
		t, err := c.dev.Tuner(arg)
		if err != nil {
			return err
		}
		c.tuners[arg] = t
		c.tunerBounds(d, t)
	default:
		info, err := c.dev.QueryControl(arg)
		if err != nil {
			return err
		}
		d.Enabled = controlEnabled(info)
		d.Label = info.Name
		switch d.Kind {
		case capture.KindInteger:
			d.Int = capture.IntRange{Min: int64(info.Minimum), Max: int64(info.Maximum), Step: int64(info.Step)}
		case capture.KindEnum:
			d.Options = c.menuOptions(info)
			c.menuMin[arg] = info.Minimum
		case capture.KindButton:
			return nil
		}
	}

	v, err := c.GetControl(d)
	if err != nil {
		return err
	}
	d.Value = v
	return nil
}
