//go:build linux

package iidccam

import (
	"errors"
	"fmt"

	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/pkg/iidc"
)

// Descriptor tokens carry the control role in the high word and the
// feature id in the low word.
const (
	tokenPacket uint64 = iota << 32
	tokenMode
	tokenValue
	tokenAbsolute
	tokenWBRed
	tokenWBBlue
	tokenTrigger
	tokenTriggerPolarity
	tokenTriggerSource
	tokenTriggerNow
)

const (
	maxPacketSize = 4192
	floatSteps    = 100
	softwareIndex = 4 // trigger-source option of the software trigger
)

var errNoReadout = errors.New("feature is not readout capable")

var modeOptions = []string{"Off", "Auto", "Manual"}

var sourceLabels = []string{
	"Trigger Source 0",
	"Trigger Source 1",
	"Trigger Source 2",
	"Trigger Source 3",
	"Software Trigger",
}

func tokenRole(t uint64) uint64            { return t &^ 0xffffffff }
func tokenFeature(t uint64) iidc.FeatureID { return iidc.FeatureID(uint32(t)) }

// DiscoverControls implements capture.ControlBackend. Absolute control is
// switched on for every feature that supports it.
func (c *Camera) DiscoverControls(r *capture.Registry) error {
	c.registry = r
	features, err := c.regs.Features()
	if err != nil {
		return err
	}
	reread := false
	for _, f := range features {
		if !f.Absolute {
			continue
		}
		st, stErr := c.regs.State(f.ID)
		if stErr != nil || st.Absolute {
			continue
		}
		c.logger.Info("Enabling absolute control", "feature", f.ID.Label())
		if err := c.regs.SetAbsoluteControl(f.ID, true); err != nil {
			c.logger.Warn("Failed to enable absolute control", "feature", f.ID.Label(), "error", err)
			continue
		}
		reread = true
	}
	if reread {
		if features, err = c.regs.Features(); err != nil {
			return err
		}
	}

	size := int64(c.packetSize)
	if c.hasMode {
		size = int64(c.packet.BytesPerPacket)
	}
	c.packetIdx = r.Add(capture.ControlDescriptor{
		ID:      "packet-size",
		Label:   "Packet Size",
		Kind:    capture.KindInteger,
		Int:     capture.IntRange{Min: 1, Max: maxPacketSize, Step: 1},
		Value:   capture.IntValue(size),
		Enabled: true,
		Token:   tokenPacket,
	})

	c.features = make(map[iidc.FeatureID]iidc.Feature, len(features))
	for _, f := range features {
		c.features[f.ID] = f
		if f.ID == iidc.FeatureTrigger {
			if err := c.addTriggerControls(r); err != nil {
				c.logger.Warn("Skipping trigger controls", "error", err)
			}
			continue
		}
		if err := c.addFeature(r, f); err != nil {
			c.logger.Warn("Skipping feature", "feature", f.ID.Label(), "error", err)
		}
	}
	return nil
}

func manualOnly(f iidc.Feature) bool {
	return !f.OnOff && !f.Auto && f.Manual
}

func (c *Camera) addFeature(r *capture.Registry, f iidc.Feature) error {
	switch {
	case !f.Modes():
		c.logger.Warn("Feature has neither auto, manual, or off mode", "feature", f.ID.Label())
		return nil
	case f.OnOff && !f.Auto && !f.Manual:
		c.logger.Warn("Feature has neither auto nor manual mode", "feature", f.ID.Label())
		return nil
	case !f.OnOff && f.Auto && !f.Manual:
		c.logger.Warn("Feature has only auto mode", "feature", f.ID.Label())
		return nil
	}

	st, err := c.regs.State(f.ID)
	if err != nil {
		return err
	}

	modeIdx := -1
	if !manualOnly(f) {
		enabled := []bool{f.OnOff, f.Auto, f.Manual}
		opts := make([]capture.EnumOption, len(modeOptions))
		for i, label := range modeOptions {
			opts[i] = capture.EnumOption{Label: label, Enabled: enabled[i]}
		}
		modeIdx = r.Add(capture.ControlDescriptor{
			ID:      f.ID.Key() + "-mode",
			Label:   f.ID.Label(),
			Kind:    capture.KindEnum,
			Options: opts,
			Value:   capture.IntValue(int64(st.Mode())),
			Enabled: true,
			Token:   tokenMode | uint64(f.ID),
		})
	}
	if !f.Readout && f.Manual {
		c.logger.Info("Feature is not readout capable but can still be set", "feature", f.ID.Label())
	}

	var deps []int
	if f.ID == iidc.FeatureWhiteBalance {
		ub, vr, wbErr := c.regs.WhiteBalance()
		if wbErr != nil {
			return wbErr
		}
		for _, wb := range []struct {
			id, label string
			token     uint64
			value     uint32
		}{
			{"white-balance-red", "W.B. Red", tokenWBRed, vr},
			{"white-balance-blue", "W.B. Blue", tokenWBBlue, ub},
		} {
			d := capture.ControlDescriptor{
				ID:    wb.id,
				Label: wb.label,
				Kind:  capture.KindInteger,
				Value: capture.IntValue(int64(wb.value)),
				Token: wb.token | uint64(f.ID),
			}
			c.valueBounds(&d, f, st)
			deps = append(deps, r.Add(d))
		}
	} else {
		d := capture.ControlDescriptor{
			ID:    f.ID.Key(),
			Label: f.ID.Label(),
			Token: tokenValue | uint64(f.ID),
		}
		if f.Absolute && st.Absolute {
			d.Token = tokenAbsolute | uint64(f.ID)
		}
		if err := c.loadValue(&d, f, st); err != nil {
			return err
		}
		deps = append(deps, r.Add(d))
	}
	r.Depend(modeIdx, deps...)
	return nil
}

// valueBounds sets the kind, range and enabled flag of a value control. A
// feature whose maximum does not exceed its minimum is disabled.
func (c *Camera) valueBounds(d *capture.ControlDescriptor, f iidc.Feature, st iidc.FeatureState) {
	d.Enabled = (st.On && !st.Auto) || manualOnly(f)
	if tokenRole(d.Token) == tokenAbsolute {
		d.Kind = capture.KindFloat
		lo, hi := float64(f.AbsMin), float64(f.AbsMax)
		if hi <= lo {
			c.logger.Warn("Disabling control because min >= max", "feature", f.ID.Label())
			d.Float = capture.FloatRange{Min: 0, Max: 1, Step: 1}
			d.Enabled = false
			return
		}
		d.Float = capture.FloatRange{Min: lo, Max: hi, Step: (hi - lo) / floatSteps}
		return
	}
	d.Kind = capture.KindInteger
	if f.Max <= f.Min {
		c.logger.Warn("Disabling control because min >= max", "feature", f.ID.Label())
		d.Int = capture.IntRange{Min: 0, Max: 1, Step: 1}
		d.Enabled = false
		return
	}
	d.Int = capture.IntRange{Min: int64(f.Min), Max: int64(f.Max), Step: 1}
}

func (c *Camera) loadValue(d *capture.ControlDescriptor, f iidc.Feature, st iidc.FeatureState) error {
	c.valueBounds(d, f, st)
	if d.Kind == capture.KindFloat {
		if f.AbsMax <= f.AbsMin {
			d.Value = capture.FloatValue(0)
			return nil
		}
		v, err := c.regs.AbsoluteValue(f.ID)
		if err != nil {
			return err
		}
		d.Value = capture.FloatValue(float64(v))
		return nil
	}
	if f.Max <= f.Min {
		d.Value = capture.IntValue(0)
		return nil
	}
	d.Value = capture.IntValue(int64(st.Value))
	return nil
}

func (c *Camera) addTriggerControls(r *capture.Registry) error {
	inq, err := c.regs.Trigger()
	if err != nil {
		return err
	}
	st, err := c.regs.TriggerState()
	if err != nil {
		return err
	}

	opts := []capture.EnumOption{{Label: "Off", Enabled: inq.OnOff}}
	for _, m := range iidc.TriggerModes {
		opts = append(opts, capture.EnumOption{Label: m.Label, Enabled: inq.HasMode(m.Mode)})
	}
	trigIdx := r.Add(capture.ControlDescriptor{
		ID:      "trigger",
		Label:   "Trigger",
		Kind:    capture.KindEnum,
		Options: opts,
		Value:   capture.IntValue(int64(triggerOption(st))),
		Enabled: true,
		Token:   tokenTrigger | uint64(iidc.FeatureTrigger),
	})

	var deps []int
	if inq.Polarity {
		deps = append(deps, r.Add(capture.ControlDescriptor{
			ID:      "trigger-polarity",
			Label:   "Polarity",
			Kind:    capture.KindBoolean,
			Value:   capture.BoolValue(st.Polarity),
			Enabled: st.On,
			Token:   tokenTriggerPolarity | uint64(iidc.FeatureTrigger),
		}))
	}

	srcOpts := make([]capture.EnumOption, len(sourceLabels))
	for i, label := range sourceLabels {
		on := inq.HasSource(uint32(i))
		if i == softwareIndex {
			on = inq.Software
		}
		srcOpts[i] = capture.EnumOption{Label: label, Enabled: on}
	}
	deps = append(deps, r.Add(capture.ControlDescriptor{
		ID:      "trigger-source",
		Label:   "Source",
		Kind:    capture.KindEnum,
		Options: srcOpts,
		Value:   capture.IntValue(int64(sourceOption(st.Source))),
		Enabled: st.On,
		Token:   tokenTriggerSource | uint64(iidc.FeatureTrigger),
	}))

	if inq.Software {
		deps = append(deps, r.Add(capture.ControlDescriptor{
			ID:      "trigger-now",
			Label:   "Trigger",
			Kind:    capture.KindButton,
			Enabled: st.On,
			Token:   tokenTriggerNow | uint64(iidc.FeatureTrigger),
		}))
	}
	r.Depend(trigIdx, deps...)
	return nil
}

// triggerOption maps the trigger state to the trigger enum: 0 is off and
// option i+1 is TriggerModes[i].
func triggerOption(st iidc.TriggerState) int {
	if !st.On {
		return 0
	}
	for i, m := range iidc.TriggerModes {
		if m.Mode == st.Mode {
			return i + 1
		}
	}
	return 0
}

func sourceOption(source uint32) int {
	if source == iidc.SoftwareSource {
		return softwareIndex
	}
	return int(source)
}

func optionSource(opt int64) uint32 {
	if opt == softwareIndex {
		return iidc.SoftwareSource
	}
	return uint32(opt)
}

// SetControl implements capture.ControlBackend.
func (c *Camera) SetControl(d *capture.ControlDescriptor, v capture.Value) error {
	id := tokenFeature(d.Token)
	switch tokenRole(d.Token) {
	case tokenPacket:
		// Applied by the next SetFormat.
		c.packetSize = uint32(v.Int)
		return nil
	case tokenMode:
		return c.regs.SetMode(id, iidc.Mode(v.Int))
	case tokenValue:
		return c.regs.SetValue(id, uint32(v.Int))
	case tokenAbsolute:
		return c.regs.SetAbsoluteValue(id, float32(v.Float))
	case tokenWBRed, tokenWBBlue:
		ub, vr, err := c.regs.WhiteBalance()
		if err != nil {
			return err
		}
		if tokenRole(d.Token) == tokenWBRed {
			return c.regs.SetWhiteBalance(ub, uint32(v.Int))
		}
		return c.regs.SetWhiteBalance(uint32(v.Int), vr)
	case tokenTrigger:
		st, err := c.regs.TriggerState()
		if err != nil {
			return err
		}
		st.On = v.Int != 0
		if st.On {
			if v.Int < 1 || int(v.Int) > len(iidc.TriggerModes) {
				return fmt.Errorf("no trigger mode option %d", v.Int)
			}
			st.Mode = iidc.TriggerModes[v.Int-1].Mode
		}
		return c.regs.SetTrigger(st)
	case tokenTriggerPolarity:
		st, err := c.regs.TriggerState()
		if err != nil {
			return err
		}
		st.Polarity = v.Bool()
		return c.regs.SetTrigger(st)
	case tokenTriggerSource:
		st, err := c.regs.TriggerState()
		if err != nil {
			return err
		}
		st.Source = optionSource(v.Int)
		return c.regs.SetTrigger(st)
	case tokenTriggerNow:
		return c.regs.SoftwareTrigger()
	}
	return fmt.Errorf("unknown control token %#x", d.Token)
}

// GetControl implements capture.ControlBackend.
func (c *Camera) GetControl(d *capture.ControlDescriptor) (capture.Value, error) {
	id := tokenFeature(d.Token)
	switch tokenRole(d.Token) {
	case tokenPacket:
		if c.hasMode {
			quantized := iidc.QuantizePacketSize(c.packetSize, c.packet.UnitBytes, c.packet.MaxBytes)
			return capture.IntValue(int64(quantized)), nil
		}
		return capture.IntValue(int64(c.packetSize)), nil
	case tokenMode:
		st, err := c.regs.State(id)
		if err != nil {
			return capture.Value{}, err
		}
		return capture.IntValue(int64(st.Mode())), nil
	case tokenValue:
		if !c.features[id].Readout {
			return capture.Value{}, errNoReadout
		}
		st, err := c.regs.State(id)
		if err != nil {
			return capture.Value{}, err
		}
		return capture.IntValue(int64(st.Value)), nil
	case tokenAbsolute:
		if !c.features[id].Readout {
			return capture.Value{}, errNoReadout
		}
		v, err := c.regs.AbsoluteValue(id)
		if err != nil {
			return capture.Value{}, err
		}
		return capture.FloatValue(float64(v)), nil
	case tokenWBRed, tokenWBBlue:
		ub, vr, err := c.regs.WhiteBalance()
		if err != nil {
			return capture.Value{}, err
		}
		if tokenRole(d.Token) == tokenWBRed {
			return capture.IntValue(int64(vr)), nil
		}
		return capture.IntValue(int64(ub)), nil
	case tokenTrigger, tokenTriggerPolarity, tokenTriggerSource:
		st, err := c.regs.TriggerState()
		if err != nil {
			return capture.Value{}, err
		}
		switch tokenRole(d.Token) {
		case tokenTrigger:
			return capture.IntValue(int64(triggerOption(st))), nil
		case tokenTriggerPolarity:
			return capture.BoolValue(st.Polarity), nil
		}
		return capture.IntValue(int64(sourceOption(st.Source))), nil
	}
	return capture.Value{}, fmt.Errorf("control %s has no readback", d.ID)
}

// RefreshControl implements capture.ControlBackend.
func (c *Camera) RefreshControl(d *capture.ControlDescriptor) error {
	id := tokenFeature(d.Token)
	switch tokenRole(d.Token) {
	case tokenPacket, tokenMode, tokenTrigger:
	case tokenValue, tokenAbsolute, tokenWBRed, tokenWBBlue:
		f, err := c.regs.Feature(id)
		if err != nil {
			return err
		}
		c.features[id] = f
		st, err := c.regs.State(id)
		if err != nil {
			return err
		}
		if role := tokenRole(d.Token); role == tokenWBRed || role == tokenWBBlue {
			c.valueBounds(d, f, st)
		} else {
			return c.loadValue(d, f, st)
		}
	case tokenTriggerPolarity, tokenTriggerSource, tokenTriggerNow:
		st, err := c.regs.TriggerState()
		if err != nil {
			return err
		}
		d.Enabled = st.On
		if tokenRole(d.Token) == tokenTriggerNow {
			return nil
		}
	default:
		return fmt.Errorf("unknown control token %#x", d.Token)
	}

	v, err := c.GetControl(d)
	if err != nil {
		if errors.Is(err, errNoReadout) {
			return nil
		}
		return err
	}
	d.Value = v
	return nil
}
