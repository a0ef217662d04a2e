package iidc

import "fmt"

// TriggerModes in option order. Modes 6 to 13 are reserved.
var TriggerModes = []struct {
	Mode  uint32
	Label string
}{
	{0, "Start integration (Mode 0)"},
	{1, "Bulb shutter (Mode 1)"},
	{2, "Integrate to Nth (Mode 2)"},
	{3, "Every Nth frame (Mode 3)"},
	{4, "Mult. exposures (Mode 4)"},
	{5, "Mult. bulb exposures (Mode 5)"},
	{14, "Vendor-specific (Mode 14)"},
	{15, "Vendor-specific (Mode 15)"},
}

// SoftwareSource is the trigger source number selecting the software trigger.
const SoftwareSource = 7

// TriggerInquiry is the decoded trigger inquiry register.
type TriggerInquiry struct {
	Feature
	Polarity bool
	Software bool
	Sources  uint32 // bit i set when source i is available, i < 4
	Modes    uint32 // bit m set when mode m is available
}

// HasMode reports whether trigger mode m is available.
func (t TriggerInquiry) HasMode(m uint32) bool {
	return m < 16 && t.Modes&(1<<m) != 0
}

// HasSource reports whether hardware source s is available.
func (t TriggerInquiry) HasSource(s uint32) bool {
	return s < 4 && t.Sources&(1<<s) != 0
}

// TriggerState is the decoded trigger control register.
type TriggerState struct {
	On        bool
	Polarity  bool
	Source    uint32
	Mode      uint32
	Parameter uint32
}

// Trigger reads the trigger inquiry register.
func (c *Camera) Trigger() (TriggerInquiry, error) {
	v, err := c.read(regFeatureInq + featureOffset(FeatureTrigger))
	if err != nil {
		return TriggerInquiry{}, fmt.Errorf("inquire trigger: %w", err)
	}
	t := TriggerInquiry{
		Feature:  decodeInquiry(FeatureTrigger, v),
		Polarity: v&trigInqPolarity != 0,
		Software: v&trigInqSoftware != 0,
	}
	// Register bits are numbered from the most significant end: sources
	// 0..3 are bits 8..11 and modes 0..15 are bits 16..31.
	for s := uint32(0); s < 4; s++ {
		if v&(1<<(23-s)) != 0 {
			t.Sources |= 1 << s
		}
	}
	for m := uint32(0); m < 16; m++ {
		if v&(1<<(15-m)) != 0 {
			t.Modes |= 1 << m
		}
	}
	return t, nil
}

// TriggerState reads the trigger control register.
func (c *Camera) TriggerState() (TriggerState, error) {
	v, err := c.read(regFeatureCtrl + featureOffset(FeatureTrigger))
	if err != nil {
		return TriggerState{}, fmt.Errorf("read trigger: %w", err)
	}
	return TriggerState{
		On:        v&trigCtlOn != 0,
		Polarity:  v&trigCtlPolarity != 0,
		Source:    (v >> 21) & 0x7,
		Mode:      (v >> 16) & 0xf,
		Parameter: v & 0xfff,
	}, nil
}

// SetTrigger writes the trigger control register.
func (c *Camera) SetTrigger(s TriggerState) error {
	return c.updateControl(FeatureTrigger, func(v uint32) uint32 {
		v &^= trigCtlOn | trigCtlPolarity | 0x7<<21 | 0xf<<16 | 0xfff
		if s.On {
			v |= trigCtlOn
		}
		if s.Polarity {
			v |= trigCtlPolarity
		}
		return v | ctlPresence | (s.Source&0x7)<<21 | (s.Mode&0xf)<<16 | s.Parameter&0xfff
	})
}

// SoftwareTrigger fires one software trigger.
func (c *Camera) SoftwareTrigger() error {
	return c.write(regSoftwareTrigger, softwareTrigBit)
}
