package iidc

import (
	"math"
	"testing"
)

func TestFeatureOffset(t *testing.T) {
	tests := []struct {
		id   FeatureID
		want uint64
	}{
		{FeatureBrightness, 0x00},
		{FeatureTrigger, 0x30},
		{FeatureFrameRate, 0x3c},
		{FeatureZoom, 0x80},
		{FeatureOpticalFilter, 0x8c},
		{FeatureCaptureSize, 0xc0},
		{FeatureCaptureQuality, 0xc4},
	}
	for _, tt := range tests {
		if got := featureOffset(tt.id); got != tt.want {
			t.Errorf("featureOffset(%s) = %#x, want %#x", tt.id, got, tt.want)
		}
	}
}

func TestFeatureInquiry(t *testing.T) {
	b := newFakeBus()
	b.cmd(regFeatureInq+featureOffset(FeatureBrightness), inqPresence|inqManual|inqReadout|16<<12|255)
	b.cmd(regFeatureInq+featureOffset(FeatureShutter), inqPresence|inqAbs|inqAuto|inqManual|1<<12|4095)
	b.cmd(regAbsCSRInq+featureOffset(FeatureShutter), 0x3c0100)
	absBase := csrBase + 0x3c0100*4
	b.regs[absBase+absMin] = math.Float32bits(0.001)
	b.regs[absBase+absMax] = math.Float32bits(0.5)

	cam := newTestCamera(b)
	features, err := cam.Features()
	if err != nil {
		t.Fatalf("Features() error = %v", err)
	}
	if len(features) != 2 {
		t.Fatalf("len(Features()) = %d, want 2", len(features))
	}

	bright := features[0]
	if bright.ID != FeatureBrightness || !bright.Manual || bright.Auto || !bright.Readout {
		t.Errorf("brightness = %+v", bright)
	}
	if bright.Min != 16 || bright.Max != 255 {
		t.Errorf("brightness range = %d..%d, want 16..255", bright.Min, bright.Max)
	}

	shutter := features[1]
	if !shutter.Absolute || shutter.AbsMin != 0.001 || shutter.AbsMax != 0.5 {
		t.Errorf("shutter absolute = %v %v..%v", shutter.Absolute, shutter.AbsMin, shutter.AbsMax)
	}
}

func TestAbsoluteWithoutCSRIsDropped(t *testing.T) {
	b := newFakeBus()
	b.cmd(regFeatureInq+featureOffset(FeatureGain), inqPresence|inqAbs|inqManual|0<<12|100)
	f, err := newTestCamera(b).Feature(FeatureGain)
	if err != nil {
		t.Fatalf("Feature() error = %v", err)
	}
	if f.Absolute {
		t.Error("Absolute = true, want false when the CSR offset is zero")
	}
}

func TestSetMode(t *testing.T) {
	tests := []struct {
		name    string
		initial uint32
		mode    Mode
		want    uint32
	}{
		{"auto to manual keeps value", ctlPresence | ctlOn | ctlAuto | 300, ModeManual, ctlPresence | ctlOn | 300},
		{"manual to auto", ctlPresence | ctlOn | 300, ModeAuto, ctlPresence | ctlOn | ctlAuto | 300},
		{"off clears on and auto", ctlPresence | ctlOn | ctlAuto | 5, ModeOff, ctlPresence | 5},
		{"absolute bit kept", ctlPresence | ctlAbs | 1, ModeManual, ctlPresence | ctlAbs | ctlOn | 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBus()
			off := regFeatureCtrl + featureOffset(FeatureExposure)
			b.cmd(off, tt.initial)
			cam := newTestCamera(b)
			if err := cam.SetMode(FeatureExposure, tt.mode); err != nil {
				t.Fatalf("SetMode() error = %v", err)
			}
			if got := b.getCmd(off); got != tt.want {
				t.Errorf("control = %#x, want %#x", got, tt.want)
			}
			st, err := cam.State(FeatureExposure)
			if err != nil {
				t.Fatalf("State() error = %v", err)
			}
			if st.Mode() != tt.mode {
				t.Errorf("State().Mode() = %d, want %d", st.Mode(), tt.mode)
			}
		})
	}
}

func TestSetValueKeepsMode(t *testing.T) {
	b := newFakeBus()
	off := regFeatureCtrl + featureOffset(FeatureGain)
	b.cmd(off, ctlPresence|ctlOn|0x123)
	cam := newTestCamera(b)
	if err := cam.SetValue(FeatureGain, 0x4567); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if got, want := b.getCmd(off), uint32(ctlPresence|ctlOn|0x567); got != want {
		t.Errorf("control = %#x, want %#x", got, want)
	}
}

func TestWhiteBalance(t *testing.T) {
	b := newFakeBus()
	b.cmd(regFeatureCtrl+featureOffset(FeatureWhiteBalance), ctlPresence|ctlOn)
	cam := newTestCamera(b)
	if err := cam.SetWhiteBalance(512, 700); err != nil {
		t.Fatalf("SetWhiteBalance() error = %v", err)
	}
	ub, vr, err := cam.WhiteBalance()
	if err != nil {
		t.Fatalf("WhiteBalance() error = %v", err)
	}
	if ub != 512 || vr != 700 {
		t.Errorf("WhiteBalance() = %d, %d, want 512, 700", ub, vr)
	}
	st, _ := cam.State(FeatureWhiteBalance)
	if !st.On {
		t.Error("white balance switched off by value write")
	}
}

func TestAbsoluteValue(t *testing.T) {
	b := newFakeBus()
	b.cmd(regAbsCSRInq+featureOffset(FeatureShutter), 0x3c0200)
	cam := newTestCamera(b)
	if err := cam.SetAbsoluteValue(FeatureShutter, 0.025); err != nil {
		t.Fatalf("SetAbsoluteValue() error = %v", err)
	}
	got, err := cam.AbsoluteValue(FeatureShutter)
	if err != nil {
		t.Fatalf("AbsoluteValue() error = %v", err)
	}
	if got != 0.025 {
		t.Errorf("AbsoluteValue() = %v, want 0.025", got)
	}
}

func TestFeatureNames(t *testing.T) {
	if got := FeatureWhiteBalance.Label(); got != "White Bal." {
		t.Errorf("Label() = %q, want %q", got, "White Bal.")
	}
	if got := FeatureTriggerDelay.Key(); got != "trigger-delay" {
		t.Errorf("Key() = %q, want %q", got, "trigger-delay")
	}
	if got := FeatureID(99).Key(); got != "feature-99" {
		t.Errorf("Key() = %q, want %q", got, "feature-99")
	}
}
