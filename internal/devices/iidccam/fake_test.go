//go:build linux

package iidccam

import (
	"io"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/smazurov/camunit/pkg/iidc"
	"github.com/smazurov/camunit/pkg/linuxav/firewire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRegs models an IIDC camera at the feature level.
type fakeRegs struct {
	info      iidc.ROMInfo
	frameInfo bool

	modes        []iidc.Format7Mode
	packet       iidc.PacketInfo
	packetReq    uint32
	setCoding    iidc.ColorCoding
	transmitting bool

	order    []iidc.FeatureID
	features map[iidc.FeatureID]*iidc.Feature
	states   map[iidc.FeatureID]*iidc.FeatureState
	abs      map[iidc.FeatureID]float32
	absOn    []iidc.FeatureID
	values   map[iidc.FeatureID]uint32
	ub, vr   uint32

	trig       iidc.TriggerInquiry
	trigState  iidc.TriggerState
	swTriggers int
}

func newFakeRegs() *fakeRegs {
	return &fakeRegs{
		info:     iidc.ROMInfo{GUID: 0x0800460200012345, Vendor: "Test", Model: "Cam"},
		features: make(map[iidc.FeatureID]*iidc.Feature),
		states:   make(map[iidc.FeatureID]*iidc.FeatureState),
		abs:      make(map[iidc.FeatureID]float32),
		values:   make(map[iidc.FeatureID]uint32),
	}
}

func (r *fakeRegs) addFeature(f iidc.Feature, st iidc.FeatureState) {
	f.Present = true
	r.order = append(r.order, f.ID)
	r.features[f.ID] = &f
	r.states[f.ID] = &st
}

func (r *fakeRegs) Info() iidc.ROMInfo             { return r.info }
func (r *fakeRegs) EnableFrameInfo() (bool, error) { return r.frameInfo, nil }

func (r *fakeRegs) Format7Modes() ([]iidc.Format7Mode, error) { return r.modes, nil }

func (r *fakeRegs) SetFormat7(_ iidc.Format7Mode, coding iidc.ColorCoding, _, _ uint32) (iidc.PacketInfo, error) {
	r.setCoding = coding
	return r.packet, nil
}

func (r *fakeRegs) SetPacketSize(_ iidc.Format7Mode, size uint32) (iidc.PacketInfo, error) {
	r.packetReq = size
	p := r.packet
	p.BytesPerPacket = iidc.QuantizePacketSize(size, p.UnitBytes, p.MaxBytes)
	p.PacketsPerFrame = uint32((p.TotalBytes + uint64(p.BytesPerPacket) - 1) / uint64(p.BytesPerPacket))
	return p, nil
}

func (r *fakeRegs) SetISOChannel(_, _ uint32) error { return nil }

func (r *fakeRegs) SetTransmission(on bool) error {
	r.transmitting = on
	return nil
}

func (r *fakeRegs) Features() ([]iidc.Feature, error) {
	out := make([]iidc.Feature, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.features[id])
	}
	return out, nil
}

func (r *fakeRegs) Feature(id iidc.FeatureID) (iidc.Feature, error) {
	f, ok := r.features[id]
	if !ok {
		return iidc.Feature{ID: id}, nil
	}
	return *f, nil
}

func (r *fakeRegs) State(id iidc.FeatureID) (iidc.FeatureState, error) {
	st, ok := r.states[id]
	if !ok {
		return iidc.FeatureState{}, unix.EIO
	}
	return *st, nil
}

func (r *fakeRegs) SetMode(id iidc.FeatureID, m iidc.Mode) error {
	st := r.states[id]
	st.On = m != iidc.ModeOff
	st.Auto = m == iidc.ModeAuto
	return nil
}

// SetValue records the write; the state value only changes for readout
// capable features.
func (r *fakeRegs) SetValue(id iidc.FeatureID, v uint32) error {
	r.values[id] = v
	if r.features[id].Readout {
		r.states[id].Value = v
	}
	return nil
}

func (r *fakeRegs) SetAbsoluteControl(id iidc.FeatureID, on bool) error {
	r.absOn = append(r.absOn, id)
	r.states[id].Absolute = on
	return nil
}

func (r *fakeRegs) AbsoluteValue(id iidc.FeatureID) (float32, error) { return r.abs[id], nil }

func (r *fakeRegs) SetAbsoluteValue(id iidc.FeatureID, v float32) error {
	r.abs[id] = v
	return nil
}

func (r *fakeRegs) WhiteBalance() (uint32, uint32, error) { return r.ub, r.vr, nil }

func (r *fakeRegs) SetWhiteBalance(ub, vr uint32) error {
	r.ub, r.vr = ub, vr
	return nil
}

func (r *fakeRegs) Trigger() (iidc.TriggerInquiry, error)    { return r.trig, nil }
func (r *fakeRegs) TriggerState() (iidc.TriggerState, error) { return r.trigState, nil }

func (r *fakeRegs) SetTrigger(s iidc.TriggerState) error {
	r.trigState = s
	return nil
}

func (r *fakeRegs) SoftwareTrigger() error {
	r.swTriggers++
	return nil
}

// fakeIso is an in-memory receive context.
type fakeIso struct {
	cfg       firewire.IsoConfig
	frames    [][]byte
	queued    []int
	completed []firewire.Completed
	dqErr     error
	behind    int
	local     int64
	cycle     uint32
	cycleErr  error
	started   bool
	closed    bool
}

func newFakeIso(cfg firewire.IsoConfig) *fakeIso {
	iso := &fakeIso{cfg: cfg, cycle: invalidCycle}
	for i := 0; i < cfg.Frames; i++ {
		iso.frames = append(iso.frames, make([]byte, cfg.FrameSize()))
	}
	return iso
}

func (f *fakeIso) Fd() int { return 9 }

func (f *fakeIso) Frame(i int) ([]byte, error) {
	if i < 0 || i >= len(f.frames) {
		return nil, unix.EINVAL
	}
	return f.frames[i], nil
}

func (f *fakeIso) Queue(i int) error {
	f.queued = append(f.queued, i)
	return nil
}

func (f *fakeIso) Start() error {
	f.started = true
	return nil
}

func (f *fakeIso) Dequeue() (firewire.Completed, error) {
	if f.dqErr != nil {
		return firewire.Completed{}, f.dqErr
	}
	if len(f.completed) == 0 {
		return firewire.Completed{}, firewire.ErrNoFrame
	}
	c := f.completed[0]
	f.completed = f.completed[1:]
	return c, nil
}

func (f *fakeIso) Behind() (int, error) { return f.behind, nil }

func (f *fakeIso) CycleTimer() (int64, uint32, error) {
	return f.local, f.cycle, f.cycleErr
}

func (f *fakeIso) Close() error {
	f.closed = true
	return nil
}

type fakeBus struct {
	opened []*fakeIso
	closed bool
}

func (b *fakeBus) Close() error {
	b.closed = true
	return nil
}

func (b *fakeBus) open(cfg firewire.IsoConfig) (isoStream, error) {
	iso := newFakeIso(cfg)
	b.opened = append(b.opened, iso)
	return iso, nil
}

func (b *fakeBus) last() *fakeIso {
	if len(b.opened) == 0 {
		return nil
	}
	return b.opened[len(b.opened)-1]
}

func newTestCamera(regs *fakeRegs) (*Camera, *fakeBus) {
	bus := &fakeBus{}
	return newCamera(regs, bus, bus.open, testLogger()), bus
}
