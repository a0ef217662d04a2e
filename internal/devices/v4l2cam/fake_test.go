//go:build linux

package v4l2cam

import (
	"io"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/smazurov/camunit/pkg/linuxav/v4l2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeNode emulates a video node. Controls live in ctrls keyed by CID;
// onSet lets a test model driver side effects such as auto modes marking
// other controls inactive.
type fakeNode struct {
	formats []v4l2.FormatInfo
	sizes   map[uint32][]v4l2.Resolution
	try     func(pf v4l2.PixFormat) (v4l2.PixFormat, error)
	current v4l2.PixFormat

	granted  uint32
	queued   []uint32
	dequeue  []v4l2.Buffer
	dqErr    error
	unmapped int

	ctrls  map[uint32]*v4l2.ControlInfo
	values map[uint32]int32
	menus  map[uint32][]string
	onSet  func(n *fakeNode, id uint32, v int32)

	inputs   []v4l2.InputInfo
	input    uint32
	stdsFor  map[uint32][]v4l2.StandardInfo
	std      uint64
	tuners   []v4l2.TunerInfo
	freq     map[uint32]uint32
	freqType uint32

	subscribeErr error
	pending      []uint32
	closed       bool
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		sizes:   make(map[uint32][]v4l2.Resolution),
		ctrls:   make(map[uint32]*v4l2.ControlInfo),
		values:  make(map[uint32]int32),
		menus:   make(map[uint32][]string),
		stdsFor: make(map[uint32][]v4l2.StandardInfo),
		freq:    make(map[uint32]uint32),
	}
}

func (n *fakeNode) addControl(info v4l2.ControlInfo, value int32) {
	c := info
	n.ctrls[info.ID] = &c
	n.values[info.ID] = value
}

func (n *fakeNode) Fd() int      { return 7 }
func (n *fakeNode) Close() error { n.closed = true; return nil }

func (n *fakeNode) Formats() ([]v4l2.FormatInfo, error) { return n.formats, nil }

func (n *fakeNode) FrameSizes(pix uint32) ([]v4l2.Resolution, error) {
	sizes, ok := n.sizes[pix]
	if !ok {
		return nil, unix.ENOTTY
	}
	return sizes, nil
}

func (n *fakeNode) TryFormat(pf v4l2.PixFormat) (v4l2.PixFormat, error) {
	if n.try != nil {
		return n.try(pf)
	}
	pf.BytesPerLine = pf.Width * 2
	pf.SizeImage = pf.BytesPerLine * pf.Height
	return pf, nil
}

func (n *fakeNode) SetFormat(pf v4l2.PixFormat) (v4l2.PixFormat, error) {
	got, err := n.TryFormat(pf)
	if err != nil {
		return v4l2.PixFormat{}, err
	}
	n.current = got
	return got, nil
}

func (n *fakeNode) GetFormat() (v4l2.PixFormat, error) { return n.current, nil }

func (n *fakeNode) RequestBuffers(count uint32) (uint32, error) {
	if count == 0 {
		n.queued = nil
		return 0, nil
	}
	if n.granted > 0 && n.granted < count {
		return n.granted, nil
	}
	return count, nil
}

func (n *fakeNode) QueryBuffer(index uint32) (v4l2.BufferInfo, error) {
	return v4l2.BufferInfo{Index: index, Offset: index * 4096, Length: 4096}, nil
}

func (n *fakeNode) MapBuffer(info v4l2.BufferInfo) ([]byte, error) {
	return make([]byte, info.Length), nil
}

func (n *fakeNode) UnmapBuffer([]byte) error { n.unmapped++; return nil }

func (n *fakeNode) QueueBuffer(index uint32) error {
	n.queued = append(n.queued, index)
	return nil
}

func (n *fakeNode) DequeueBuffer() (v4l2.Buffer, error) {
	if n.dqErr != nil {
		return v4l2.Buffer{}, n.dqErr
	}
	if len(n.dequeue) == 0 {
		return v4l2.Buffer{}, unix.EAGAIN
	}
	b := n.dequeue[0]
	n.dequeue = n.dequeue[1:]
	return b, nil
}

func (n *fakeNode) StreamOn() error { return nil }

// StreamOff drops every queued buffer like the driver does.
func (n *fakeNode) StreamOff() error {
	n.queued = nil
	n.dequeue = nil
	return nil
}

func (n *fakeNode) QueryControl(id uint32) (v4l2.ControlInfo, error) {
	c, ok := n.ctrls[id]
	if !ok {
		return v4l2.ControlInfo{}, unix.EINVAL
	}
	return *c, nil
}

func (n *fakeNode) QueryMenu(id, index uint32) (string, error) {
	c, ok := n.ctrls[id]
	if !ok {
		return "", unix.EINVAL
	}
	labels := n.menus[id]
	i := int(index) - int(c.Minimum)
	if i < 0 || i >= len(labels) {
		return "", unix.EINVAL
	}
	return labels[i], nil
}

func (n *fakeNode) GetControl(id uint32) (int32, error) {
	if _, ok := n.ctrls[id]; !ok {
		return 0, unix.EINVAL
	}
	return n.values[id], nil
}

func (n *fakeNode) SetControl(id uint32, v int32) error {
	if _, ok := n.ctrls[id]; !ok {
		return unix.EINVAL
	}
	n.values[id] = v
	if n.onSet != nil {
		n.onSet(n, id, v)
	}
	return nil
}

func (n *fakeNode) Inputs() ([]v4l2.InputInfo, error) { return n.inputs, nil }
func (n *fakeNode) GetInput() (uint32, error)         { return n.input, nil }

func (n *fakeNode) SetInput(index uint32) error {
	if int(index) >= len(n.inputs) {
		return unix.EINVAL
	}
	n.input = index
	return nil
}

func (n *fakeNode) Standards() ([]v4l2.StandardInfo, error) { return n.stdsFor[n.input], nil }
func (n *fakeNode) GetStandard() (uint64, error)            { return n.std, nil }
func (n *fakeNode) SetStandard(id uint64) error             { n.std = id; return nil }

func (n *fakeNode) Tuner(index uint32) (v4l2.TunerInfo, error) {
	if int(index) >= len(n.tuners) {
		return v4l2.TunerInfo{}, unix.EINVAL
	}
	return n.tuners[index], nil
}

func (n *fakeNode) GetFrequency(tuner uint32) (uint32, error) { return n.freq[tuner], nil }

func (n *fakeNode) SetFrequency(tuner, typ, f uint32) error {
	n.freq[tuner] = f
	n.freqType = typ
	return nil
}

func (n *fakeNode) SubscribeSourceChange() error { return n.subscribeErr }

func (n *fakeNode) PendingSourceChange() (uint32, error) {
	if len(n.pending) == 0 {
		return 0, nil
	}
	c := n.pending[0]
	n.pending = n.pending[1:]
	return c, nil
}
