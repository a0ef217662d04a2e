package iidc

import "fmt"

// fakeBus is an in-memory register file. Unset registers read as zero.
type fakeBus struct {
	regs    map[uint64]uint32
	onWrite map[uint64]func(b *fakeBus, v uint32)
	failAt  map[uint64]bool
	writes  []uint64
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		regs:    make(map[uint64]uint32),
		onWrite: make(map[uint64]func(*fakeBus, uint32)),
		failAt:  make(map[uint64]bool),
	}
}

func (b *fakeBus) ReadQuadlet(off uint64) (uint32, error) {
	if b.failAt[off] {
		return 0, fmt.Errorf("read %#x: no response", off)
	}
	return b.regs[off], nil
}

func (b *fakeBus) WriteQuadlet(off uint64, v uint32) error {
	if b.failAt[off] {
		return fmt.Errorf("write %#x: no response", off)
	}
	b.writes = append(b.writes, off)
	b.regs[off] = v
	if fn := b.onWrite[off]; fn != nil {
		fn(b, v)
	}
	return nil
}

// cmd sets a command register relative to the default base.
func (b *fakeBus) cmd(off uint64, v uint32) {
	b.regs[DefaultCommandBase+off] = v
}

func (b *fakeBus) getCmd(off uint64) uint32 {
	return b.regs[DefaultCommandBase+off]
}

func newTestCamera(b *fakeBus) *Camera {
	return NewCamera(b, ROMInfo{CommandBase: DefaultCommandBase})
}
