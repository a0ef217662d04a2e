//go:build linux

package firewire

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrNoFrame is returned by Dequeue when no frame has completed.
var ErrNoFrame = errors.New("firewire: no frame ready")

// IsoConfig sizes an isochronous receive context. A frame is
// PacketsPerFrame packets of BytesPerPacket payload bytes each.
type IsoConfig struct {
	Channel         uint32
	Speed           uint32
	Frames          int
	PacketsPerFrame int
	BytesPerPacket  int
}

// FrameSize returns the payload bytes of one frame.
func (c IsoConfig) FrameSize() int {
	return c.PacketsPerFrame * c.BytesPerPacket
}

// Completed is a frame handed back by Dequeue.
type Completed struct {
	Index int
	Cycle uint32
}

// IsoContext is a receive context on its own descriptor. The kernel allows a
// single iso buffer per descriptor and never releases it before close, so
// every context opens the node afresh.
type IsoContext struct {
	node    *Node
	cfg     IsoConfig
	handle  uint32
	mem     []byte
	queued  []int
	control []uint32
	running bool
}

// OpenIsoReceive opens path and creates a receive context with cfg.
func OpenIsoReceive(path string, cfg IsoConfig) (*IsoContext, error) {
	if cfg.Frames <= 0 || cfg.PacketsPerFrame <= 0 || cfg.BytesPerPacket <= 0 {
		return nil, fmt.Errorf("invalid iso config %+v", cfg)
	}
	node, err := Open(path)
	if err != nil {
		return nil, err
	}

	create := fwCdevCreateIsoContext{
		typ:        fwCdevIsoContextReceive,
		headerSize: isoPacketHeaderBytes,
		channel:    cfg.Channel,
		speed:      cfg.Speed,
		closure:    1,
	}
	if err := ioctl(node.fd, fwCdevIocCreateIsoContext, unsafe.Pointer(&create)); err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("create iso context: %w", err)
	}

	page := os.Getpagesize()
	size := cfg.Frames * cfg.FrameSize()
	size = (size + page - 1) / page * page
	mem, err := unix.Mmap(node.fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("mmap iso buffer: %w", err)
	}

	ctx := &IsoContext{
		node:    node,
		cfg:     cfg,
		handle:  create.handle,
		mem:     mem,
		control: PacketControls(cfg.PacketsPerFrame, cfg.BytesPerPacket),
	}
	node.iso = ctx
	return ctx, nil
}

// PacketControls builds the per-packet control words for one frame: wait
// for the sync bit on the first packet and interrupt after the last.
func PacketControls(packets, bytesPerPacket int) []uint32 {
	ctl := make([]uint32, packets)
	for i := range ctl {
		ctl[i] = uint32(bytesPerPacket) | isoPacketHeaderBytes<<isoControlHeaderLenShift
	}
	if packets > 0 {
		ctl[0] |= fwCdevIsoSync
		ctl[packets-1] |= fwCdevIsoInterrupt
	}
	return ctl
}

// Fd returns the descriptor that becomes readable when a frame completes.
func (c *IsoContext) Fd() int { return c.node.fd }

// Frames returns the number of frame slots in the mapped buffer.
func (c *IsoContext) Frames() int { return c.cfg.Frames }

// Frame returns the mapped payload memory of frame slot i.
func (c *IsoContext) Frame(i int) ([]byte, error) {
	if i < 0 || i >= c.cfg.Frames {
		return nil, fmt.Errorf("iso frame %d out of range", i)
	}
	size := c.cfg.FrameSize()
	return c.mem[i*size : (i+1)*size : (i+1)*size], nil
}

// Queue hands frame slot i to the controller.
func (c *IsoContext) Queue(i int) error {
	if i < 0 || i >= c.cfg.Frames {
		return fmt.Errorf("iso frame %d out of range", i)
	}
	q := fwCdevQueueIso{
		packets: uint64(uintptr(unsafe.Pointer(&c.control[0]))),
		data:    uint64(uintptr(unsafe.Pointer(&c.mem[0]))) + uint64(i*c.cfg.FrameSize()),
		size:    uint32(len(c.control) * 4),
		handle:  c.handle,
	}
	err := ioctl(c.node.fd, fwCdevIocQueueIso, unsafe.Pointer(&q))
	runtime.KeepAlive(c.control)
	if err != nil {
		return fmt.Errorf("queue iso frame %d: %w", i, err)
	}
	c.queued = append(c.queued, i)
	return nil
}

// Start begins reception on the next cycle.
func (c *IsoContext) Start() error {
	s := fwCdevStartIso{cycle: -1, sync: 1, tags: fwCdevIsoMatchAllTags, handle: c.handle}
	if err := ioctl(c.node.fd, fwCdevIocStartIso, unsafe.Pointer(&s)); err != nil {
		return fmt.Errorf("start iso: %w", err)
	}
	c.running = true
	return nil
}

// Stop halts reception. Queued frames are dropped by the controller.
func (c *IsoContext) Stop() error {
	if !c.running {
		return nil
	}
	s := fwCdevStopIso{handle: c.handle}
	c.running = false
	c.queued = c.queued[:0]
	if err := ioctl(c.node.fd, fwCdevIocStopIso, unsafe.Pointer(&s)); err != nil {
		return fmt.Errorf("stop iso: %w", err)
	}
	return nil
}

// Dequeue returns the oldest completed frame without blocking. Frames
// complete in queue order.
func (c *IsoContext) Dequeue() (Completed, error) {
	n := c.node
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.isoPending) == 0 {
		for {
			ev, ok, err := n.readEvent()
			if err != nil {
				return Completed{}, err
			}
			if !ok || ev.typ == fwCdevEventIsoInterrupt {
				break
			}
		}
	}
	if len(n.isoPending) == 0 {
		return Completed{}, ErrNoFrame
	}
	ev := n.isoPending[0]
	n.isoPending = n.isoPending[1:]
	if len(c.queued) == 0 {
		return Completed{}, fmt.Errorf("iso interrupt with no queued frame")
	}
	idx := c.queued[0]
	c.queued = c.queued[1:]
	return Completed{Index: idx, Cycle: ev.cycle}, nil
}

// Behind drains pending events and reports how many completed frames are
// waiting to be dequeued.
func (c *IsoContext) Behind() (int, error) {
	n := c.node
	n.mu.Lock()
	defer n.mu.Unlock()
	for {
		_, ok, err := n.readEvent()
		if err != nil || !ok {
			return len(n.isoPending), err
		}
	}
}

// CycleTimer samples the local clock and bus cycle timer.
func (c *IsoContext) CycleTimer() (int64, uint32, error) {
	return c.node.CycleTimer()
}

// Close stops reception, unmaps the buffer and closes the descriptor.
func (c *IsoContext) Close() error {
	if c.node == nil {
		return nil
	}
	_ = c.Stop()
	var err error
	if c.mem != nil {
		err = unix.Munmap(c.mem)
		c.mem = nil
	}
	node := c.node
	c.node = nil
	node.iso = nil
	if closeErr := node.Close(); err == nil {
		err = closeErr
	}
	return err
}
