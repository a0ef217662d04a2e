//go:build linux

package firewire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrTimeout is returned when a transaction receives no response in time.
var ErrTimeout = errors.New("firewire: transaction timed out")

// ErrResponse wraps non-complete response codes.
var ErrResponse = errors.New("firewire: transaction failed")

// TransactionTimeout bounds the wait for a single quadlet response.
var TransactionTimeout = 200 * time.Millisecond

const maxRomQuadlets = 256

// NodeInfo describes a node found by FindNodes.
type NodeInfo struct {
	Path       string
	Generation uint32
	NodeID     uint32
	ROM        []uint32
}

// Node is an open firewire-cdev device file.
type Node struct {
	path string
	fd   int

	mu         sync.Mutex
	generation uint32
	nodeID     uint32
	rom        []uint32
	closure    uint64
	isoPending []event
	iso        *IsoContext
}

// Open opens a node and reads its configuration ROM.
func Open(path string) (*Node, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	n := &Node{path: path, fd: fd}
	if err := n.getInfo(); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("get info %s: %w", path, err)
	}
	return n, nil
}

func (n *Node) getInfo() error {
	rom := make([]uint32, maxRomQuadlets)
	reset := fwCdevBusReset{}
	info := fwCdevGetInfo{
		version:   fwCdevVersion,
		romLength: uint32(len(rom) * 4),
		rom:       uint64(uintptr(unsafe.Pointer(&rom[0]))),
		busReset:  uint64(uintptr(unsafe.Pointer(&reset))),
	}
	if err := ioctl(n.fd, fwCdevIocGetInfo, unsafe.Pointer(&info)); err != nil {
		return err
	}
	length := int(info.romLength / 4)
	if length > len(rom) {
		length = len(rom)
	}
	n.rom = rom[:length]
	n.generation = reset.generation
	n.nodeID = reset.nodeID
	return nil
}

// Path returns the device file path.
func (n *Node) Path() string { return n.path }

// Fd returns the descriptor, readable when events are pending.
func (n *Node) Fd() int { return n.fd }

// ROM returns the configuration ROM quadlets in host order.
func (n *Node) ROM() []uint32 {
	return append([]uint32(nil), n.rom...)
}

// Generation returns the last bus generation seen.
func (n *Node) Generation() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.generation
}

// Close releases the node and any isochronous context.
func (n *Node) Close() error {
	if n.fd < 0 {
		return nil
	}
	if n.iso != nil {
		return n.iso.Close()
	}
	err := unix.Close(n.fd)
	n.fd = -1
	return err
}

// ReadQuadlet reads a 32-bit register at a 48-bit CSR offset.
func (n *Node) ReadQuadlet(offset uint64) (uint32, error) {
	ev, err := n.transact(tcodeReadQuadletRequest, offset, nil)
	if err != nil {
		return 0, err
	}
	if len(ev.data) < 4 {
		return 0, fmt.Errorf("%w: short read response at %#x", ErrResponse, offset)
	}
	return binary.BigEndian.Uint32(ev.data[:4]), nil
}

// WriteQuadlet writes a 32-bit register at a 48-bit CSR offset.
func (n *Node) WriteQuadlet(offset uint64, value uint32) error {
	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], value)
	_, err := n.transact(tcodeWriteQuadletRequest, offset, payload[:])
	return err
}

func (n *Node) transact(tcode uint32, offset uint64, payload []byte) (event, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closure++
	closure := n.closure
	req := fwCdevSendRequest{
		tcode:      tcode,
		length:     4,
		offset:     offset,
		closure:    closure,
		generation: n.generation,
	}
	if payload != nil {
		req.data = uint64(uintptr(unsafe.Pointer(&payload[0])))
	}
	err := ioctl(n.fd, fwCdevIocSendRequest, unsafe.Pointer(&req))
	runtime.KeepAlive(payload)
	if err != nil {
		return event{}, fmt.Errorf("send request %#x: %w", offset, err)
	}

	deadline := time.Now().Add(TransactionTimeout)
	for {
		ev, ok, err := n.readEvent()
		if err != nil {
			return event{}, err
		}
		if ok {
			if ev.typ == fwCdevEventResponse && ev.closure == closure {
				if ev.rcode != rcodeComplete {
					return event{}, fmt.Errorf("%w: rcode %d at %#x", ErrResponse, ev.rcode, offset)
				}
				return ev, nil
			}
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return event{}, fmt.Errorf("%w at %#x", ErrTimeout, offset)
		}
		if err := n.poll(remaining); err != nil {
			return event{}, err
		}
	}
}

func (n *Node) poll(timeout time.Duration) error {
	fds := []unix.PollFd{{Fd: int32(n.fd), Events: unix.POLLIN}}
	ms := int(timeout / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	for {
		_, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return err
	}
}

// readEvent reads one event without blocking and dispatches bus resets and
// iso interrupts. ok is false when no event was pending. Callers hold n.mu.
func (n *Node) readEvent() (event, bool, error) {
	buf := make([]byte, 4096)
	m, err := unix.Read(n.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return event{}, false, nil
		}
		return event{}, false, fmt.Errorf("read event: %w", err)
	}
	ev, ok := decodeEvent(buf[:m])
	if !ok {
		return event{}, false, nil
	}
	switch ev.typ {
	case fwCdevEventBusReset:
		n.generation = ev.generation
		n.nodeID = ev.nodeID
	case fwCdevEventIsoInterrupt:
		n.isoPending = append(n.isoPending, ev)
	}
	return ev, true, nil
}

// CycleTimer returns the local CLOCK_REALTIME in microseconds together with
// the bus cycle timer register sampled at the same instant.
func (n *Node) CycleTimer() (localMicros int64, cycleTimer uint32, err error) {
	ct := fwCdevGetCycleTimer{}
	if err := ioctl(n.fd, fwCdevIocGetCycleTimer, unsafe.Pointer(&ct)); err != nil {
		return 0, 0, err
	}
	return int64(ct.localTime), ct.cycleTimer, nil
}

// FindNodes opens every /dev/fw* device file and returns its ROM. Nodes
// that cannot be opened are skipped.
func FindNodes() ([]NodeInfo, error) {
	paths, err := filepath.Glob("/dev/fw*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var nodes []NodeInfo
	for _, path := range paths {
		if strings.ContainsAny(strings.TrimPrefix(filepath.Base(path), "fw"), "abcdefghijklmnopqrstuvwxyz") {
			continue
		}
		n, openErr := Open(path)
		if openErr != nil {
			continue
		}
		nodes = append(nodes, NodeInfo{
			Path:       path,
			Generation: n.generation,
			NodeID:     n.nodeID,
			ROM:        n.ROM(),
		})
		_ = n.Close()
	}
	return nodes, nil
}
