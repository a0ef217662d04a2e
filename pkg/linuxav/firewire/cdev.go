//go:build linux

package firewire

import (
	"encoding/binary"
	"unsafe"
)

// Compile-time struct size assertions. Explicit tail padding keeps the Go
// layout equal to the kernel's 8-byte aligned layout on 32-bit ARM, where Go
// aligns uint64 to 4 bytes.
var (
	_ [40]byte = [unsafe.Sizeof(fwCdevGetInfo{})]byte{}
	_ [40]byte = [unsafe.Sizeof(fwCdevSendRequest{})]byte{}
	_ [32]byte = [unsafe.Sizeof(fwCdevCreateIsoContext{})]byte{}
	_ [24]byte = [unsafe.Sizeof(fwCdevQueueIso{})]byte{}
	_ [16]byte = [unsafe.Sizeof(fwCdevStartIso{})]byte{}
	_ [4]byte  = [unsafe.Sizeof(fwCdevStopIso{})]byte{}
	_ [16]byte = [unsafe.Sizeof(fwCdevGetCycleTimer{})]byte{}
	_ [40]byte = [unsafe.Sizeof(fwCdevBusReset{})]byte{}
)

// IOCTL constants.
const (
	fwCdevIocGetInfo          = 0xc0282300
	fwCdevIocSendRequest      = 0x40282301
	fwCdevIocCreateIsoContext = 0xc0202308
	fwCdevIocQueueIso         = 0xc0182309
	fwCdevIocStartIso         = 0x4010230a
	fwCdevIocStopIso          = 0x4004230b
	fwCdevIocGetCycleTimer    = 0x8010230c
)

// Client ABI version announced in GET_INFO.
const fwCdevVersion = 4

// Event types.
const (
	fwCdevEventBusReset     = 0x00
	fwCdevEventResponse     = 0x01
	fwCdevEventRequest      = 0x02
	fwCdevEventIsoInterrupt = 0x03
)

// Transaction codes and response codes.
const (
	tcodeWriteQuadletRequest = 0
	tcodeReadQuadletRequest  = 4
	rcodeComplete            = 0
)

// Isochronous context types and packet control bits.
const (
	fwCdevIsoContextReceive  = 1
	fwCdevIsoInterrupt       = 1 << 16
	fwCdevIsoSync            = 1 << 17
	fwCdevIsoMatchAllTags    = 15
	isoPacketHeaderBytes     = 4
	isoControlHeaderLenShift = 24
)

type fwCdevGetInfo struct {
	version         uint32
	romLength       uint32
	rom             uint64
	busReset        uint64
	busResetClosure uint64
	card            uint32
	_               [4]byte
}

type fwCdevSendRequest struct {
	tcode      uint32
	length     uint32
	offset     uint64
	closure    uint64
	data       uint64
	generation uint32
	_          [4]byte
}

type fwCdevCreateIsoContext struct {
	typ        uint32
	headerSize uint32
	channel    uint32
	speed      uint32
	closure    uint64
	handle     uint32
	_          [4]byte
}

type fwCdevQueueIso struct {
	packets uint64
	data    uint64
	size    uint32
	handle  uint32
}

type fwCdevStartIso struct {
	cycle  int32
	sync   uint32
	tags   uint32
	handle uint32
}

type fwCdevStopIso struct {
	handle uint32
}

type fwCdevGetCycleTimer struct {
	localTime  uint64
	cycleTimer uint32
	_          [4]byte
}

type fwCdevBusReset struct {
	closure    uint64
	typ        uint32
	nodeID     uint32
	localNode  uint32
	bmNode     uint32
	irmNode    uint32
	rootNode   uint32
	generation uint32
	_          [4]byte
}

// event is a decoded record read from the cdev descriptor.
type event struct {
	typ     uint32
	closure uint64

	// response
	rcode uint32
	data  []byte

	// bus reset
	generation uint32
	nodeID     uint32

	// iso interrupt
	cycle uint32
}

// decodeEvent parses one event record. Events are native endian; the
// response payload is raw bus data.
func decodeEvent(b []byte) (event, bool) {
	if len(b) < 12 {
		return event{}, false
	}
	ne := binary.NativeEndian
	ev := event{
		closure: ne.Uint64(b[0:8]),
		typ:     ne.Uint32(b[8:12]),
	}
	switch ev.typ {
	case fwCdevEventResponse:
		if len(b) < 20 {
			return event{}, false
		}
		ev.rcode = ne.Uint32(b[12:16])
		n := int(ne.Uint32(b[16:20]))
		if 20+n > len(b) {
			n = len(b) - 20
		}
		ev.data = append([]byte(nil), b[20:20+n]...)
	case fwCdevEventBusReset:
		if len(b) < 36 {
			return event{}, false
		}
		ev.nodeID = ne.Uint32(b[12:16])
		ev.generation = ne.Uint32(b[32:36])
	case fwCdevEventIsoInterrupt:
		if len(b) < 20 {
			return event{}, false
		}
		ev.cycle = ne.Uint32(b[12:16])
	}
	return ev, true
}
