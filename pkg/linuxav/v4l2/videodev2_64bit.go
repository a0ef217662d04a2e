//go:build linux && (amd64 || arm64)

package v4l2

import "unsafe"

// Compile-time struct size assertions.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [88]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
	_ [208]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [136]byte = [unsafe.Sizeof(v4l2Event{})]byte{}
)

// IOCTL constants for 64-bit architectures.
const (
	vidiocGFmt     = 0xc0d05604
	vidiocSFmt     = 0xc0d05605
	vidiocQuerybuf = 0xc0585609
	vidiocQbuf     = 0xc058560f
	vidiocDqbuf    = 0xc0585611
	vidiocTryFmt   = 0xc0d05640
	vidiocDqevent  = 0x80885659
)

// v4l2Buffer has size 88 bytes.
type v4l2Buffer struct {
	index         uint32   // offset 0
	typ           uint32   // offset 4
	bytesused     uint32   // offset 8
	flags         uint32   // offset 12
	field         uint32   // offset 16
	_             [4]byte  // padding
	timestampSec  int64    // offset 24
	timestampUsec int64    // offset 32
	timecode      [16]byte // offset 40
	sequence      uint32   // offset 56
	memory        uint32   // offset 60
	offset        uint32   // offset 64 (union m)
	_             [4]byte  // rest of union m
	length        uint32   // offset 72
	reserved2     uint32   // offset 76
	requestFd     int32    // offset 80
	_             [4]byte  // tail padding
}

// v4l2Format has size 208 bytes. The fmt union is pointer aligned.
type v4l2Format struct {
	typ uint32        // offset 0
	_   [4]byte       // padding
	pix v4l2PixFormat // offset 8
	_   [152]byte     // rest of the 200-byte union
}

// v4l2Event has size 136 bytes.
type v4l2Event struct {
	typ       uint32    // offset 0
	_         [4]byte   // padding
	u         [64]byte  // offset 8 - union containing src_change at offset 0
	pending   uint32    // offset 72
	sequence  uint32    // offset 76
	timestamp [16]byte  // offset 80 - struct timespec
	id        uint32    // offset 96
	reserved  [8]uint32 // offset 100
	_         [4]byte   // tail padding
}
