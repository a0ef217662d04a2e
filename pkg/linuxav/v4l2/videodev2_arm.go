//go:build linux && arm

package v4l2

import "unsafe"

// Compile-time struct size assertions for 32-bit ARM.
var (
	_ [68]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
	_ [204]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [128]byte = [unsafe.Sizeof(v4l2Event{})]byte{}
)

// IOCTL constants for 32-bit ARM. struct timeval and struct timespec are
// 8 bytes, so every ioctl carrying them has a different size field.
const (
	vidiocGFmt     = 0xc0cc5604
	vidiocSFmt     = 0xc0cc5605
	vidiocQuerybuf = 0xc0445609
	vidiocQbuf     = 0xc044560f
	vidiocDqbuf    = 0xc0445611
	vidiocTryFmt   = 0xc0cc5640
	vidiocDqevent  = 0x80805659
)

// v4l2Buffer has size 68 bytes.
type v4l2Buffer struct {
	index         uint32   // offset 0
	typ           uint32   // offset 4
	bytesused     uint32   // offset 8
	flags         uint32   // offset 12
	field         uint32   // offset 16
	timestampSec  int32    // offset 20
	timestampUsec int32    // offset 24
	timecode      [16]byte // offset 28
	sequence      uint32   // offset 44
	memory        uint32   // offset 48
	offset        uint32   // offset 52 (union m)
	length        uint32   // offset 56
	reserved2     uint32   // offset 60
	requestFd     int32    // offset 64
}

// v4l2Format has size 204 bytes.
type v4l2Format struct {
	typ uint32        // offset 0
	pix v4l2PixFormat // offset 4
	_   [152]byte     // rest of the 200-byte union
}

// v4l2Event has size 128 bytes. The union holds an s64 so it is 8-byte aligned.
type v4l2Event struct {
	typ       uint32    // offset 0
	_         [4]byte   // padding
	u         [64]byte  // offset 8
	pending   uint32    // offset 72
	sequence  uint32    // offset 76
	timestamp [8]byte   // offset 80 - struct timespec
	id        uint32    // offset 88
	reserved  [8]uint32 // offset 92
	_         [4]byte   // tail padding
}
