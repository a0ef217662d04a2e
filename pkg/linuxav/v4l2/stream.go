//go:build linux

package v4l2

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// RequestBuffers asks the driver for count memory-mapped capture buffers and
// returns how many it granted. A count of zero releases all buffers.
func (d *Device) RequestBuffers(count uint32) (uint32, error) {
	req := v4l2Requestbuffers{
		count:  count,
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMmap,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return 0, err
	}
	return req.count, nil
}

// QueryBuffer returns the mmap offset and length of buffer index.
func (d *Device) QueryBuffer(index uint32) (BufferInfo, error) {
	buf := v4l2Buffer{
		index:  index,
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMmap,
	}
	if err := ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
		return BufferInfo{}, err
	}
	return BufferInfo{Index: buf.index, Offset: buf.offset, Length: buf.length}, nil
}

// MapBuffer maps a queried buffer into the process address space.
func (d *Device) MapBuffer(info BufferInfo) ([]byte, error) {
	mem, err := unix.Mmap(d.fd, int64(info.Offset), int(info.Length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap buffer %d: %w", info.Index, err)
	}
	return mem, nil
}

// UnmapBuffer releases a mapping returned by MapBuffer.
func (d *Device) UnmapBuffer(mem []byte) error {
	if mem == nil {
		return nil
	}
	return unix.Munmap(mem)
}

// QueueBuffer hands buffer index to the driver for filling.
func (d *Device) QueueBuffer(index uint32) error {
	buf := v4l2Buffer{
		index:  index,
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMmap,
	}
	return ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf))
}

// DequeueBuffer takes the oldest filled buffer from the driver. It returns
// unix.EAGAIN when no buffer is ready.
func (d *Device) DequeueBuffer() (Buffer, error) {
	buf := v4l2Buffer{
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMmap,
	}
	if err := ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		return Buffer{}, err
	}
	return Buffer{
		Index:     buf.index,
		BytesUsed: buf.bytesused,
		Flags:     buf.flags,
		Sequence:  buf.sequence,
		Sec:       int64(buf.timestampSec),
		Usec:      int64(buf.timestampUsec),
	}, nil
}

// StreamOn starts capture.
func (d *Device) StreamOn() error {
	typ := int32(v4l2BufTypeVideoCapture)
	return ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ))
}

// StreamOff stops capture and returns every buffer to the application.
func (d *Device) StreamOff() error {
	typ := int32(v4l2BufTypeVideoCapture)
	return ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ))
}
