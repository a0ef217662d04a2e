//go:build linux

// Package v4l2cam drives memory-mapped V4L2 capture devices as capture
// units.
package v4l2cam

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/pkg/linuxav/v4l2"
)

// node is the subset of *v4l2.Device the camera drives.
type node interface {
	Fd() int
	Close() error

	Formats() ([]v4l2.FormatInfo, error)
	FrameSizes(pixelFormat uint32) ([]v4l2.Resolution, error)
	TryFormat(pf v4l2.PixFormat) (v4l2.PixFormat, error)
	SetFormat(pf v4l2.PixFormat) (v4l2.PixFormat, error)
	GetFormat() (v4l2.PixFormat, error)

	RequestBuffers(count uint32) (uint32, error)
	QueryBuffer(index uint32) (v4l2.BufferInfo, error)
	MapBuffer(info v4l2.BufferInfo) ([]byte, error)
	UnmapBuffer(mem []byte) error
	QueueBuffer(index uint32) error
	DequeueBuffer() (v4l2.Buffer, error)
	StreamOn() error
	StreamOff() error

	QueryControl(id uint32) (v4l2.ControlInfo, error)
	QueryMenu(id, index uint32) (string, error)
	GetControl(id uint32) (int32, error)
	SetControl(id uint32, value int32) error

	Inputs() ([]v4l2.InputInfo, error)
	GetInput() (uint32, error)
	SetInput(index uint32) error
	Standards() ([]v4l2.StandardInfo, error)
	GetStandard() (uint64, error)
	SetStandard(id uint64) error
	Tuner(index uint32) (v4l2.TunerInfo, error)
	GetFrequency(tuner uint32) (uint32, error)
	SetFrequency(tuner, typ, frequency uint32) error

	SubscribeSourceChange() error
	PendingSourceChange() (uint32, error)
}

// Camera is a capture.Device over one V4L2 video node.
type Camera struct {
	dev      node
	sourceID string
	logger   *slog.Logger

	names  map[uint32]string // encodings by device fourcc
	events bool              // source change events subscribed

	// control state
	menuMin   map[uint32]int32
	inputs    []v4l2.InputInfo
	standards []uint64
	tuners    map[uint32]v4l2.TunerInfo
}

var (
	_ capture.Device           = (*Camera)(nil)
	_ capture.SourceIdentifier = (*Camera)(nil)
	_ capture.FormatWatcher    = (*Camera)(nil)
)

// Open opens the video node at path. sourceID is reported as the frames'
// source metadata.
func Open(path, sourceID string, logger *slog.Logger) (*Camera, error) {
	dev, err := v4l2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	caps, err := dev.Capability()
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	if !caps.VideoCapture() || !caps.Streaming() {
		_ = dev.Close()
		return nil, fmt.Errorf("%s (%s) does not support streaming capture", path, caps.Card)
	}
	logger.Debug("Opened V4L2 device", "path", path, "card", caps.Card, "driver", caps.Driver)
	return newCamera(dev, sourceID, logger), nil
}

func newCamera(dev node, sourceID string, logger *slog.Logger) *Camera {
	c := &Camera{
		dev:      dev,
		sourceID: sourceID,
		logger:   logger,
		names:    make(map[uint32]string),
		menuMin:  make(map[uint32]int32),
		tuners:   make(map[uint32]v4l2.TunerInfo),
	}
	if err := dev.SubscribeSourceChange(); err != nil {
		logger.Debug("Source change events unavailable", "error", err)
	} else {
		c.events = true
	}
	return c
}

// SourceID implements capture.SourceIdentifier.
func (c *Camera) SourceID() string { return c.sourceID }

// Fd returns the video node descriptor.
func (c *Camera) Fd() int { return c.dev.Fd() }

// Close closes the video node.
func (c *Camera) Close() error { return c.dev.Close() }

// pixelFor maps a device fourcc to the catalog pixel format.
func pixelFor(fourcc uint32) capture.PixelFormat {
	if fourcc == v4l2.PixFmtPWC2 {
		return capture.PixelYUV420
	}
	return capture.PixelFormat(fourcc)
}

// Encodings implements capture.FormatProber.
func (c *Camera) Encodings() ([]capture.Encoding, error) {
	formats, err := c.dev.Formats()
	if err != nil {
		return nil, err
	}
	out := make([]capture.Encoding, 0, len(formats))
	for _, f := range formats {
		c.names[f.PixelFormat] = f.FormatName
		out = append(out, capture.Encoding{
			Pixel: pixelFor(f.PixelFormat),
			Name:  f.FormatName,
			Token: uint64(f.PixelFormat),
		})
	}
	return out, nil
}

// Sizes implements capture.FormatProber. Devices without frame size
// enumeration report none.
func (c *Camera) Sizes(enc capture.Encoding) ([]capture.Size, error) {
	res, err := c.dev.FrameSizes(uint32(enc.Token))
	if err != nil {
		if errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EINVAL) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]capture.Size, len(res))
	for i, r := range res {
		out[i] = capture.Size{Width: int(r.Width), Height: int(r.Height)}
	}
	return out, nil
}

// TryFormat implements capture.FormatProber. A driver that substitutes a
// different encoding rejects the trial.
func (c *Camera) TryFormat(enc capture.Encoding, size capture.Size) (capture.Negotiated, error) {
	fourcc := uint32(enc.Token)
	got, err := c.dev.TryFormat(v4l2.PixFormat{
		Width:       uint32(size.Width),
		Height:      uint32(size.Height),
		PixelFormat: fourcc,
	})
	if err != nil {
		return capture.Negotiated{}, err
	}
	if got.PixelFormat != fourcc {
		return capture.Negotiated{}, fmt.Errorf("driver substituted %s for %s",
			v4l2.FormatFourCC(got.PixelFormat), v4l2.FormatFourCC(fourcc))
	}
	return negotiated(got), nil
}

func negotiated(pf v4l2.PixFormat) capture.Negotiated {
	return capture.Negotiated{
		Width:    int(pf.Width),
		Height:   int(pf.Height),
		Stride:   int(pf.BytesPerLine),
		MaxBytes: int(pf.SizeImage),
		Token:    uint64(pf.PixelFormat),
	}
}

// SetFormat implements capture.FormatProber. The committed geometry must
// match the catalogued one.
func (c *Camera) SetFormat(f capture.FormatDescriptor) error {
	fourcc := uint32(f.Token)
	got, err := c.dev.SetFormat(v4l2.PixFormat{
		Width:       uint32(f.Width),
		Height:      uint32(f.Height),
		PixelFormat: fourcc,
	})
	if err != nil {
		return err
	}
	if got.PixelFormat != fourcc || int(got.Width) != f.Width || int(got.Height) != f.Height {
		return fmt.Errorf("driver set %s %dx%d instead of %s", v4l2.FormatFourCC(got.PixelFormat),
			got.Width, got.Height, f)
	}
	return nil
}

// FormatChanged implements capture.FormatWatcher from source change
// events. It returns nil when no resolution change is pending.
func (c *Camera) FormatChanged() (*capture.FormatDescriptor, error) {
	if !c.events {
		return nil, nil
	}
	changes, err := c.dev.PendingSourceChange()
	if err != nil {
		return nil, fmt.Errorf("dequeue source change: %w", err)
	}
	if changes&v4l2.SourceChangeResolution == 0 {
		return nil, nil
	}
	pf, err := c.dev.GetFormat()
	if err != nil {
		return nil, fmt.Errorf("read format after source change: %w", err)
	}
	f := capture.FormatDescriptor{
		Pixel:    pixelFor(pf.PixelFormat),
		Name:     c.names[pf.PixelFormat],
		Width:    int(pf.Width),
		Height:   int(pf.Height),
		Stride:   int(pf.BytesPerLine),
		MaxBytes: int(pf.SizeImage),
		Token:    uint64(pf.PixelFormat),
	}
	if bpp := f.Pixel.BitsPerPixel(); bpp > 0 && (f.Stride == 0 || f.Stride*f.Height > f.MaxBytes) {
		f.Stride = f.Width * bpp / 8
	}
	return &f, nil
}

// RequestBuffers implements capture.BufferDevice.
func (c *Camera) RequestBuffers(n int) (int, error) {
	granted, err := c.dev.RequestBuffers(uint32(n))
	if err != nil {
		if n > 0 && errors.Is(err, unix.EINVAL) {
			return 0, fmt.Errorf("mmap streaming not supported: %w", err)
		}
		return 0, err
	}
	return int(granted), nil
}

// MapBuffer implements capture.BufferDevice.
func (c *Camera) MapBuffer(index int) ([]byte, error) {
	info, err := c.dev.QueryBuffer(uint32(index))
	if err != nil {
		return nil, fmt.Errorf("query buffer %d: %w", index, err)
	}
	mem, err := c.dev.MapBuffer(info)
	if err != nil {
		return nil, fmt.Errorf("map buffer %d: %w", index, err)
	}
	return mem, nil
}

// UnmapBuffer implements capture.BufferDevice.
func (c *Camera) UnmapBuffer(_ int, mem []byte) error {
	return c.dev.UnmapBuffer(mem)
}

// QueueBuffer implements capture.BufferDevice.
func (c *Camera) QueueBuffer(index int) error {
	return c.dev.QueueBuffer(uint32(index))
}

// DequeueBuffer implements capture.BufferDevice.
func (c *Camera) DequeueBuffer() (capture.Dequeued, error) {
	buf, err := c.dev.DequeueBuffer()
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return capture.Dequeued{}, capture.ErrWouldBlock
		}
		return capture.Dequeued{}, err
	}
	return capture.Dequeued{
		Index:     int(buf.Index),
		Length:    int(buf.BytesUsed),
		Timestamp: buf.Micros(),
	}, nil
}

// StreamOn implements capture.Device.
func (c *Camera) StreamOn() error { return c.dev.StreamOn() }

// StreamOff implements capture.Device.
func (c *Camera) StreamOff() error { return c.dev.StreamOff() }

// ReclaimsOnStreamOff implements capture.StreamOffReclaimer. VIDIOC_STREAMOFF
// dequeues every buffer, so the ring is queued again before the next
// VIDIOC_STREAMON.
func (c *Camera) ReclaimsOnStreamOff() bool { return true }
