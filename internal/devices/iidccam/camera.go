//go:build linux

// Package iidccam drives IEEE-1394 IIDC cameras as capture units, with
// Format7 image modes received over an isochronous context.
package iidccam

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/pkg/iidc"
	"github.com/smazurov/camunit/pkg/linuxav/firewire"
)

const (
	// DefaultBuffers is the ring size requested before the memory budget.
	DefaultBuffers = 60
	// BufferBudget caps the bytes of all ring buffers together.
	BufferBudget = 25_000_000

	isoChannel        = 0
	isoSpeedS400      = 2
	cycleTimerRetries = 100
	invalidCycle      = 0xffffffff
)

// registers is the subset of *iidc.Camera the backend drives.
type registers interface {
	Info() iidc.ROMInfo
	EnableFrameInfo() (bool, error)

	Format7Modes() ([]iidc.Format7Mode, error)
	SetFormat7(mode iidc.Format7Mode, coding iidc.ColorCoding, width, height uint32) (iidc.PacketInfo, error)
	SetPacketSize(mode iidc.Format7Mode, size uint32) (iidc.PacketInfo, error)
	SetISOChannel(channel, speed uint32) error
	SetTransmission(on bool) error

	Features() ([]iidc.Feature, error)
	Feature(id iidc.FeatureID) (iidc.Feature, error)
	State(id iidc.FeatureID) (iidc.FeatureState, error)
	SetMode(id iidc.FeatureID, m iidc.Mode) error
	SetValue(id iidc.FeatureID, value uint32) error
	SetAbsoluteControl(id iidc.FeatureID, on bool) error
	AbsoluteValue(id iidc.FeatureID) (float32, error)
	SetAbsoluteValue(id iidc.FeatureID, value float32) error
	WhiteBalance() (ub, vr uint32, err error)
	SetWhiteBalance(ub, vr uint32) error

	Trigger() (iidc.TriggerInquiry, error)
	TriggerState() (iidc.TriggerState, error)
	SetTrigger(s iidc.TriggerState) error
	SoftwareTrigger() error
}

// isoStream is the subset of *firewire.IsoContext the backend drives.
type isoStream interface {
	Fd() int
	Frame(i int) ([]byte, error)
	Queue(i int) error
	Start() error
	Dequeue() (firewire.Completed, error)
	Behind() (int, error)
	CycleTimer() (int64, uint32, error)
	Close() error
}

type isoOpener func(cfg firewire.IsoConfig) (isoStream, error)

// Camera is a capture.Device over one IIDC camera.
type Camera struct {
	regs    registers
	node    io.Closer
	openIso isoOpener
	logger  *slog.Logger

	sourceID  string
	frameInfo bool // embedded exposure timestamps enabled
	buffers   int

	modes   map[uint32]iidc.Format7Mode
	mode    iidc.Format7Mode
	packet  iidc.PacketInfo
	hasMode bool

	iso      isoStream
	frames   int
	running  bool
	lastTime int64
	lastCyc  uint32

	// control state
	registry   *capture.Registry
	packetIdx  int
	packetSize uint32
	features   map[iidc.FeatureID]iidc.Feature
}

var (
	_ capture.Device             = (*Camera)(nil)
	_ capture.SourceIdentifier   = (*Camera)(nil)
	_ capture.TimestampCorrector = (*Camera)(nil)
	_ capture.BufferBudgeter     = (*Camera)(nil)
)

func newCamera(regs registers, node io.Closer, open isoOpener, logger *slog.Logger) *Camera {
	info := regs.Info()
	c := &Camera{
		regs:       regs,
		node:       node,
		openIso:    open,
		logger:     logger,
		sourceID:   fmt.Sprintf("0x%016x", info.GUID),
		buffers:    DefaultBuffers,
		modes:      make(map[uint32]iidc.Format7Mode),
		lastCyc:    invalidCycle,
		packetIdx:  -1,
		packetSize: maxPacketSize,
		features:   make(map[iidc.FeatureID]iidc.Feature),
	}
	on, err := regs.EnableFrameInfo()
	switch {
	case err != nil:
		logger.Warn("Failed to enable embedded timestamps", "camera", info.Name(), "error", err)
	case on:
		c.frameInfo = true
		logger.Info("Enabled embedded timestamps", "camera", info.Name())
	}
	return c
}

// SourceID implements capture.SourceIdentifier.
func (c *Camera) SourceID() string { return c.sourceID }

// Fd returns the isochronous context descriptor, or -1 before buffers are
// requested.
func (c *Camera) Fd() int {
	if c.iso == nil {
		return -1
	}
	return c.iso.Fd()
}

// Close releases the isochronous context and closes the node.
func (c *Camera) Close() error {
	c.closeIso()
	if c.node == nil {
		return nil
	}
	return c.node.Close()
}

// pixelFor maps a color coding to the catalog pixel format. Raw codings
// carry no filter information and are reported as grayscale.
func pixelFor(coding iidc.ColorCoding) (capture.PixelFormat, bool) {
	switch coding {
	case iidc.CodingMono8, iidc.CodingRaw8:
		return capture.PixelGray, true
	case iidc.CodingYUV411:
		return capture.PixelIYU1, true
	case iidc.CodingYUV422:
		return capture.PixelUYVY, true
	case iidc.CodingYUV444:
		return capture.PixelIYU2, true
	case iidc.CodingRGB8:
		return capture.PixelRGB24, true
	case iidc.CodingMono16, iidc.CodingMono16S, iidc.CodingRaw16:
		return capture.PixelGray16, true
	case iidc.CodingRGB16, iidc.CodingRGB16S:
		return capture.PixelRGB48, true
	}
	return 0, false
}

func formatToken(mode uint32, coding iidc.ColorCoding) uint64 {
	return uint64(mode)<<32 | uint64(coding)
}

func splitToken(t uint64) (uint32, iidc.ColorCoding) {
	return uint32(t >> 32), iidc.ColorCoding(uint32(t))
}

// Encodings implements capture.FormatProber with one encoding per Format7
// mode and color coding.
func (c *Camera) Encodings() ([]capture.Encoding, error) {
	modes, err := c.regs.Format7Modes()
	if err != nil {
		return nil, err
	}
	c.modes = make(map[uint32]iidc.Format7Mode, len(modes))
	var out []capture.Encoding
	for _, m := range modes {
		c.modes[m.Mode] = m
		for _, coding := range m.Codings {
			pixel, ok := pixelFor(coding)
			if !ok {
				c.logger.Debug("Skipping unknown color coding", "mode", m.Mode, "coding", coding)
				continue
			}
			out = append(out, capture.Encoding{
				Pixel: pixel,
				Name:  fmt.Sprintf("Format7 mode %d %s", m.Mode, coding),
				Token: formatToken(m.Mode, coding),
			})
		}
	}
	return out, nil
}

// Sizes implements capture.FormatProber. Format7 modes are captured at the
// full sensor size.
func (c *Camera) Sizes(enc capture.Encoding) ([]capture.Size, error) {
	mode, _ := splitToken(enc.Token)
	m, ok := c.modes[mode]
	if !ok {
		return nil, fmt.Errorf("unknown format 7 mode %d", mode)
	}
	return []capture.Size{{Width: int(m.MaxWidth), Height: int(m.MaxHeight)}}, nil
}

// TryFormat implements capture.FormatProber without touching the camera.
func (c *Camera) TryFormat(enc capture.Encoding, size capture.Size) (capture.Negotiated, error) {
	mode, coding := splitToken(enc.Token)
	m, ok := c.modes[mode]
	if !ok {
		return capture.Negotiated{}, fmt.Errorf("unknown format 7 mode %d", mode)
	}
	if size.Width != int(m.MaxWidth) || size.Height != int(m.MaxHeight) {
		return capture.Negotiated{}, fmt.Errorf("mode %d only supports %dx%d", mode, m.MaxWidth, m.MaxHeight)
	}
	bpp := coding.BitsPerPixel()
	if bpp == 0 {
		return capture.Negotiated{}, fmt.Errorf("unknown color coding %s", coding)
	}
	stride := size.Width * bpp / 8
	return capture.Negotiated{
		Width:    size.Width,
		Height:   size.Height,
		Stride:   stride,
		MaxBytes: stride * size.Height,
		Token:    enc.Token,
	}, nil
}

// SetFormat implements capture.FormatProber. It selects the mode, applies
// the packet-size control and reads back the packetization.
func (c *Camera) SetFormat(f capture.FormatDescriptor) error {
	mode, coding := splitToken(f.Token)
	m, ok := c.modes[mode]
	if !ok {
		return fmt.Errorf("unknown format 7 mode %d", mode)
	}
	if err := c.regs.SetISOChannel(isoChannel, isoSpeedS400); err != nil {
		return fmt.Errorf("set iso channel: %w", err)
	}
	if _, err := c.regs.SetFormat7(m, coding, uint32(f.Width), uint32(f.Height)); err != nil {
		return err
	}
	info, err := c.regs.SetPacketSize(m, c.packetSize)
	if err != nil {
		return err
	}
	if info.BytesPerPacket == 0 || info.PacketsPerFrame == 0 {
		return fmt.Errorf("mode %d reports no packetization", mode)
	}
	c.mode, c.packet, c.hasMode = m, info, true
	if c.registry != nil && c.packetIdx >= 0 {
		c.registry.At(c.packetIdx).Value = capture.IntValue(int64(info.BytesPerPacket))
	}
	c.logger.Debug("Format 7 mode set", "mode", mode, "coding", coding.String(),
		"packet_size", info.BytesPerPacket, "packets", info.PacketsPerFrame, "bytes", info.TotalBytes)
	return nil
}

func (c *Camera) frameBytes() int {
	return int(c.packet.BytesPerPacket) * int(c.packet.PacketsPerFrame)
}

// BufferCount implements capture.BufferBudgeter: at least DefaultBuffers,
// reduced to fit BufferBudget.
func (c *Camera) BufferCount(f capture.FormatDescriptor, requested int) int {
	n := c.buffers
	if requested > n {
		n = requested
	}
	size := f.MaxBytes
	if c.hasMode {
		size = c.frameBytes()
	}
	if size > 0 && n*size > BufferBudget {
		reduced := BufferBudget / size
		if reduced < 2 {
			reduced = 2
		}
		c.logger.Info("Reducing buffers to fit memory budget", "from", n, "to", reduced)
		n = reduced
	}
	return n
}

// RequestBuffers implements capture.BufferDevice. Each reservation is a
// fresh isochronous context sized for the current mode.
func (c *Camera) RequestBuffers(n int) (int, error) {
	c.closeIso()
	if n == 0 {
		return 0, nil
	}
	if !c.hasMode {
		return 0, errors.New("no format 7 mode selected")
	}
	iso, err := c.openIso(firewire.IsoConfig{
		Channel:         isoChannel,
		Speed:           isoSpeedS400,
		Frames:          n,
		PacketsPerFrame: int(c.packet.PacketsPerFrame),
		BytesPerPacket:  int(c.packet.BytesPerPacket),
	})
	if err != nil {
		return 0, err
	}
	c.iso, c.frames = iso, n
	return n, nil
}

func (c *Camera) closeIso() {
	if c.iso == nil {
		return
	}
	if c.running {
		if err := c.regs.SetTransmission(false); err != nil {
			c.logger.Debug("Failed to stop transmission", "error", err)
		}
	}
	if err := c.iso.Close(); err != nil {
		c.logger.Debug("Failed to close iso context", "error", err)
	}
	c.iso, c.frames, c.running = nil, 0, false
}

// MapBuffer implements capture.BufferDevice with a slot of the context's
// shared mapping.
func (c *Camera) MapBuffer(index int) ([]byte, error) {
	if c.iso == nil {
		return nil, errors.New("no iso context")
	}
	return c.iso.Frame(index)
}

// UnmapBuffer implements capture.BufferDevice. The mapping is released with
// the context.
func (c *Camera) UnmapBuffer(int, []byte) error { return nil }

// QueueBuffer implements capture.BufferDevice.
func (c *Camera) QueueBuffer(index int) error {
	if c.iso == nil {
		return errors.New("no iso context")
	}
	return c.iso.Queue(index)
}

// DequeueBuffer implements capture.BufferDevice. The timestamp is the bus
// arrival time of the frame.
func (c *Camera) DequeueBuffer() (capture.Dequeued, error) {
	if c.iso == nil {
		return capture.Dequeued{}, errors.New("no iso context")
	}
	done, err := c.iso.Dequeue()
	if err != nil {
		if errors.Is(err, firewire.ErrNoFrame) {
			return capture.Dequeued{}, capture.ErrWouldBlock
		}
		return capture.Dequeued{}, err
	}

	if behind, behindErr := c.iso.Behind(); behindErr == nil && behind >= c.frames-2 {
		c.logger.Warn("Iso buffer is full, frames were probably dropped", "behind", behind, "buffers", c.frames)
	}

	ts := time.Now().UnixMicro()
	if local, cyc, ok := c.sampleCycleTimer(); ok {
		c.lastTime, c.lastCyc = local, cyc
		ts = arrivalTime(local, cyc, done.Cycle)
	} else {
		c.lastCyc = invalidCycle
	}

	length := c.frameBytes()
	if total := int(c.packet.TotalBytes); total > 0 && total < length {
		length = total
	}
	return capture.Dequeued{Index: done.Index, Length: length, Timestamp: ts}, nil
}

// sampleCycleTimer reads the local clock and bus cycle timer together,
// retrying while the controller reports an invalid sample.
func (c *Camera) sampleCycleTimer() (int64, uint32, bool) {
	for i := 0; i < cycleTimerRetries; i++ {
		local, cyc, err := c.iso.CycleTimer()
		if err != nil {
			return 0, 0, false
		}
		if cyc != invalidCycle {
			return local, cyc, true
		}
	}
	return 0, 0, false
}

// arrivalTime converts the 16-bit completion cycle of an iso interrupt (3
// bits of seconds, 13 bits of cycle count) to local microseconds using a
// simultaneous (local, cycle timer) sample.
func arrivalTime(local int64, now uint32, completion uint32) int64 {
	const cyclesPerSec = 8000
	const wrap = 8 * cyclesPerSec
	nowCycles := int64((now>>25)&0x7)*cyclesPerSec + int64((now>>12)&0x1fff)
	doneCycles := int64((completion>>13)&0x7)*cyclesPerSec + int64(completion&0x1fff)
	diff := (nowCycles - doneCycles) % wrap
	if diff < 0 {
		diff += wrap
	}
	return local - diff*125
}

// CorrectTimestamp implements capture.TimestampCorrector with the exposure
// start time cameras embed in the first quadlet of each frame.
func (c *Camera) CorrectTimestamp(data []byte, _ int64) (int64, bool) {
	if !c.frameInfo || c.lastCyc == invalidCycle {
		return 0, false
	}
	embedded, ok := iidc.EmbeddedCycle(data)
	if !ok {
		return 0, false
	}
	return iidc.ExposureTime(c.lastTime, c.lastCyc, embedded), true
}

// StreamOn implements capture.Device.
func (c *Camera) StreamOn() error {
	if c.iso == nil {
		return errors.New("no iso context")
	}
	if !c.running {
		if err := c.iso.Start(); err != nil {
			return err
		}
		c.running = true
	}
	if err := c.regs.SetTransmission(true); err != nil {
		return fmt.Errorf("start transmission: %w", err)
	}
	return nil
}

// StreamOff implements capture.Device. The context keeps running so that
// queued frames survive a later StreamOn.
func (c *Camera) StreamOff() error {
	if err := c.regs.SetTransmission(false); err != nil {
		return fmt.Errorf("stop transmission: %w", err)
	}
	return nil
}
