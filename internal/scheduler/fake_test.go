package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/internal/devices"
	"github.com/smazurov/camunit/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDevice is an in-memory capture device. Each byte written to its pipe
// makes one queued buffer ready.
type fakeDevice struct {
	rfd, wfd int

	queue     []int
	streaming bool
	closed    bool

	mode     int64 // 0 off, 1 auto, 2 manual
	exposure int64
	gamma    float64

	dequeueErr error
	pending    *capture.FormatDescriptor
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("Pipe2() error: %v", err)
	}
	d := &fakeDevice{rfd: p[0], wfd: p[1], mode: 1, exposure: 100, gamma: 1}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// ready makes n buffers ready for dequeue.
func (d *fakeDevice) ready(t *testing.T, n int) {
	t.Helper()
	buf := make([]byte, n)
	if _, err := unix.Write(d.wfd, buf); err != nil {
		t.Fatalf("write pipe: %v", err)
	}
}

func (d *fakeDevice) Encodings() ([]capture.Encoding, error) {
	return []capture.Encoding{
		{Pixel: capture.PixelYUYV, Name: "YUYV 4:2:2"},
		{Pixel: capture.PixelGray, Name: "Greyscale"},
	}, nil
}

func (d *fakeDevice) Sizes(enc capture.Encoding) ([]capture.Size, error) {
	if enc.Pixel == capture.PixelYUYV {
		return []capture.Size{{Width: 640, Height: 480}, {Width: 320, Height: 240}}, nil
	}
	return []capture.Size{{Width: 640, Height: 480}}, nil
}

func (d *fakeDevice) TryFormat(enc capture.Encoding, size capture.Size) (capture.Negotiated, error) {
	stride := size.Width * enc.Pixel.BitsPerPixel() / 8
	return capture.Negotiated{
		Width:    size.Width,
		Height:   size.Height,
		Stride:   stride,
		MaxBytes: stride * size.Height,
	}, nil
}

func (d *fakeDevice) SetFormat(capture.FormatDescriptor) error { return nil }

func (d *fakeDevice) DiscoverControls(r *capture.Registry) error {
	mode := r.Add(capture.ControlDescriptor{
		ID:    "exposure-mode",
		Label: "Exposure Mode",
		Kind:  capture.KindEnum,
		Options: []capture.EnumOption{
			{Label: "Off", Enabled: true},
			{Label: "Auto", Enabled: true},
			{Label: "Manual", Enabled: true},
		},
		Value:   capture.IntValue(d.mode),
		Enabled: true,
	})
	exposure := r.Add(capture.ControlDescriptor{
		ID:      "exposure",
		Label:   "Exposure",
		Kind:    capture.KindInteger,
		Int:     capture.IntRange{Min: 0, Max: 1000, Step: 1},
		Value:   capture.IntValue(d.exposure),
		Enabled: d.mode == 2,
	})
	r.Depend(mode, exposure)
	r.Add(capture.ControlDescriptor{
		ID:      "gamma",
		Label:   "Gamma",
		Kind:    capture.KindFloat,
		Float:   capture.FloatRange{Min: 0.5, Max: 4},
		Value:   capture.FloatValue(d.gamma),
		Enabled: true,
	})
	return nil
}

func (d *fakeDevice) SetControl(c *capture.ControlDescriptor, v capture.Value) error {
	switch c.ID {
	case "exposure-mode":
		d.mode = v.Int
	case "exposure":
		// even values only
		d.exposure = v.Int &^ 1
	case "gamma":
		d.gamma = v.Float
	}
	return nil
}

func (d *fakeDevice) GetControl(c *capture.ControlDescriptor) (capture.Value, error) {
	switch c.ID {
	case "exposure-mode":
		return capture.IntValue(d.mode), nil
	case "exposure":
		return capture.IntValue(d.exposure), nil
	case "gamma":
		return capture.FloatValue(d.gamma), nil
	}
	return capture.Value{}, fmt.Errorf("unknown control %q", c.ID)
}

func (d *fakeDevice) RefreshControl(c *capture.ControlDescriptor) error {
	if c.ID == "exposure" {
		c.Enabled = d.mode == 2
		c.Value = capture.IntValue(d.exposure)
	}
	return nil
}

func (d *fakeDevice) RequestBuffers(n int) (int, error) {
	if n == 0 {
		d.queue = nil
	}
	return n, nil
}

func (d *fakeDevice) MapBuffer(int) ([]byte, error) { return make([]byte, 64), nil }

func (d *fakeDevice) UnmapBuffer(int, []byte) error { return nil }

func (d *fakeDevice) QueueBuffer(index int) error {
	d.queue = append(d.queue, index)
	return nil
}

func (d *fakeDevice) DequeueBuffer() (capture.Dequeued, error) {
	if err := d.dequeueErr; err != nil {
		d.dequeueErr = nil
		return capture.Dequeued{}, err
	}
	if !d.streaming || len(d.queue) == 0 {
		return capture.Dequeued{}, capture.ErrWouldBlock
	}
	var b [1]byte
	if n, err := unix.Read(d.rfd, b[:]); err != nil || n == 0 {
		return capture.Dequeued{}, capture.ErrWouldBlock
	}
	idx := d.queue[0]
	d.queue = d.queue[1:]
	return capture.Dequeued{Index: idx, Length: 32, Timestamp: time.Now().UnixMicro()}, nil
}

func (d *fakeDevice) StreamOn() error {
	d.streaming = true
	return nil
}

func (d *fakeDevice) StreamOff() error {
	d.streaming = false
	return nil
}

func (d *fakeDevice) Fd() int { return d.rfd }

func (d *fakeDevice) FormatChanged() (*capture.FormatDescriptor, error) {
	f := d.pending
	d.pending = nil
	return f, nil
}

func (d *fakeDevice) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	_ = unix.Close(d.rfd)
	_ = unix.Close(d.wfd)
	return nil
}

type fakeOpener struct {
	devices map[string]*fakeDevice
}

func (o *fakeOpener) Open(_ context.Context, id string) (capture.Device, devices.DeviceInfo, error) {
	dev, ok := o.devices[id]
	if !ok {
		return nil, devices.DeviceInfo{}, fmt.Errorf("%w: %s", devices.ErrDeviceNotFound, id)
	}
	return dev, devices.DeviceInfo{
		ID:     id,
		Name:   "Test " + id,
		Driver: "fake",
		Type:   devices.TypeWebcam,
		Ready:  true,
	}, nil
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func eventsOf[T events.Event](r *recorder) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []T
	for _, ev := range r.events {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *fakeDevice, *recorder) {
	t.Helper()
	dev := newFakeDevice(t)
	rec := &recorder{}
	opener := &fakeOpener{devices: map[string]*fakeDevice{"cam0": dev}}
	base := []Option{
		WithLogger(testLogger()),
		WithUnitLogger(testLogger()),
		WithPublisher(rec),
		WithPollInterval(10 * time.Millisecond),
	}
	return New(opener, append(base, opts...)...), dev, rec
}
