package capture

import (
	"errors"
	"io"
	"log/slog"
	"syscall"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDevice is an in-memory Device. Buffers are plain byte slices and
// queued indices are returned in FIFO order.
type fakeDevice struct {
	encodings []Encoding
	sizes     map[PixelFormat][]Size
	trial     func(enc Encoding, size Size) (Negotiated, error)
	setErr    error
	committed []FormatDescriptor

	grant       int // 0 grants what was requested, otherwise always this many
	bufSize     int
	mapFailAt   int
	queueFailAt int
	releaseErr  error
	requests    []int
	mapped      map[int]bool
	maps        int
	unmaps      int
	queue       []int
	queueErrs   []error
	dequeueErrs []error

	streaming   bool
	streamOnErr error
	reclaims    bool // StreamOff empties the queue, as V4L2 does
	closed      bool

	// control hardware state
	hwMode     int64
	hwExposure int64
	setErrs    map[string]error
	getErrs    map[string]error
	setCalls   map[string]int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		encodings: []Encoding{
			{Pixel: PixelYUYV, Name: "YUYV 4:2:2"},
			{Pixel: PixelGray, Name: "Greyscale"},
		},
		sizes: map[PixelFormat][]Size{
			PixelYUYV: {{640, 480}, {320, 240}},
			PixelGray: {{640, 480}},
		},
		bufSize:     640 * 480 * 2,
		mapFailAt:   -1,
		queueFailAt: -1,
		mapped:      make(map[int]bool),
		hwMode:      2,
		hwExposure:  100,
		setErrs:     make(map[string]error),
		getErrs:     make(map[string]error),
		setCalls:    make(map[string]int),
	}
}

func (d *fakeDevice) Encodings() ([]Encoding, error) { return d.encodings, nil }

func (d *fakeDevice) Sizes(enc Encoding) ([]Size, error) { return d.sizes[enc.Pixel], nil }

func (d *fakeDevice) TryFormat(enc Encoding, size Size) (Negotiated, error) {
	if d.trial != nil {
		return d.trial(enc, size)
	}
	bpp := enc.Pixel.BitsPerPixel()
	stride := size.Width * bpp / 8
	return Negotiated{
		Width:    size.Width,
		Height:   size.Height,
		Stride:   stride,
		MaxBytes: stride * size.Height,
	}, nil
}

func (d *fakeDevice) SetFormat(f FormatDescriptor) error {
	if d.setErr != nil {
		return d.setErr
	}
	d.committed = append(d.committed, f)
	return nil
}

func (d *fakeDevice) RequestBuffers(n int) (int, error) {
	d.requests = append(d.requests, n)
	if n == 0 {
		d.queue = nil
		return 0, d.releaseErr
	}
	if d.grant > 0 {
		return d.grant, nil
	}
	return n, nil
}

func (d *fakeDevice) MapBuffer(index int) ([]byte, error) {
	if index == d.mapFailAt {
		return nil, syscall.ENOMEM
	}
	d.mapped[index] = true
	d.maps++
	return make([]byte, d.bufSize), nil
}

func (d *fakeDevice) UnmapBuffer(index int, _ []byte) error {
	if !d.mapped[index] {
		return errors.New("double unmap")
	}
	delete(d.mapped, index)
	d.unmaps++
	return nil
}

func (d *fakeDevice) QueueBuffer(index int) error {
	if index == d.queueFailAt {
		return syscall.EIO
	}
	if len(d.queueErrs) > 0 {
		err := d.queueErrs[0]
		d.queueErrs = d.queueErrs[1:]
		if err != nil {
			return err
		}
	}
	d.queue = append(d.queue, index)
	return nil
}

func (d *fakeDevice) DequeueBuffer() (Dequeued, error) {
	if len(d.dequeueErrs) > 0 {
		err := d.dequeueErrs[0]
		d.dequeueErrs = d.dequeueErrs[1:]
		if err != nil {
			return Dequeued{}, err
		}
	}
	if !d.streaming || len(d.queue) == 0 {
		return Dequeued{}, ErrWouldBlock
	}
	idx := d.queue[0]
	d.queue = d.queue[1:]
	return Dequeued{Index: idx, Length: 1000, Timestamp: int64(idx) * 1000}, nil
}

func (d *fakeDevice) StreamOn() error {
	if d.streamOnErr != nil {
		return d.streamOnErr
	}
	d.streaming = true
	return nil
}

func (d *fakeDevice) StreamOff() error {
	d.streaming = false
	if d.reclaims {
		d.queue = nil
	}
	return nil
}

func (d *fakeDevice) ReclaimsOnStreamOff() bool { return d.reclaims }

func (d *fakeDevice) Fd() int { return 42 }

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

// Controls model an IIDC-style feature: an Off/Auto/Manual mode and an
// exposure value that is only adjustable in manual mode.
func (d *fakeDevice) DiscoverControls(r *Registry) error {
	mode := r.Add(ControlDescriptor{
		ID:    "exposure-mode",
		Label: "Exposure",
		Kind:  KindEnum,
		Options: []EnumOption{
			{Label: "Off", Enabled: true},
			{Label: "Auto", Enabled: true},
			{Label: "Manual", Enabled: true},
		},
		Value:   IntValue(d.hwMode),
		Enabled: true,
	})
	exposure := r.Add(ControlDescriptor{
		ID:      "exposure",
		Label:   "Exposure",
		Kind:    KindInteger,
		Int:     IntRange{Min: 0, Max: 1000, Step: 1},
		Value:   IntValue(d.hwExposure),
		Enabled: d.hwMode == 2,
	})
	r.Depend(mode, exposure)
	r.Add(ControlDescriptor{
		ID:      "gamma",
		Label:   "Gamma",
		Kind:    KindFloat,
		Float:   FloatRange{Min: 0.5, Max: 4},
		Value:   FloatValue(1),
		Enabled: true,
	})
	r.Add(ControlDescriptor{
		ID:      "trigger-now",
		Label:   "Trigger",
		Kind:    KindButton,
		Enabled: true,
	})
	return nil
}

func (d *fakeDevice) SetControl(c *ControlDescriptor, v Value) error {
	d.setCalls[c.ID]++
	if err := d.setErrs[c.ID]; err != nil {
		return err
	}
	switch c.ID {
	case "exposure-mode":
		d.hwMode = v.Int
	case "exposure":
		// hardware only accepts even values
		d.hwExposure = v.Int &^ 1
	}
	return nil
}

func (d *fakeDevice) GetControl(c *ControlDescriptor) (Value, error) {
	if err := d.getErrs[c.ID]; err != nil {
		return Value{}, err
	}
	switch c.ID {
	case "exposure-mode":
		return IntValue(d.hwMode), nil
	case "exposure":
		return IntValue(d.hwExposure), nil
	}
	return c.Value, nil
}

func (d *fakeDevice) RefreshControl(c *ControlDescriptor) error {
	if c.ID == "exposure" {
		c.Enabled = d.hwMode == 2
		c.Value = IntValue(d.hwExposure)
	}
	return nil
}
