package capture

// Device is the contract a backend satisfies for a Unit to drive it.
type Device interface {
	FormatProber
	ControlBackend
	BufferDevice

	// StreamOn tells the device to begin capture into queued buffers.
	StreamOn() error
	// StreamOff halts capture. Buffers stay mapped; see StreamOffReclaimer
	// for devices that also dequeue them.
	StreamOff() error
	// Fd returns the descriptor the scheduler polls for readability, or -1
	// when the backend has none and must be polled periodically.
	Fd() int
	Close() error
}

// Encoding is one device-reported pixel encoding.
type Encoding struct {
	Pixel PixelFormat
	Name  string
	Token uint64
}

// Size is a frame geometry in pixels.
type Size struct {
	Width  int
	Height int
}

// Negotiated is the device's answer to a trial or committed negotiation.
type Negotiated struct {
	Width    int
	Height   int
	Stride   int
	MaxBytes int
	Token    uint64
}

// FormatProber enumerates and negotiates formats.
type FormatProber interface {
	Encodings() ([]Encoding, error)
	// Sizes reports the discrete sizes for an encoding. An empty result
	// means the device cannot enumerate sizes.
	Sizes(enc Encoding) ([]Size, error)
	// TryFormat proposes a format without committing it.
	TryFormat(enc Encoding, size Size) (Negotiated, error)
	// SetFormat commits a previously probed descriptor.
	SetFormat(f FormatDescriptor) error
}

// ControlBackend reads and writes controls for the Registry.
type ControlBackend interface {
	// DiscoverControls adds the device's controls to r.
	DiscoverControls(r *Registry) error
	SetControl(d *ControlDescriptor, v Value) error
	GetControl(d *ControlDescriptor) (Value, error)
	// RefreshControl re-reads the enabled flag, bounds and value of d from
	// hardware after a control it depends on changed. Option lists are
	// replaced, not filtered.
	RefreshControl(d *ControlDescriptor) error
}

// Dequeued describes a buffer handed back by the device.
type Dequeued struct {
	Index     int
	Length    int
	Timestamp int64 // microseconds
}

// BufferDevice owns the kernel side of the buffer ring.
type BufferDevice interface {
	// RequestBuffers reserves n buffers and returns the count granted.
	// RequestBuffers(0) releases the reservation.
	RequestBuffers(n int) (int, error)
	MapBuffer(index int) ([]byte, error)
	UnmapBuffer(index int, mem []byte) error
	QueueBuffer(index int) error
	// DequeueBuffer returns ErrWouldBlock when nothing is ready.
	DequeueBuffer() (Dequeued, error)
}

// TimestampCorrector is implemented by backends that can recover a better
// timestamp from the frame itself. ok is false when the correction was not
// possible and the device timestamp should stand.
type TimestampCorrector interface {
	CorrectTimestamp(data []byte, deviceTS int64) (ts int64, ok bool)
}

// BufferBudgeter caps the number of buffers requested for a format.
type BufferBudgeter interface {
	BufferCount(f FormatDescriptor, requested int) int
}

// StreamOffReclaimer is implemented by devices whose StreamOff hands every
// queued buffer back to the application, as V4L2 does. The unit re-queues
// the ring before the next StreamOn.
type StreamOffReclaimer interface {
	ReclaimsOnStreamOff() bool
}

// SourceIdentifier supplies the Frame.SourceID metadata.
type SourceIdentifier interface {
	SourceID() string
}

// FormatWatcher is implemented by devices that can detect an input format
// change on their own (for example an HDMI source switching resolution).
type FormatWatcher interface {
	// FormatChanged consumes pending change notifications and reports the
	// device's current format when one occurred.
	FormatChanged() (*FormatDescriptor, error)
}
