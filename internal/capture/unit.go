package capture

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// DefaultBufferCount is the ring size requested when none is configured.
const DefaultBufferCount = 5

// Option configures a Unit.
type Option func(*Unit)

// WithHandler sets the downstream frame handler.
func WithHandler(h FrameHandler) Option {
	return func(u *Unit) { u.handler = h }
}

// WithLogger sets the unit's logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *Unit) { u.logger = l }
}

// WithBufferCount sets how many buffers Configure requests.
func WithBufferCount(n int) Option {
	return func(u *Unit) {
		if n > 0 {
			u.bufferCount = n
		}
	}
}

// WithStateHook registers a callback for every state transition.
func WithStateHook(fn func(from, to State)) Option {
	return func(u *Unit) { u.onState = fn }
}

// WithRestartHook registers a callback invoked after each automatic
// restart attempt. cause is the dequeue error, err the restart result.
func WithRestartHook(fn func(cause, err error)) Option {
	return func(u *Unit) { u.onRestart = fn }
}

// Unit is one capture device instance driven through
// Idle -> Configured -> Streaming.
type Unit struct {
	dev         Device
	logger      *slog.Logger
	handler     FrameHandler
	bufferCount int
	onState     func(from, to State)
	onRestart   func(cause, err error)

	catalog  *Catalog
	registry *Registry
	ring     *Ring
	emitter  *Emitter

	state     State
	format    *FormatDescriptor
	stats     Stats
	closed    bool
	reclaimed bool // device dropped its queue at the last StreamOff
}

// NewUnit wraps an opened device, enumerating its formats and controls.
// Enumeration failures are fatal; the device is not closed on error.
func NewUnit(dev Device, opts ...Option) (*Unit, error) {
	u := &Unit{
		dev:         dev,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		bufferCount: DefaultBufferCount,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(u)
	}

	u.catalog = NewCatalog(dev, u.logger)
	u.registry = NewRegistry(dev, u.logger)
	u.ring = NewRing(dev, u.logger)
	u.emitter = NewEmitter(u.ring, dev, u.handler, u.logger)

	if err := u.catalog.Enumerate(); err != nil {
		return nil, err
	}
	if err := u.registry.Discover(); err != nil {
		return nil, err
	}
	u.logger.Debug("Capture unit created",
		"formats", len(u.catalog.formats), "controls", u.registry.Len())
	return u, nil
}

// State returns the current state.
func (u *Unit) State() State { return u.state }

// Stats returns a snapshot of the unit's counters.
func (u *Unit) Stats() Stats {
	s := u.stats
	s.HandlerErrors = u.emitter.handlerErrors
	return s
}

// Formats returns the catalogued formats.
func (u *Unit) Formats() []FormatDescriptor { return u.catalog.Formats() }

// Catalog returns the unit's format catalog.
func (u *Unit) Catalog() *Catalog { return u.catalog }

// Format returns the committed format, or nil while idle.
func (u *Unit) Format() *FormatDescriptor {
	if u.format == nil {
		return nil
	}
	f := *u.format
	return &f
}

// Controls returns all control descriptors.
func (u *Unit) Controls() []ControlDescriptor { return u.registry.List() }

// Control returns one control descriptor.
func (u *Unit) Control(id string) (ControlDescriptor, error) { return u.registry.Get(id) }

// Propose sets a control value. ok is false when the control has no
// canonical actual value.
func (u *Unit) Propose(id string, v Value) (Value, bool, error) {
	if u.closed {
		return Value{}, false, fmt.Errorf("propose %s: %w: unit closed", id, ErrInvalidState)
	}
	return u.registry.Propose(id, v)
}

// Registry exposes the control registry.
func (u *Unit) Registry() *Registry { return u.registry }

// Ring exposes the buffer ring.
func (u *Unit) Ring() *Ring { return u.ring }

// Fileno returns the descriptor to poll while streaming, otherwise -1.
func (u *Unit) Fileno() int {
	if u.state != StateStreaming {
		return -1
	}
	return u.dev.Fd()
}

func (u *Unit) setState(s State) {
	if s == u.state {
		return
	}
	from := u.state
	u.state = s
	u.logger.Debug("Unit state changed", "from", from, "to", s)
	if u.onState != nil {
		u.onState(from, s)
	}
}

// Configure commits f and maps the buffer ring. It is valid from Idle and
// Configured; a streaming unit must be stopped and torn down first. Any
// failure leaves the unit Idle.
func (u *Unit) Configure(f FormatDescriptor) error {
	if u.closed {
		return fmt.Errorf("configure: %w: unit closed", ErrInvalidState)
	}
	if u.state == StateStreaming {
		return fmt.Errorf("configure: %w: unit is streaming", ErrInvalidState)
	}
	if u.state == StateConfigured {
		u.teardownRing()
	}

	if err := u.catalog.Commit(f); err != nil {
		u.setState(StateIdle)
		return err
	}

	count := u.bufferCount
	if b, ok := u.dev.(BufferBudgeter); ok {
		count = b.BufferCount(f, count)
	}
	granted, err := u.ring.Allocate(count)
	if err != nil {
		u.setState(StateIdle)
		return fmt.Errorf("configure %s: %w", f, err)
	}
	if granted < count {
		u.logger.Info("Device granted fewer buffers than requested",
			"requested", count, "granted", granted)
	}

	committed := f
	u.format = &committed
	u.reclaimed = false
	u.setState(StateConfigured)
	u.emitter.FormatChanged(u.Format())
	return nil
}

// Start begins streaming. Failure leaves the unit Configured.
func (u *Unit) Start() error {
	if u.state != StateConfigured {
		return fmt.Errorf("start: %w: unit is %s", ErrInvalidState, u.state)
	}
	if u.reclaimed {
		if err := u.ring.Requeue(); err != nil {
			return fmt.Errorf("start: %w", err)
		}
		u.reclaimed = false
	}
	if err := u.dev.StreamOn(); err != nil {
		return fmt.Errorf("stream on: %w", err)
	}
	u.setState(StateStreaming)
	return nil
}

// Stop halts streaming. Buffers remain mapped.
func (u *Unit) Stop() error {
	if u.state != StateStreaming {
		return fmt.Errorf("stop: %w: unit is %s", ErrInvalidState, u.state)
	}
	err := u.dev.StreamOff()
	if r, ok := u.dev.(StreamOffReclaimer); ok && r.ReclaimsOnStreamOff() {
		u.reclaimed = true
	}
	u.setState(StateConfigured)
	if err != nil {
		return fmt.Errorf("stream off: %w", err)
	}
	return nil
}

// Teardown releases the buffer ring and returns the unit to Idle, stopping
// the stream first when needed. Calling it while Idle does nothing.
func (u *Unit) Teardown() {
	if u.state == StateStreaming {
		if err := u.Stop(); err != nil {
			u.logger.Warn("Failed to stop stream during teardown", "error", err)
		}
	}
	if u.state == StateConfigured {
		u.teardownRing()
		u.setState(StateIdle)
	}
}

func (u *Unit) teardownRing() {
	u.ring.Teardown()
	u.format = nil
}

// ProduceOne dequeues one filled buffer and emits it. ErrWouldBlock means
// nothing was ready. A dequeue fault triggers an automatic restart, and the
// cycle's frame is counted as dropped; a failed requeue after delivery also
// restarts but drops nothing. ErrUnitFault is only returned when
// that restart fails, leaving the unit Idle.
func (u *Unit) ProduceOne() error {
	if u.state != StateStreaming {
		return fmt.Errorf("produce: %w: unit is %s", ErrInvalidState, u.state)
	}

	slot, err := u.ring.Acquire()
	if err != nil {
		if errors.Is(err, ErrWouldBlock) {
			u.stats.WouldBlock++
			return ErrWouldBlock
		}
		u.stats.Dropped++
		return u.recover(err)
	}

	// The frame reached the handler even when requeueing it fails, so it
	// counts as delivered and the restart drops nothing.
	emitErr := u.emitter.Emit(slot, *u.format)
	u.stats.Frames++
	if emitErr != nil {
		return u.recover(emitErr)
	}
	return nil
}

// recover restarts the stream with the last committed format.
func (u *Unit) recover(cause error) error {
	u.logger.Warn("Stream fault, restarting", "error", cause)

	last := *u.format
	u.Teardown()
	err := u.Configure(last)
	if err == nil {
		err = u.Start()
	}
	if err != nil {
		u.Teardown()
		err = fmt.Errorf("%w: restart after %w: %w", ErrUnitFault, cause, err)
		u.logger.Error("Stream restart failed", "error", err)
	} else {
		u.stats.Restarts++
	}
	if u.onRestart != nil {
		u.onRestart(cause, err)
	}
	return err
}

// CheckFormat polls a FormatWatcher device for an input format change and
// forwards it to the handler. It reports whether a change was seen.
func (u *Unit) CheckFormat() (bool, error) {
	w, ok := u.dev.(FormatWatcher)
	if !ok {
		return false, nil
	}
	f, err := w.FormatChanged()
	if err != nil {
		return false, err
	}
	if f == nil {
		return false, nil
	}
	u.logger.Info("Input format changed", "format", f.String())
	u.emitter.FormatChanged(f)
	return true, nil
}

// Close tears the unit down and closes the device. It is safe to call more
// than once.
func (u *Unit) Close() error {
	if u.closed {
		return nil
	}
	u.Teardown()
	u.closed = true
	u.format = nil
	u.emitter.FormatChanged(nil)
	if err := u.dev.Close(); err != nil {
		return fmt.Errorf("close device: %w", err)
	}
	return nil
}
