package capture

import (
	"fmt"
	"log/slog"
)

// Frame is one captured image. Data borrows ring memory and is only valid
// for the duration of the OnFrame call that received it.
type Frame struct {
	Data      []byte
	Length    int
	Timestamp int64 // microseconds, wall-clock correlated
	Sequence  uint64
	SourceID  string
	Format    FormatDescriptor
}

// Clone returns a copy of f that owns its data.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Data = append([]byte(nil), f.Data...)
	return &c
}

// FrameHandler is the downstream consumer contract.
type FrameHandler interface {
	// OnFrame is called synchronously from ProduceOne. The frame's data
	// must not be retained after it returns.
	OnFrame(f *Frame) error
	// OnFormatChanged reports a new active format, or nil when the unit
	// no longer has one.
	OnFormatChanged(f *FormatDescriptor)
}

// HandlerFuncs adapts plain functions to FrameHandler. Nil fields are
// skipped.
type HandlerFuncs struct {
	Frame         func(f *Frame) error
	FormatChanged func(f *FormatDescriptor)
}

// OnFrame implements FrameHandler.
func (h HandlerFuncs) OnFrame(f *Frame) error {
	if h.Frame == nil {
		return nil
	}
	return h.Frame(f)
}

// OnFormatChanged implements FrameHandler.
func (h HandlerFuncs) OnFormatChanged(f *FormatDescriptor) {
	if h.FormatChanged != nil {
		h.FormatChanged(f)
	}
}

// Emitter turns dequeued slots into frames and recycles the slots.
type Emitter struct {
	ring      *Ring
	handler   FrameHandler
	corrector TimestampCorrector
	sourceID  string
	logger    *slog.Logger
	sequence  uint64

	handlerErrors uint64
}

// NewEmitter creates an emitter that releases slots back into ring. dev is
// checked for the optional TimestampCorrector and SourceIdentifier
// interfaces.
func NewEmitter(ring *Ring, dev any, handler FrameHandler, logger *slog.Logger) *Emitter {
	e := &Emitter{ring: ring, handler: handler, logger: logger}
	if c, ok := dev.(TimestampCorrector); ok {
		e.corrector = c
	}
	if s, ok := dev.(SourceIdentifier); ok {
		e.sourceID = s.SourceID()
	}
	return e
}

// Emit hands slot to the handler and then releases it, whatever the
// handler returned. The returned error is the release error, if any.
func (e *Emitter) Emit(slot *Slot, format FormatDescriptor) error {
	data := slot.Filled()
	ts := slot.Timestamp
	if e.corrector != nil {
		if corrected, ok := e.corrector.CorrectTimestamp(data, ts); ok {
			ts = corrected
		}
	}

	e.sequence++
	frame := &Frame{
		Data:      data,
		Length:    len(data),
		Timestamp: ts,
		Sequence:  e.sequence,
		SourceID:  e.sourceID,
		Format:    format,
	}

	if e.handler != nil {
		if err := e.handler.OnFrame(frame); err != nil {
			e.handlerErrors++
			e.logger.Debug("Frame handler returned an error", "sequence", frame.Sequence, "error", err)
		}
	}

	if err := e.ring.Release(slot); err != nil {
		return fmt.Errorf("release after emit: %w", err)
	}
	return nil
}

// FormatChanged forwards a format change to the handler.
func (e *Emitter) FormatChanged(f *FormatDescriptor) {
	if e.handler != nil {
		e.handler.OnFormatChanged(f)
	}
}
