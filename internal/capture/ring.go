package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SuggestedBackoff is how long a caller should yield after ErrWouldBlock.
const SuggestedBackoff = time.Millisecond

// SlotState tells who currently owns a buffer slot.
type SlotState int

// Slot states.
const (
	WithDevice SlotState = iota
	WithConsumer
)

func (s SlotState) String() string {
	if s == WithConsumer {
		return "with-consumer"
	}
	return "with-device"
}

// Slot is one mapped buffer of the ring.
type Slot struct {
	Index     int
	Data      []byte // full mapped region
	Used      int    // bytes filled by the last dequeue
	Timestamp int64  // device timestamp of the last dequeue, microseconds
	State     SlotState
}

// Filled returns the filled part of the slot.
func (s *Slot) Filled() []byte {
	if s.Used <= 0 || s.Used > len(s.Data) {
		return s.Data
	}
	return s.Data[:s.Used]
}

// Ring owns a fixed pool of device buffers and tracks which side holds each.
type Ring struct {
	dev    BufferDevice
	logger *slog.Logger
	slots  []Slot
	lent   int
}

// NewRing creates an empty ring over dev.
func NewRing(dev BufferDevice, logger *slog.Logger) *Ring {
	return &Ring{dev: dev, logger: logger}
}

// Allocate reserves up to n buffers, maps them and hands each to the device.
// It returns the count actually granted, which is never more than n. On any
// failure every mapped slot is unmapped and the reservation released.
func (r *Ring) Allocate(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("allocate: invalid buffer count %d", n)
	}
	if len(r.slots) > 0 {
		return 0, fmt.Errorf("allocate: %w: ring already holds %d buffers", ErrInvalidState, len(r.slots))
	}

	granted, err := r.dev.RequestBuffers(n)
	if err != nil {
		return 0, fmt.Errorf("request %d buffers: %w", n, err)
	}
	if granted > n {
		r.logger.Debug("Device granted more buffers than requested", "requested", n, "granted", granted)
		granted = n
	}
	if granted <= 0 {
		r.release()
		return 0, fmt.Errorf("request %d buffers: device granted none", n)
	}

	slots := make([]Slot, 0, granted)
	for i := 0; i < granted; i++ {
		mem, mapErr := r.dev.MapBuffer(i)
		if mapErr != nil {
			r.unwind(slots)
			return 0, fmt.Errorf("map buffer %d of %d: %w", i, granted, mapErr)
		}
		slots = append(slots, Slot{Index: i, Data: mem, State: WithDevice})
		if qErr := r.dev.QueueBuffer(i); qErr != nil {
			r.unwind(slots)
			return 0, fmt.Errorf("queue buffer %d of %d: %w", i, granted, qErr)
		}
	}

	r.slots = slots
	r.lent = 0
	return granted, nil
}

// unwind unmaps a partially built slot list and drops the reservation.
func (r *Ring) unwind(slots []Slot) {
	for i := range slots {
		if err := r.dev.UnmapBuffer(slots[i].Index, slots[i].Data); err != nil {
			r.logger.Warn("Failed to unmap buffer during unwind", "index", slots[i].Index, "error", err)
		}
	}
	r.release()
}

func (r *Ring) release() {
	if _, err := r.dev.RequestBuffers(0); err != nil {
		r.logger.Warn("Device did not release its buffer reservation", "error", err)
	}
}

// Len returns the number of granted slots.
func (r *Ring) Len() int { return len(r.slots) }

// Counts returns how many slots the device and the consumer hold.
func (r *Ring) Counts() (withDevice, withConsumer int) {
	return len(r.slots) - r.lent, r.lent
}

// Acquire dequeues a filled slot. ErrWouldBlock means every slot is lent out
// or the device has nothing ready yet; neither is a stream fault.
func (r *Ring) Acquire() (*Slot, error) {
	if len(r.slots) == 0 {
		return nil, fmt.Errorf("acquire: %w: no buffers allocated", ErrInvalidState)
	}
	if r.lent >= len(r.slots) {
		return nil, ErrWouldBlock
	}

	dq, err := r.dev.DequeueBuffer()
	if err != nil {
		if errors.Is(err, ErrWouldBlock) {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("%w: %w", ErrDequeue, err)
	}
	if dq.Index < 0 || dq.Index >= len(r.slots) {
		return nil, fmt.Errorf("%w: device returned buffer %d of %d", ErrDequeue, dq.Index, len(r.slots))
	}

	slot := &r.slots[dq.Index]
	if slot.State == WithConsumer {
		return nil, fmt.Errorf("%w: buffer %d is already with the consumer", ErrDequeue, dq.Index)
	}
	slot.State = WithConsumer
	slot.Used = dq.Length
	slot.Timestamp = dq.Timestamp
	r.lent++
	return slot, nil
}

// Release hands slot back to the device. It must be called exactly once for
// every successful Acquire.
func (r *Ring) Release(slot *Slot) error {
	if slot == nil || slot.Index < 0 || slot.Index >= len(r.slots) || &r.slots[slot.Index] != slot {
		return fmt.Errorf("release: %w: slot does not belong to this ring", ErrInvalidState)
	}
	if slot.State != WithConsumer {
		return fmt.Errorf("release: %w: buffer %d is already with the device", ErrInvalidState, slot.Index)
	}
	if err := r.dev.QueueBuffer(slot.Index); err != nil {
		return fmt.Errorf("requeue buffer %d: %w", slot.Index, err)
	}
	slot.State = WithDevice
	slot.Used = 0
	r.lent--
	return nil
}

// Requeue hands every device-owned slot back to the device. It is used after
// a stream stop that emptied the device queue, so the WithDevice count again
// matches what the device holds. Slots lent to the consumer are queued when
// released.
func (r *Ring) Requeue() error {
	for i := range r.slots {
		if r.slots[i].State != WithDevice {
			continue
		}
		if err := r.dev.QueueBuffer(r.slots[i].Index); err != nil {
			return fmt.Errorf("requeue buffer %d: %w", r.slots[i].Index, err)
		}
		r.slots[i].Used = 0
	}
	return nil
}

// Teardown unmaps every slot and releases the device reservation. A device
// that refuses the release only produces a warning. Calling Teardown on an
// empty ring does nothing.
func (r *Ring) Teardown() {
	if len(r.slots) == 0 {
		return
	}
	for i := range r.slots {
		if err := r.dev.UnmapBuffer(r.slots[i].Index, r.slots[i].Data); err != nil {
			r.logger.Warn("Failed to unmap buffer", "index", r.slots[i].Index, "error", err)
		}
		r.slots[i].Data = nil
	}
	r.slots = nil
	r.lent = 0
	r.release()
}
