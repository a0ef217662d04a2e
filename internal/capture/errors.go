package capture

import "errors"

var (
	// ErrWouldBlock reports that no filled buffer is available right now.
	// It is not a stream fault; callers back off for SuggestedBackoff.
	ErrWouldBlock = errors.New("capture: would block")

	// ErrRejected is returned when the device or the registry refuses a
	// proposed format or control value.
	ErrRejected = errors.New("capture: rejected")

	// ErrInvalidState is returned for an operation not valid in the
	// unit's current state.
	ErrInvalidState = errors.New("capture: invalid state")

	// ErrDequeue wraps a device error raised while dequeuing a buffer.
	ErrDequeue = errors.New("capture: dequeue failed")

	// ErrUnitFault is returned when automatic stream recovery failed. The
	// unit is left idle and may be configured again.
	ErrUnitFault = errors.New("capture: unit fault")

	// ErrNotFound is returned for unknown control ids.
	ErrNotFound = errors.New("capture: not found")
)
