package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/internal/devices"
	"github.com/smazurov/camunit/internal/scheduler"
)

var errInvalidAuthType = errors.New("invalid authentication type")

// unitError maps scheduler and capture errors to HTTP status errors.
func unitError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, scheduler.ErrUnitNotFound),
		errors.Is(err, devices.ErrDeviceNotFound),
		errors.Is(err, capture.ErrNotFound),
		errors.Is(err, scheduler.ErrNoFrame):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, scheduler.ErrUnitExists),
		errors.Is(err, capture.ErrInvalidState):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, capture.ErrRejected),
		errors.Is(err, scheduler.ErrFormatIndex):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error503ServiceUnavailable(err.Error())
	}
	return huma.Error500InternalServerError("capture unit failure", err)
}
