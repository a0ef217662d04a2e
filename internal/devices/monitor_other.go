//go:build !linux

package devices

import (
	"context"
	"errors"
)

// Monitor performs one refresh and then waits; hotplug events need Linux.
func (r *Registry) Monitor(ctx context.Context) error {
	if _, err := r.Refresh(ctx); err != nil {
		r.logger.Warn("Initial device scan incomplete", "error", err)
	}
	<-ctx.Done()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}
