package scheduler

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/smazurov/camunit/internal/capture"
)

// ValueFor converts a loosely typed value into a control value for d.
// raw may be an int, int64, float64, bool, or a string holding a number,
// a boolean, or an enum option label. Range checks are left to the
// registry.
func ValueFor(d capture.ControlDescriptor, raw any) (capture.Value, error) {
	switch v := raw.(type) {
	case int:
		return numberValue(d, float64(v))
	case int64:
		return numberValue(d, float64(v))
	case float64:
		return numberValue(d, v)
	case bool:
		if d.Kind == capture.KindFloat {
			return capture.Value{}, fmt.Errorf("%w: %s takes a number, not %t", capture.ErrRejected, d.ID, v)
		}
		return capture.BoolValue(v), nil
	case string:
		return stringValue(d, v)
	}
	return capture.Value{}, fmt.Errorf("%w: %s: unsupported value type %T", capture.ErrRejected, d.ID, raw)
}

func numberValue(d capture.ControlDescriptor, f float64) (capture.Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return capture.Value{}, fmt.Errorf("%w: %s: %v is not a finite number", capture.ErrRejected, d.ID, f)
	}
	if d.Kind == capture.KindFloat {
		return capture.FloatValue(f), nil
	}
	return capture.IntValue(int64(math.Round(f))), nil
}

func stringValue(d capture.ControlDescriptor, s string) (capture.Value, error) {
	s = strings.TrimSpace(s)
	if d.Kind == capture.KindEnum {
		for i, o := range d.Options {
			if strings.EqualFold(o.Label, s) {
				return capture.IntValue(int64(i)), nil
			}
		}
	}
	if d.Kind == capture.KindBoolean || d.Kind == capture.KindButton {
		switch strings.ToLower(s) {
		case "on", "yes":
			return capture.BoolValue(true), nil
		case "off", "no":
			return capture.BoolValue(false), nil
		}
		if b, err := strconv.ParseBool(s); err == nil {
			return capture.BoolValue(b), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return capture.Value{}, fmt.Errorf("%w: %s: cannot use %q", capture.ErrRejected, d.ID, s)
	}
	return numberValue(d, f)
}
