package capture

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
)

// Kind is the closed set of control types.
type Kind int

// Control kinds.
const (
	KindInteger Kind = iota
	KindBoolean
	KindEnum
	KindFloat
	KindButton
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindBoolean:
		return "boolean"
	case KindEnum:
		return "enum"
	case KindFloat:
		return "float"
	case KindButton:
		return "button"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a control value. Int carries Integer, Enum (option index),
// Boolean (0 or 1) and Button values; Float carries Float values.
type Value struct {
	Int   int64
	Float float64
}

// IntValue returns an integer, enum or boolean value.
func IntValue(v int64) Value { return Value{Int: v} }

// BoolValue returns a boolean value.
func BoolValue(b bool) Value {
	if b {
		return Value{Int: 1}
	}
	return Value{}
}

// FloatValue returns a float value.
func FloatValue(f float64) Value { return Value{Float: f} }

// Bool reports the value as a boolean.
func (v Value) Bool() bool { return v.Int != 0 }

// IntRange bounds an Integer control.
type IntRange struct {
	Min  int64
	Max  int64
	Step int64
}

// FloatRange bounds a Float control.
type FloatRange struct {
	Min  float64
	Max  float64
	Step float64
}

// EnumOption is one entry of an Enum control. Disabled options keep their
// index but cannot be selected.
type EnumOption struct {
	Label   string
	Enabled bool
}

// ControlDescriptor describes one device control.
type ControlDescriptor struct {
	ID      string
	Label   string
	Kind    Kind
	Int     IntRange     // KindInteger
	Float   FloatRange   // KindFloat
	Options []EnumOption // KindEnum
	Value   Value
	Enabled bool
	// OneShot controls are set-and-forget; they have no readback value.
	OneShot bool
	// Token is opaque to the registry and only meaningful to the backend.
	Token uint64
	// DependsOn is the index of the mode control governing this one, or -1.
	DependsOn int

	dependents []int
}

// FormatValue renders v according to the descriptor's kind.
func (d *ControlDescriptor) FormatValue(v Value) string {
	switch d.Kind {
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindBoolean, KindButton:
		return strconv.FormatBool(v.Bool())
	case KindEnum:
		if v.Int >= 0 && int(v.Int) < len(d.Options) {
			return d.Options[v.Int].Label
		}
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	}
	return ""
}

// Clamp brings v inside the descriptor's bounds. Enum values outside the
// option list or on a disabled option cannot be clamped and are rejected.
func (d *ControlDescriptor) Clamp(v Value) (Value, error) {
	switch d.Kind {
	case KindInteger:
		r := d.Int
		x := v.Int
		if x < r.Min {
			x = r.Min
		}
		if x > r.Max {
			x = r.Max
		}
		if r.Step > 1 {
			x = r.Min + (x-r.Min)/r.Step*r.Step
		}
		return IntValue(x), nil
	case KindBoolean, KindButton:
		return BoolValue(v.Int != 0), nil
	case KindEnum:
		if v.Int < 0 || int(v.Int) >= len(d.Options) {
			return Value{}, fmt.Errorf("%w: %s has no option %d", ErrRejected, d.ID, v.Int)
		}
		if !d.Options[v.Int].Enabled {
			return Value{}, fmt.Errorf("%w: %s option %q is not available", ErrRejected, d.ID, d.Options[v.Int].Label)
		}
		return v, nil
	case KindFloat:
		r := d.Float
		if math.IsNaN(v.Float) {
			return Value{}, fmt.Errorf("%w: %s value is not a number", ErrRejected, d.ID)
		}
		return FloatValue(math.Min(math.Max(v.Float, r.Min), r.Max)), nil
	}
	return Value{}, fmt.Errorf("%w: %s has unknown kind %s", ErrRejected, d.ID, d.Kind)
}

// Registry owns the control descriptors of one unit. Descriptors live in a
// flat slice, and dependency relations are slice indices.
type Registry struct {
	backend  ControlBackend
	logger   *slog.Logger
	controls []ControlDescriptor
	byID     map[string]int
}

// NewRegistry creates an empty registry backed by backend.
func NewRegistry(backend ControlBackend, logger *slog.Logger) *Registry {
	return &Registry{
		backend: backend,
		logger:  logger,
		byID:    make(map[string]int),
	}
}

// Discover clears the registry and asks the backend to repopulate it.
func (r *Registry) Discover() error {
	r.controls = r.controls[:0]
	r.byID = make(map[string]int)
	if err := r.backend.DiscoverControls(r); err != nil {
		return fmt.Errorf("discover controls: %w", err)
	}
	return nil
}

// Add appends d and returns its index. A duplicate id replaces nothing and
// returns the existing index.
func (r *Registry) Add(d ControlDescriptor) int {
	if idx, ok := r.byID[d.ID]; ok {
		r.logger.Warn("Duplicate control id", "control", d.ID)
		return idx
	}
	if d.Kind == KindButton {
		d.OneShot = true
	}
	if d.Kind == KindFloat && d.Float.Step == 0 && d.Float.Max > d.Float.Min {
		d.Float.Step = (d.Float.Max - d.Float.Min) / 100
	}
	d.DependsOn = -1
	d.dependents = nil
	r.controls = append(r.controls, d)
	idx := len(r.controls) - 1
	r.byID[d.ID] = idx
	return idx
}

// Depend records that the controls at deps are governed by the mode control
// at mode.
func (r *Registry) Depend(mode int, deps ...int) {
	if mode < 0 || mode >= len(r.controls) {
		return
	}
	for _, dep := range deps {
		if dep < 0 || dep >= len(r.controls) || dep == mode {
			continue
		}
		if r.controls[dep].DependsOn < 0 {
			r.controls[dep].DependsOn = mode
		}
		r.controls[mode].dependents = appendUnique(r.controls[mode].dependents, dep)
	}
}

func appendUnique(s []int, v int) []int {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

// Index returns the index of the control with the given id.
func (r *Registry) Index(id string) (int, bool) {
	idx, ok := r.byID[id]
	return idx, ok
}

// At returns the descriptor at idx for in-place updates by backends during
// discovery and refresh.
func (r *Registry) At(idx int) *ControlDescriptor {
	return &r.controls[idx]
}

// Len returns the number of controls.
func (r *Registry) Len() int { return len(r.controls) }

// List returns copies of all descriptors in discovery order.
func (r *Registry) List() []ControlDescriptor {
	out := make([]ControlDescriptor, len(r.controls))
	copy(out, r.controls)
	for i := range out {
		out[i].dependents = nil
		out[i].Options = append([]EnumOption(nil), r.controls[i].Options...)
	}
	return out
}

// Get returns a copy of the descriptor with the given id.
func (r *Registry) Get(id string) (ControlDescriptor, error) {
	idx, ok := r.byID[id]
	if !ok {
		return ControlDescriptor{}, fmt.Errorf("%w: control %q", ErrNotFound, id)
	}
	d := r.controls[idx]
	d.dependents = nil
	d.Options = append([]EnumOption(nil), d.Options...)
	return d, nil
}

// Dependents returns the ids of controls governed by id.
func (r *Registry) Dependents(id string) []string {
	idx, ok := r.byID[id]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(r.controls[idx].dependents))
	for _, dep := range r.controls[idx].dependents {
		ids = append(ids, r.controls[dep].ID)
	}
	return ids
}

// Propose validates v, sets it on hardware and reconciles the actual value.
// ok is false for one-shot controls, which have no canonical actual value.
func (r *Registry) Propose(id string, v Value) (actual Value, ok bool, err error) {
	idx, found := r.byID[id]
	if !found {
		return Value{}, false, fmt.Errorf("%w: control %q", ErrNotFound, id)
	}
	d := &r.controls[idx]
	if !d.Enabled {
		return Value{}, false, fmt.Errorf("%w: control %q is disabled", ErrRejected, id)
	}

	proposed, err := d.Clamp(v)
	if err != nil {
		return Value{}, false, err
	}

	if setErr := r.backend.SetControl(d, proposed); setErr != nil {
		return Value{}, false, fmt.Errorf("set %s: %w: %w", id, ErrRejected, setErr)
	}

	if d.OneShot {
		r.refreshDependents(idx)
		return Value{}, false, nil
	}

	actual, getErr := r.backend.GetControl(d)
	if getErr != nil {
		r.logger.Debug("Control readback failed, assuming proposed value",
			"control", id, "error", getErr)
		actual = proposed
	} else if clamped, clampErr := d.Clamp(actual); clampErr == nil {
		actual = clamped
	}
	d.Value = actual

	r.refreshDependents(idx)
	return actual, true, nil
}

// refreshDependents re-resolves every control governed by the control at idx.
func (r *Registry) refreshDependents(idx int) {
	for _, dep := range r.controls[idx].dependents {
		d := &r.controls[dep]
		if err := r.backend.RefreshControl(d); err != nil {
			r.logger.Warn("Failed to refresh dependent control",
				"control", d.ID, "mode", r.controls[idx].ID, "error", err)
		}
	}
}

// Refresh re-reads every control from hardware.
func (r *Registry) Refresh() {
	for i := range r.controls {
		if err := r.backend.RefreshControl(&r.controls[i]); err != nil {
			r.logger.Debug("Failed to refresh control", "control", r.controls[i].ID, "error", err)
		}
	}
}
