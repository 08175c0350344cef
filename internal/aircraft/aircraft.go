package aircraft

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/yegors/co-flight/internal/geo"
	"github.com/yegors/co-flight/internal/physics"
)

const (
	InitialSpeed     = 50.0   // speed of a freshly spawned aircraft (m/s)
	InitialThrottle  = 0.5    // throttle of a freshly spawned aircraft
	RelocateAltitude = 1500.0 // height above terrain after a relocation (m)
	RelocateSpeed    = 150.0  // speed after a relocation (m/s)
)

// ErrUnknownAircraft is returned when a type id is not registered
var ErrUnknownAircraft = errors.New("unknown aircraft type")

// Type is a named set of flight parameters
type Type struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Params physics.Params `json:"params"`
}

// DefaultTypes returns the built-in aircraft
func DefaultTypes() []Type {
	return []Type{
		{ID: "CESIUM_AIR", Name: "Cesium Air", Params: physics.Params{MaxSpeed: 300, PitchRate: 1.5, RollRate: 3, YawRate: 1, StallSpeed: 40}},
		{ID: "F22", Name: "F-22 Raptor", Params: physics.Params{MaxSpeed: 650, PitchRate: 9, RollRate: 25, YawRate: 5, StallSpeed: 80}},
		{ID: "TIE", Name: "TIE Fighter", Params: physics.Params{MaxSpeed: 999, PitchRate: 20, RollRate: 50, YawRate: 12, StallSpeed: 75}},
	}
}

// Validate checks that every parameter is positive
func (t Type) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("aircraft id is required")
	}
	p := t.Params
	checks := []struct {
		name  string
		value float64
	}{
		{"max_speed", p.MaxSpeed},
		{"pitch_rate", p.PitchRate},
		{"roll_rate", p.RollRate},
		{"yaw_rate", p.YawRate},
		{"stall_speed", p.StallSpeed},
	}
	for _, c := range checks {
		if !(c.value > 0) {
			return fmt.Errorf("aircraft %s: %s must be positive, got %v", t.ID, c.name, c.value)
		}
	}
	return nil
}

// Registry is an immutable, ordered set of aircraft types
type Registry struct {
	types []Type
	byID  map[string]Type
}

// NewRegistry validates types and indexes them by id
func NewRegistry(types []Type) (*Registry, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("at least one aircraft type is required")
	}
	r := &Registry{
		types: make([]Type, 0, len(types)),
		byID:  make(map[string]Type, len(types)),
	}
	for _, t := range types {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate aircraft id %q", t.ID)
		}
		r.types = append(r.types, t)
		r.byID[t.ID] = t
	}
	return r, nil
}

// Get returns the type with the given id
func (r *Registry) Get(id string) (Type, error) {
	t, ok := r.byID[id]
	if !ok {
		return Type{}, fmt.Errorf("%w: %q", ErrUnknownAircraft, id)
	}
	return t, nil
}

// Types returns a copy of all types in registration order
func (r *Registry) Types() []Type {
	return append([]Type(nil), r.types...)
}

// Aircraft is the flown vehicle: a type plus its evolving physics state.
// It is not safe for concurrent use; the simulator goroutine owns it.
type Aircraft struct {
	typ   Type
	state physics.State
}

// New spawns an aircraft at lon/lat (degrees) and ellipsoid height (m),
// level, with heading in radians.
func New(typ Type, lon, lat, height, heading float64) *Aircraft {
	a := &Aircraft{typ: typ}
	a.state = a.spawn(lon, lat, height, heading)
	a.state.Speed = InitialSpeed
	a.state.Throttle = InitialThrottle
	return a
}

func (a *Aircraft) spawn(lon, lat, height, heading float64) physics.State {
	position := geo.FromDegrees(lon, lat, height)
	orientation := geo.HeadingPitchRollQuaternion(position, geo.HeadingPitchRoll{Heading: heading})
	hpr := geo.HeadingPitchRollFromOrientation(position, orientation)
	return physics.State{
		Position:    position,
		Orientation: orientation,
		Heading:     hpr.Heading,
		Pitch:       hpr.Pitch,
		Roll:        hpr.Roll,
	}
}

// Update integrates one tick. A crashed aircraft stays where it is until
// Relocate is called.
func (a *Aircraft) Update(controls physics.Controls, dt, terrainHeight float64) physics.State {
	if a.state.Status.IsCrashed {
		return a.state
	}
	a.state = physics.Update(a.state, controls, a.typ.Params, dt, terrainHeight)
	return a.state
}

// Relocate moves the aircraft above terrainHeight at lon/lat keeping its
// heading. Speed, velocity and status are reset.
func (a *Aircraft) Relocate(lon, lat, terrainHeight float64) physics.State {
	throttle := a.state.Throttle
	a.state = a.spawn(lon, lat, terrainHeight+RelocateAltitude, a.state.Heading)
	a.state.Speed = RelocateSpeed
	a.state.Throttle = throttle
	a.state.Velocity = mgl64.Vec3{}
	return a.state
}

// SetType swaps the flight parameters and keeps the current pose
func (a *Aircraft) SetType(t Type) {
	a.typ = t
}

// Type returns the current aircraft type
func (a *Aircraft) Type() Type {
	return a.typ
}

// State returns the current physics state
func (a *Aircraft) State() physics.State {
	return a.state
}

// Cartographic returns the current position as lon/lat/height
func (a *Aircraft) Cartographic() geo.Cartographic {
	return geo.ToCartographic(a.state.Position)
}
