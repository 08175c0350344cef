package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/yegors/co-flight/internal/geo"
)

// Constants
const (
	Gravity         = 9.8 // Constant gravity acceleration (m/s^2)
	Mach1           = 343 // Speed of sound used for the supersonic flag (m/s)
	CrashThreshold  = 2.0 // Minimum height above ground before a crash (m)
	CrashSpeedDecay = 0.8 // Speed factor applied on every grounded tick
	ThrottleRate    = 0.5 // Throttle change per second at full input
	SpeedResponse   = 0.8 // First-order lag gain toward target speed (1/s)
	MaxLiftFactor   = 1.0 // Lift never exceeds gravity
)

var (
	axisX = mgl64.Vec3{1, 0, 0}
	axisY = mgl64.Vec3{0, 1, 0}
	axisZ = mgl64.Vec3{0, 0, 1}
)

// Status holds the derived flight regime flags
type Status struct {
	IsStalled    bool `json:"is_stalled"`
	IsSupersonic bool `json:"is_supersonic"`
	IsCrashed    bool `json:"is_crashed"`
}

// State is the kinematic state of one aircraft. It is replaced wholesale on
// every tick; Heading, Pitch and Roll are derived for display only.
type State struct {
	Position    mgl64.Vec3 `json:"position"`
	Velocity    mgl64.Vec3 `json:"velocity"`
	Orientation mgl64.Quat `json:"orientation"`
	Heading     float64    `json:"heading"`
	Pitch       float64    `json:"pitch"`
	Roll        float64    `json:"roll"`
	Speed       float64    `json:"speed"`
	Throttle    float64    `json:"throttle"`
	Status      Status     `json:"status"`
}

// Params describes how one aircraft type responds. Rates are degrees per second.
type Params struct {
	MaxSpeed   float64 `json:"max_speed"`
	PitchRate  float64 `json:"pitch_rate"`
	RollRate   float64 `json:"roll_rate"`
	YawRate    float64 `json:"yaw_rate"`
	StallSpeed float64 `json:"stall_speed"`
}

// Controls is the per-tick control vector, each axis in [-1, 1]
type Controls struct {
	Pitch    float64 `json:"pitch"`
	Roll     float64 `json:"roll"`
	Yaw      float64 `json:"yaw"`
	Throttle float64 `json:"throttle"`
}

// IsZero reports whether no axis is deflected
func (c Controls) IsZero() bool {
	return c == Controls{}
}

// Update advances state by dt seconds and returns the new state. The input
// state is not modified. terrainHeight is the ground height beneath the
// aircraft in meters above the ellipsoid.
func Update(state State, controls Controls, params Params, dt, terrainHeight float64) State {
	next := state

	// Throttle and speed
	next.Throttle = clamp(state.Throttle+controls.Throttle*dt*ThrottleRate, 0, 1)
	targetSpeed := next.Throttle * params.MaxSpeed
	next.Speed = math.Max(0, state.Speed+(targetSpeed-state.Speed)*dt*SpeedResponse)

	// Attitude increment in the body frame: yaw * pitch * roll
	yaw := mgl64.QuatRotate(-mgl64.DegToRad(controls.Yaw*params.YawRate)*dt, axisZ)
	pitch := mgl64.QuatRotate(mgl64.DegToRad(controls.Pitch*params.PitchRate)*dt, axisY)
	roll := mgl64.QuatRotate(mgl64.DegToRad(controls.Roll*params.RollRate)*dt, axisX)
	delta := yaw.Mul(pitch).Mul(roll)
	next.Orientation = state.Orientation.Mul(delta).Normalize()

	forward, _, up := BodyAxes(next.Orientation)

	// Simplified aerodynamics
	worldUp := state.Position.Normalize()
	alignment := math.Max(0, up.Dot(worldUp))
	liftFactor := math.Min(MaxLiftFactor, math.Pow(next.Speed/params.StallSpeed, 2))
	lift := up.Mul(Gravity * liftFactor * alignment)
	gravity := worldUp.Mul(-Gravity)

	next.Velocity = forward.Mul(next.Speed).Add(lift).Add(gravity)
	next.Position = state.Position.Add(next.Velocity.Mul(dt))

	// Terrain collision. The flag reflects this step only; holding a crash
	// until relocation is up to the caller.
	carto := geo.ToCartographic(next.Position)
	crashed := false
	if carto.Height-terrainHeight < CrashThreshold {
		crashed = true
		carto.Height = terrainHeight + CrashThreshold
		next.Position = geo.FromCartographic(carto)
		next.Speed *= CrashSpeedDecay
	}

	next.Status = Status{
		IsStalled:    next.Speed < params.StallSpeed,
		IsSupersonic: next.Speed > Mach1,
		IsCrashed:    crashed,
	}

	hpr := geo.HeadingPitchRollFromOrientation(next.Position, next.Orientation)
	next.Heading = hpr.Heading
	next.Pitch = hpr.Pitch
	next.Roll = hpr.Roll

	return next
}

// BodyAxes returns the forward, right and up unit vectors of an orientation,
// which are the columns of its rotation matrix.
func BodyAxes(orientation mgl64.Quat) (forward, right, up mgl64.Vec3) {
	m := orientation.Mat4().Mat3()
	return m.Col(0), m.Col(1), m.Col(2)
}

// HeightAboveGround returns the ellipsoid height of p minus terrainHeight
func HeightAboveGround(p mgl64.Vec3, terrainHeight float64) float64 {
	return geo.ToCartographic(p).Height - terrainHeight
}

// Mach returns speed as a fraction of Mach1
func Mach(speed float64) float64 {
	return speed / Mach1
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
