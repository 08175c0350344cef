package camera

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/yegors/co-flight/internal/geo"
)

// Mode selects who drives the camera
type Mode int

const (
	ModeFollow Mode = iota // chase camera behind the aircraft
	ModeGlobal             // free orbit handled by the renderer
)

// String returns the mode name used on the wire
func (m Mode) String() string {
	switch m {
	case ModeFollow:
		return "follow"
	case ModeGlobal:
		return "global"
	default:
		return "unknown"
	}
}

const (
	// GlobalFlyToDuration is how long the renderer animates into global view
	GlobalFlyToDuration = 5500 * time.Millisecond
	// GlobalAltitudeFactor scales the max ellipsoid radius for the global view
	GlobalAltitudeFactor = 3.0
)

// Config holds the chase camera tuning
type Config struct {
	Sensitivity     float64       // radians of orbit per pixel of drag
	ZoomStep        float64       // meters per unit of wheel delta
	MinDistance     float64       // closest orbit distance
	MaxDistance     float64       // farthest orbit distance
	DefaultDistance float64       // initial orbit distance
	Height          float64       // vertical offset above the aircraft in body space
	ResetDelay      time.Duration // idle time after a drag before recentering
	ResetDuration   time.Duration // length of the recenter animation
}

// DefaultConfig returns the standard chase camera tuning
func DefaultConfig() Config {
	return Config{
		Sensitivity:     0.01,
		ZoomStep:        0.08,
		MinDistance:     20,
		MaxDistance:     200,
		DefaultDistance: 50,
		Height:          2,
		ResetDelay:      2 * time.Second,
		ResetDuration:   time.Second,
	}
}

// Offset is the user-adjustable orbit around the aircraft
type Offset struct {
	Heading  float64 `json:"heading"`
	Pitch    float64 `json:"pitch"`
	Distance float64 `json:"distance"`
}

// Pose is a camera placement in ECEF
type Pose struct {
	Position  mgl64.Vec3 `json:"position"`
	Direction mgl64.Vec3 `json:"direction"`
	Up        mgl64.Vec3 `json:"up"`
}

// FlyTo asks the renderer to animate its free camera to Destination
type FlyTo struct {
	Destination mgl64.Vec3    `json:"destination"`
	Duration    time.Duration `json:"duration"`
}

type recenter struct {
	start time.Time
	from  Offset
}

// Controller computes the chase camera pose each tick. It is owned by a
// single goroutine and is not safe for concurrent use.
type Controller struct {
	cfg    Config
	now    func() time.Time
	offset Offset
	mode   Mode

	dragging     bool
	lastX, lastY float64

	resetAt   time.Time // zero when no recenter is pending
	animation *recenter
}

// NewController creates a controller in follow mode
func NewController(cfg Config) *Controller {
	return NewControllerWithClock(cfg, time.Now)
}

// NewControllerWithClock creates a controller reading time from now
func NewControllerWithClock(cfg Config, now func() time.Time) *Controller {
	c := &Controller{
		cfg:    cfg,
		now:    now,
		offset: Offset{Distance: clamp(cfg.DefaultDistance, cfg.MinDistance, cfg.MaxDistance)},
	}
	c.ExitGlobal()
	return c
}

// Offset returns the current orbit offset
func (c *Controller) Offset() Offset {
	return c.offset
}

// Mode returns the active mode
func (c *Controller) Mode() Mode {
	return c.mode
}

// Recentering reports whether a recenter is pending or animating
func (c *Controller) Recentering() bool {
	return !c.resetAt.IsZero() || c.animation != nil
}

// PointerDown starts a drag and cancels any recenter
func (c *Controller) PointerDown(x, y float64) {
	if c.mode != ModeFollow {
		return
	}
	c.dragging = true
	c.lastX, c.lastY = x, y
	c.CancelRecenter()
}

// PointerMove orbits the camera while dragging
func (c *Controller) PointerMove(x, y float64) {
	if !c.dragging {
		return
	}
	dx := x - c.lastX
	dy := y - c.lastY
	c.lastX, c.lastY = x, y

	c.offset.Heading -= dx * c.cfg.Sensitivity
	c.offset.Pitch = clamp(c.offset.Pitch+dy*c.cfg.Sensitivity, -math.Pi/2, math.Pi/2)
	c.CancelRecenter()
}

// PointerUp ends a drag and arms the recenter
func (c *Controller) PointerUp() {
	if !c.dragging {
		return
	}
	c.dragging = false
	c.resetAt = c.now().Add(c.cfg.ResetDelay)
}

// Wheel zooms the camera; it never touches the recenter state
func (c *Controller) Wheel(delta float64) {
	c.offset.Distance = clamp(c.offset.Distance+delta*-c.cfg.ZoomStep, c.cfg.MinDistance, c.cfg.MaxDistance)
}

// CancelRecenter clears any pending or running recenter
func (c *Controller) CancelRecenter() {
	c.resetAt = time.Time{}
	c.animation = nil
}

// EnterGlobal hands the camera over to the renderer's free orbit and returns
// where it should fly to.
func (c *Controller) EnterGlobal(aircraftPosition mgl64.Vec3) FlyTo {
	c.mode = ModeGlobal
	c.dragging = false
	c.CancelRecenter()

	return FlyTo{
		Destination: aircraftPosition.Normalize().Mul(geo.WGS84MaxRadius * GlobalAltitudeFactor),
		Duration:    GlobalFlyToDuration,
	}
}

// ExitGlobal returns to follow mode with the default orbit, keeping the
// current distance.
func (c *Controller) ExitGlobal() {
	c.mode = ModeFollow
	c.dragging = false
	c.CancelRecenter()
	c.offset = Offset{Distance: c.offset.Distance}
}

// Update advances the recenter animation and returns the pose for an
// aircraft at position with the given orientation. ok is false in global mode.
func (c *Controller) Update(position mgl64.Vec3, orientation mgl64.Quat) (pose Pose, ok bool) {
	if c.mode != ModeFollow {
		return Pose{}, false
	}
	c.advance(c.now())
	return c.pose(position, orientation), true
}

func (c *Controller) advance(now time.Time) {
	if !c.resetAt.IsZero() && !now.Before(c.resetAt) {
		c.animation = &recenter{start: c.resetAt, from: c.offset}
		c.resetAt = time.Time{}
	}
	if c.animation == nil {
		return
	}

	p := 1.0
	if c.cfg.ResetDuration > 0 {
		p = math.Min(1, float64(now.Sub(c.animation.start))/float64(c.cfg.ResetDuration))
	}
	if p >= 1 {
		c.offset.Heading = 0
		c.offset.Pitch = 0
		c.animation = nil
		return
	}

	eased := easeOutCubic(p)
	c.offset.Heading = c.animation.from.Heading * (1 - eased)
	c.offset.Pitch = c.animation.from.Pitch * (1 - eased)
}

func (c *Controller) pose(position mgl64.Vec3, orientation mgl64.Quat) Pose {
	local := mgl64.Vec3{-c.offset.Distance, 0, c.cfg.Height}
	local = mgl64.Rotate3DY(c.offset.Pitch).Mul3x1(local)
	local = mgl64.Rotate3DZ(c.offset.Heading).Mul3x1(local)

	rotation := orientation.Mat4().Mat3()
	camera := position.Add(rotation.Mul3x1(local))

	return Pose{
		Position:  camera,
		Direction: position.Sub(camera).Normalize(),
		Up:        rotation.Col(2),
	}
}

func easeOutCubic(p float64) float64 {
	return 1 - math.Pow(1-p, 3)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
