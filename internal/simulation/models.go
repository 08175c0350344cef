package simulation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yegors/co-flight/internal/camera"
	"github.com/yegors/co-flight/internal/geo"
	"github.com/yegors/co-flight/internal/navigation"
	"github.com/yegors/co-flight/internal/physics"
	"github.com/yegors/co-flight/internal/recorder"
)

// ViewMode selects between the chase camera and the free globe view
type ViewMode string

const (
	ViewFlight ViewMode = "FLIGHT"
	ViewGlobal ViewMode = "GLOBAL"
)

// ParseViewMode accepts FLIGHT or GLOBAL in any case
func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(strings.ToUpper(strings.TrimSpace(s))) {
	case ViewFlight:
		return ViewFlight, nil
	case ViewGlobal:
		return ViewGlobal, nil
	}
	return "", fmt.Errorf("invalid view mode %q (must be FLIGHT or GLOBAL)", s)
}

var (
	// ErrInvalidTimeStep means the configured tick rate yields no usable dt
	ErrInvalidTimeStep = errors.New("invalid simulation time step")
	// ErrNotRunning is returned when the simulation loop has exited
	ErrNotRunning = errors.New("simulation loop is not running")
)

// Telemetry is the state published once per tick
type Telemetry struct {
	Tick            uint64               `json:"tick"`
	Time            time.Time            `json:"time"`
	Running         bool                 `json:"running"`
	Aircraft        string               `json:"aircraft"`
	ViewMode        ViewMode             `json:"view_mode"`
	State           physics.State        `json:"state"`
	Position        geo.Cartographic     `json:"position"`
	TerrainHeight   float64              `json:"terrain_height"`
	Altitude        float64              `json:"altitude"`         // above terrain (m)
	HeadingDeg      float64              `json:"heading_deg"`      // renderer convention
	TrueHeading     float64              `json:"true_heading"`     // compass degrees
	MagneticHeading float64              `json:"magnetic_heading"` // compass degrees
	Mach            float64              `json:"mach"`
	Camera          camera.Offset        `json:"camera"`
	Navigation      *navigation.Snapshot `json:"navigation"`
}

// Scene renders the aircraft and camera
type Scene interface {
	SetCamera(pose camera.Pose)
	SetViewMode(mode ViewMode)
	FlyTo(fly camera.FlyTo)
}

// Broadcaster pushes telemetry to connected clients
type Broadcaster interface {
	BroadcastTelemetry(t Telemetry)
}

// Recorder persists telemetry frames
type Recorder interface {
	Append(f recorder.Frame) error
}

type nopScene struct{}

func (nopScene) SetCamera(camera.Pose) {}
func (nopScene) SetViewMode(ViewMode)  {}
func (nopScene) FlyTo(camera.FlyTo)    {}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastTelemetry(Telemetry) {}
