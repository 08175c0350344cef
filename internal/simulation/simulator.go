package simulation

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/yegors/co-flight/internal/aircraft"
	"github.com/yegors/co-flight/internal/audio"
	"github.com/yegors/co-flight/internal/camera"
	"github.com/yegors/co-flight/internal/geo"
	"github.com/yegors/co-flight/internal/input"
	"github.com/yegors/co-flight/internal/metrics"
	"github.com/yegors/co-flight/internal/navigation"
	"github.com/yegors/co-flight/internal/physics"
	"github.com/yegors/co-flight/internal/recorder"
	"github.com/yegors/co-flight/pkg/logger"
)

// Import logger functions
var (
	String  = logger.String
	Int     = logger.Int
	Float64 = logger.Float64
	Error   = logger.Error
)

// Config holds the loop and spawn settings
type Config struct {
	TickHz          float64
	TimeMultiplier  float64
	SpawnLon        float64
	SpawnLat        float64
	SpawnAlt        float64 // ellipsoid height (m)
	SpawnHeadingDeg float64 // compass bearing
	DefaultAircraft string
	Autostart       bool
}

// DefaultConfig returns a 60 Hz real-time loop spawning over Paris
func DefaultConfig() Config {
	return Config{
		TickHz:          60,
		TimeMultiplier:  1,
		SpawnLon:        2.2945,
		SpawnLat:        48.8584,
		SpawnAlt:        3000,
		SpawnHeadingDeg: 90,
		DefaultAircraft: "CESIUM_AIR",
	}
}

// TimeStep returns the simulated seconds advanced per tick
func (c Config) TimeStep() (float64, error) {
	dt := c.TimeMultiplier / c.TickHz
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 {
		return 0, fmt.Errorf("%w: time_multiplier %v / tick_hz %v", ErrInvalidTimeStep, c.TimeMultiplier, c.TickHz)
	}
	return dt, nil
}

// HeightSampler returns the terrain height below a point, never failing
type HeightSampler interface {
	HeightAt(ctx context.Context, c geo.Cartographic) float64
}

// Deps are the collaborators owned or shared by the simulator
type Deps struct {
	Registry    *aircraft.Registry
	Terrain     HeightSampler
	Navigation  *navigation.Manager
	Audio       *audio.Feedback
	Camera      *camera.Controller
	Input       *input.Mapper
	Scene       Scene       // optional
	Broadcaster Broadcaster // optional
	Recorder    Recorder    // optional
}

// Simulator runs the tick loop. One goroutine (Run) owns the aircraft,
// camera, input and audio state; every other caller goes through do.
type Simulator struct {
	cfg    Config
	dt     float64
	deps   Deps
	logger *logger.Logger
	now    func() time.Time

	cmdCh chan func()
	done  chan struct{}

	// owned by the Run goroutine
	aircraft    *aircraft.Aircraft
	viewMode    ViewMode
	running     bool
	tick        uint64
	recordFails int

	telemetry atomic.Pointer[Telemetry]
}

// New creates a simulator with the default aircraft at the spawn point
func New(cfg Config, deps Deps, logger *logger.Logger) (*Simulator, error) {
	dt, err := cfg.TimeStep()
	if err != nil {
		return nil, err
	}
	if deps.Registry == nil || deps.Terrain == nil || deps.Navigation == nil ||
		deps.Audio == nil || deps.Camera == nil || deps.Input == nil {
		return nil, fmt.Errorf("simulator requires registry, terrain, navigation, audio, camera and input")
	}
	if deps.Scene == nil {
		deps.Scene = nopScene{}
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = nopBroadcaster{}
	}

	typ, err := deps.Registry.Get(cfg.DefaultAircraft)
	if err != nil {
		return nil, err
	}

	heading := geo.BearingToHeading(cfg.SpawnHeadingDeg) * geo.DegToRad
	s := &Simulator{
		cfg:      cfg,
		dt:       dt,
		deps:     deps,
		logger:   logger.Named("simulation"),
		now:      time.Now,
		cmdCh:    make(chan func(), 64),
		done:     make(chan struct{}),
		aircraft: aircraft.New(typ, cfg.SpawnLon, cfg.SpawnLat, cfg.SpawnAlt, heading),
		viewMode: ViewFlight,
		running:  cfg.Autostart,
	}
	s.publish(s.aircraft.State(), 0, nil)
	return s, nil
}

// Run owns the loop until ctx is cancelled
func (s *Simulator) Run(ctx context.Context) error {
	defer close(s.done)

	interval := time.Duration(float64(time.Second) / s.cfg.TickHz)
	if interval <= 0 {
		return fmt.Errorf("%w: tick interval %v", ErrInvalidTimeStep, interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Simulation loop started",
		Float64("tick_hz", s.cfg.TickHz),
		Float64("dt", s.dt),
		String("aircraft", s.aircraft.Type().ID))

	for {
		select {
		case <-ctx.Done():
			s.deps.Audio.StopAll()
			s.deps.Camera.CancelRecenter()
			s.logger.Info("Simulation loop stopped")
			return nil

		case fn := <-s.cmdCh:
			fn()

		case <-ticker.C:
			if s.running {
				s.step(ctx, s.dt)
			}
		}
	}
}

// do runs fn on the loop goroutine and waits for it to finish
func (s *Simulator) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}

	select {
	case s.cmdCh <- task:
	case <-s.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// step advances the simulation by dt seconds
func (s *Simulator) step(ctx context.Context, dt float64) {
	start := time.Now()

	// 1. Terrain below the aircraft
	terrainHeight := s.deps.Terrain.HeightAt(ctx, s.aircraft.Cartographic())

	// 2. Physics
	wasCrashed := s.aircraft.State().Status.IsCrashed
	state := s.aircraft.Update(s.deps.Input.Controls(), dt, terrainHeight)
	if state.Status.IsCrashed && !wasCrashed {
		metrics.Crashed()
		s.logger.Warn("Aircraft crashed",
			Float64("speed", state.Speed),
			Float64("terrain_height", terrainHeight))
	}

	// 3. Navigation
	var snap *navigation.Snapshot
	if s.deps.Navigation.IsNavigating() {
		if sn, ok := s.deps.Navigation.Update(state.Position); ok {
			snap = &sn
		}
	}

	// 4. Audio
	s.deps.Audio.Update(state.Status, state.Speed, s.aircraft.Type().Params)

	// 5. Camera
	if s.viewMode == ViewFlight {
		if pose, ok := s.deps.Camera.Update(state.Position, state.Orientation); ok {
			s.deps.Scene.SetCamera(pose)
		}
	}

	// 6. Broadcast and record
	s.tick++
	t := s.publish(state, terrainHeight, snap)
	s.deps.Broadcaster.BroadcastTelemetry(t)
	s.record(t)

	metrics.ObserveTick(time.Since(start), state.Speed)
}

func (s *Simulator) publish(state physics.State, terrainHeight float64, snap *navigation.Snapshot) Telemetry {
	pos := geo.ToCartographic(state.Position)
	headingDeg := state.Heading * geo.RadToDeg
	trueHeading := geo.HeadingToBearing(headingDeg)
	now := s.now()

	t := Telemetry{
		Tick:            s.tick,
		Time:            now,
		Running:         s.running,
		Aircraft:        s.aircraft.Type().ID,
		ViewMode:        s.viewMode,
		State:           state,
		Position:        pos,
		TerrainHeight:   terrainHeight,
		Altitude:        pos.Height - terrainHeight,
		HeadingDeg:      headingDeg,
		TrueHeading:     trueHeading,
		MagneticHeading: geo.TrueToMagnetic(trueHeading, geo.MagneticVariation(pos.Latitude, pos.Longitude, pos.Height, now)),
		Mach:            physics.Mach(state.Speed),
		Camera:          s.deps.Camera.Offset(),
		Navigation:      snap,
	}
	s.telemetry.Store(&t)
	return t
}

func (s *Simulator) record(t Telemetry) {
	if s.deps.Recorder == nil {
		return
	}
	waypoint := -1
	if t.Navigation != nil {
		waypoint = t.Navigation.CurrentIndex
	}
	if err := s.deps.Recorder.Append(recorder.NewFrame(t.Tick, t.Time, t.Aircraft, t.State, waypoint)); err != nil {
		s.recordFails++
		// log the first failure and every 1000th after it
		if s.recordFails%1000 == 1 {
			s.logger.Error("Failed to record frame", Error(err), Int("failures", s.recordFails))
		}
	}
}

// Telemetry returns the last published frame. Safe from any goroutine.
func (s *Simulator) Telemetry() Telemetry {
	if t := s.telemetry.Load(); t != nil {
		return *t
	}
	return Telemetry{}
}

// AircraftTypes lists the configured aircraft
func (s *Simulator) AircraftTypes() []aircraft.Type {
	return s.deps.Registry.Types()
}

// Start resumes ticking. Calling it while running is a no-op.
func (s *Simulator) Start(ctx context.Context) error {
	return s.do(ctx, func() {
		if s.running {
			return
		}
		s.running = true
		s.deps.Audio.Resume()
		s.republish()
		s.logger.Info("Simulation started")
	})
}

// Stop pauses ticking, clears the camera recenter and silences audio.
// Calling it while stopped is a no-op.
func (s *Simulator) Stop(ctx context.Context) error {
	return s.do(ctx, func() {
		if !s.running {
			return
		}
		s.running = false
		s.deps.Camera.CancelRecenter()
		s.deps.Input.Reset()
		s.deps.Audio.StopAll()
		s.republish()
		s.logger.Info("Simulation stopped")
	})
}

// Relocate places the aircraft above lon/lat and switches to the flight view
func (s *Simulator) Relocate(ctx context.Context, lon, lat float64) (physics.State, error) {
	var state physics.State
	err := s.do(ctx, func() {
		terrainHeight := s.deps.Terrain.HeightAt(ctx, geo.Cartographic{Longitude: lon, Latitude: lat})
		state = s.aircraft.Relocate(lon, lat, terrainHeight)
		if s.deps.Audio.Reset(state.Status) && s.running {
			s.deps.Audio.Resume()
		}
		s.setViewMode(ViewFlight)
		t := s.publish(state, terrainHeight, nil)
		s.deps.Broadcaster.BroadcastTelemetry(t)

		s.logger.Info("Aircraft relocated",
			Float64("lon", lon),
			Float64("lat", lat),
			Float64("terrain_height", terrainHeight))
	})
	if err != nil {
		return physics.State{}, err
	}
	return state, nil
}

// LoadAircraft swaps the aircraft type keeping the current pose
func (s *Simulator) LoadAircraft(ctx context.Context, typeID string) (aircraft.Type, error) {
	typ, err := s.deps.Registry.Get(typeID)
	if err != nil {
		return aircraft.Type{}, err
	}
	err = s.do(ctx, func() {
		s.aircraft.SetType(typ)
		s.republish()
		s.logger.Info("Aircraft loaded", String("type", typ.ID))
	})
	return typ, err
}

// SetViewMode switches between the chase camera and the globe view
func (s *Simulator) SetViewMode(ctx context.Context, mode ViewMode) error {
	if _, err := ParseViewMode(string(mode)); err != nil {
		return err
	}
	return s.do(ctx, func() {
		s.setViewMode(mode)
		s.republish()
	})
}

func (s *Simulator) setViewMode(mode ViewMode) {
	if s.viewMode == mode {
		return
	}
	s.viewMode = mode

	switch mode {
	case ViewGlobal:
		fly := s.deps.Camera.EnterGlobal(s.aircraft.State().Position)
		s.deps.Scene.SetViewMode(ViewGlobal)
		s.deps.Scene.FlyTo(fly)
	case ViewFlight:
		s.deps.Camera.ExitGlobal()
		s.deps.Scene.SetViewMode(ViewFlight)
	}
	s.logger.Info("View mode changed", String("mode", string(mode)))
}

// republish refreshes the telemetry snapshot after a command
func (s *Simulator) republish() {
	prev := s.Telemetry()
	s.publish(s.aircraft.State(), prev.TerrainHeight, prev.Navigation)
}

// SetKey forwards a key press or release to the input mapper
func (s *Simulator) SetKey(ctx context.Context, key string, pressed bool) error {
	return s.do(ctx, func() {
		s.deps.Input.SetKey(key, pressed)
	})
}

// PointerDown starts a camera drag
func (s *Simulator) PointerDown(ctx context.Context, x, y float64) error {
	return s.do(ctx, func() { s.deps.Camera.PointerDown(x, y) })
}

// PointerMove orbits the camera while dragging
func (s *Simulator) PointerMove(ctx context.Context, x, y float64) error {
	return s.do(ctx, func() { s.deps.Camera.PointerMove(x, y) })
}

// PointerUp ends a camera drag and arms the recenter
func (s *Simulator) PointerUp(ctx context.Context) error {
	return s.do(ctx, func() { s.deps.Camera.PointerUp() })
}

// Wheel zooms the camera
func (s *Simulator) Wheel(ctx context.Context, delta float64) error {
	return s.do(ctx, func() { s.deps.Camera.Wheel(delta) })
}

// UnlockAudio enables sound after the first user gesture
func (s *Simulator) UnlockAudio(ctx context.Context) error {
	return s.do(ctx, func() {
		if s.deps.Audio.Unlock() && s.running {
			s.deps.Audio.Resume()
		}
	})
}
