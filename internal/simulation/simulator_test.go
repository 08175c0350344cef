package simulation

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/yegors/co-flight/internal/aircraft"
	"github.com/yegors/co-flight/internal/audio"
	"github.com/yegors/co-flight/internal/camera"
	"github.com/yegors/co-flight/internal/input"
	"github.com/yegors/co-flight/internal/navigation"
	"github.com/yegors/co-flight/internal/recorder"
	"github.com/yegors/co-flight/internal/terrain"
	"github.com/yegors/co-flight/pkg/logger"
)

type fakeScene struct {
	mu      sync.Mutex
	poses   int
	modes   []ViewMode
	flights []camera.FlyTo
}

func (f *fakeScene) SetCamera(camera.Pose) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poses++
}

func (f *fakeScene) SetViewMode(mode ViewMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, mode)
}

func (f *fakeScene) FlyTo(fly camera.FlyTo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flights = append(f.flights, fly)
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	ticks []uint64
}

func (f *fakeBroadcaster) BroadcastTelemetry(t Telemetry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, t.Tick)
}

type fakeRecorder struct {
	frames []recorder.Frame
}

func (f *fakeRecorder) Append(fr recorder.Frame) error {
	f.frames = append(f.frames, fr)
	return nil
}

// fakeSink records played sounds
type fakeSink struct {
	mu    sync.Mutex
	plays []audio.Sound
}

func (f *fakeSink) Play(sound audio.Sound, loop bool, volume float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays = append(f.plays, sound)
}
func (f *fakeSink) Stop(audio.Sound)           {}
func (f *fakeSink) StopAll()                   {}
func (f *fakeSink) SetEngine(float64, float64) {}

func (f *fakeSink) played() []audio.Sound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]audio.Sound(nil), f.plays...)
}

type fixture struct {
	sim      *Simulator
	scene    *fakeScene
	sound    *fakeSink
	bc       *fakeBroadcaster
	rec      *fakeRecorder
	nav      *navigation.Manager
	camera   *camera.Controller
	registry *aircraft.Registry
}

func newFixture(t *testing.T, cfg Config, ground float64) *fixture {
	t.Helper()
	log := logger.NewNop()

	registry, err := aircraft.NewRegistry(aircraft.DefaultTypes())
	if err != nil {
		t.Fatalf("NewRegistry error = %v", err)
	}

	f := &fixture{
		scene:    &fakeScene{},
		bc:       &fakeBroadcaster{},
		rec:      &fakeRecorder{},
		sound:    &fakeSink{},
		camera:   camera.NewController(camera.DefaultConfig()),
		registry: registry,
	}
	f.nav = navigation.NewManager(navigation.DefaultConfig(), terrain.Flat{Height: ground}, nil, log)

	f.sim, err = New(cfg, Deps{
		Registry:    registry,
		Terrain:     terrain.NewSampler(terrain.Flat{Height: ground}, 0, log),
		Navigation:  f.nav,
		Audio:       audio.NewFeedback(f.sound, log),
		Camera:      f.camera,
		Input:       input.NewMapper(input.DefaultBindings()),
		Scene:       f.scene,
		Broadcaster: f.bc,
		Recorder:    f.rec,
	}, log)
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	return f
}

// run starts the loop and stops it when the test ends
func (f *fixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.sim.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Run error = %v", err)
		}
	})
}

func TestTimeStepValidation(t *testing.T) {
	tests := []struct {
		name       string
		tickHz     float64
		multiplier float64
		wantErr    bool
	}{
		{"real time", 60, 1, false},
		{"fast forward", 30, 4, false},
		{"zero multiplier", 60, 0, true},
		{"zero rate", 0, 1, true},
		{"negative", 60, -1, true},
		{"nan", math.NaN(), 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.TickHz = tt.tickHz
			cfg.TimeMultiplier = tt.multiplier
			_, err := cfg.TimeStep()
			if (err != nil) != tt.wantErr {
				t.Fatalf("TimeStep() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTimeStep) {
				t.Errorf("error = %v, want ErrInvalidTimeStep", err)
			}
		})
	}
}

func TestRunRejectsNegativeRate(t *testing.T) {
	// both negative gives a positive dt but no usable tick interval
	cfg := DefaultConfig()
	cfg.TickHz = -60
	cfg.TimeMultiplier = -1
	f := newFixture(t, cfg, 0)

	if err := f.sim.Run(context.Background()); !errors.Is(err, ErrInvalidTimeStep) {
		t.Errorf("Run error = %v, want ErrInvalidTimeStep", err)
	}
	if err := f.sim.Start(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Start after exit = %v, want ErrNotRunning", err)
	}
}

func TestStepOrder(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.sim.step(ctx, f.sim.dt)
	}

	if len(f.bc.ticks) != 5 || f.bc.ticks[4] != 5 {
		t.Errorf("broadcast ticks = %v, want 1..5", f.bc.ticks)
	}
	if f.scene.poses != 5 {
		t.Errorf("camera poses = %d, want 5", f.scene.poses)
	}
	if len(f.rec.frames) != 5 || f.rec.frames[0].Waypoint != -1 {
		t.Errorf("recorded %d frames", len(f.rec.frames))
	}

	tel := f.sim.Telemetry()
	if tel.Tick != 5 || tel.Aircraft != "CESIUM_AIR" || tel.Navigation != nil {
		t.Errorf("telemetry = tick %d, aircraft %s, nav %v", tel.Tick, tel.Aircraft, tel.Navigation)
	}
	// spawn heading 90 is due east
	if math.Abs(tel.TrueHeading-90) > 0.5 {
		t.Errorf("true heading = %v, want about 90", tel.TrueHeading)
	}
}

func TestStepNavigation(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 0)
	ctx := context.Background()

	f.nav.AddWaypoint(ctx, 10, 10, 1000, "far")
	f.nav.StartNavigation()
	f.sim.step(ctx, f.sim.dt)

	tel := f.sim.Telemetry()
	if tel.Navigation == nil || tel.Navigation.CurrentWaypoint.Name != "far" {
		t.Fatalf("navigation snapshot = %+v", tel.Navigation)
	}
	if f.rec.frames[0].Waypoint != 0 {
		t.Errorf("recorded waypoint = %d, want 0", f.rec.frames[0].Waypoint)
	}
}

func TestCrashFreezesAircraft(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpawnAlt = 100
	f := newFixture(t, cfg, 500)
	ctx := context.Background()

	f.sim.step(ctx, f.sim.dt)
	crashed := f.sim.Telemetry().State
	if !crashed.Status.IsCrashed {
		t.Fatal("expected crash below terrain")
	}
	if math.Abs(f.sim.Telemetry().Altitude-2) > 1e-3 {
		t.Errorf("altitude = %v, want 2", f.sim.Telemetry().Altitude)
	}

	f.sim.step(ctx, f.sim.dt)
	if f.sim.Telemetry().State.Position != crashed.Position {
		t.Error("crashed aircraft moved")
	}
}

func TestRelocateAfterCrashRestartsEngine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpawnAlt = 100
	cfg.Autostart = true
	f := newFixture(t, cfg, 500)
	f.sim.deps.Audio.Unlock()

	f.sim.step(context.Background(), f.sim.dt)
	if !f.sim.Telemetry().State.Status.IsCrashed {
		t.Fatal("expected crash below terrain")
	}

	f.run(t)
	state, err := f.sim.Relocate(context.Background(), 2.35, 48.85)
	if err != nil {
		t.Fatalf("Relocate error = %v", err)
	}
	if state.Status.IsCrashed {
		t.Fatal("still crashed after Relocate")
	}

	want := []audio.Sound{audio.SoundCrash, audio.SoundEngine}
	if diff := cmp.Diff(want, f.sound.played()); diff != "" {
		t.Errorf("sounds mismatch (-want +got):\n%s", diff)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 0)
	f.run(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.sim.Start(ctx); err != nil {
			t.Fatalf("Start error = %v", err)
		}
	}
	if !f.sim.Telemetry().Running {
		t.Error("not running after Start")
	}

	if err := f.sim.PointerDown(ctx, 0, 0); err != nil {
		t.Fatalf("PointerDown error = %v", err)
	}
	f.sim.PointerUp(ctx)

	for i := 0; i < 2; i++ {
		if err := f.sim.Stop(ctx); err != nil {
			t.Fatalf("Stop error = %v", err)
		}
	}
	if f.sim.Telemetry().Running {
		t.Error("running after Stop")
	}

	var recentering bool
	f.sim.do(ctx, func() { recentering = f.camera.Recentering() })
	if recentering {
		t.Error("recenter still pending after Stop")
	}
}

func TestRelocate(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 200)
	f.run(t)
	ctx := context.Background()

	if err := f.sim.SetViewMode(ctx, ViewGlobal); err != nil {
		t.Fatalf("SetViewMode error = %v", err)
	}

	state, err := f.sim.Relocate(ctx, 139.7454, 35.6586)
	if err != nil {
		t.Fatalf("Relocate error = %v", err)
	}
	if state.Speed != aircraft.RelocateSpeed {
		t.Errorf("speed = %v, want %v", state.Speed, aircraft.RelocateSpeed)
	}

	tel := f.sim.Telemetry()
	if math.Abs(tel.Position.Height-1700) > 1e-3 {
		t.Errorf("height = %v, want 1700", tel.Position.Height)
	}
	if tel.ViewMode != ViewFlight {
		t.Errorf("view mode = %s, want FLIGHT", tel.ViewMode)
	}

	f.scene.mu.Lock()
	defer f.scene.mu.Unlock()
	if len(f.scene.modes) != 2 || f.scene.modes[0] != ViewGlobal || f.scene.modes[1] != ViewFlight {
		t.Errorf("scene modes = %v, want [GLOBAL FLIGHT]", f.scene.modes)
	}
	if len(f.scene.flights) != 1 || f.scene.flights[0].Duration != camera.GlobalFlyToDuration {
		t.Errorf("fly-to requests = %+v", f.scene.flights)
	}
}

func TestGlobalViewSkipsCamera(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 0)
	f.run(t)
	ctx := context.Background()

	if err := f.sim.SetViewMode(ctx, "orbit"); err == nil {
		t.Error("SetViewMode accepted an unknown mode")
	}
	if err := f.sim.SetViewMode(ctx, ViewGlobal); err != nil {
		t.Fatalf("SetViewMode error = %v", err)
	}

	f.sim.do(ctx, func() { f.sim.step(ctx, f.sim.dt) })

	f.scene.mu.Lock()
	defer f.scene.mu.Unlock()
	if f.scene.poses != 0 {
		t.Errorf("camera poses in global view = %d, want 0", f.scene.poses)
	}
}

func TestLoadAircraft(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 0)
	f.run(t)
	ctx := context.Background()

	if _, err := f.sim.LoadAircraft(ctx, "B52"); !errors.Is(err, aircraft.ErrUnknownAircraft) {
		t.Errorf("LoadAircraft(B52) error = %v, want ErrUnknownAircraft", err)
	}

	before := f.sim.Telemetry().State.Position
	typ, err := f.sim.LoadAircraft(ctx, "TIE")
	if err != nil {
		t.Fatalf("LoadAircraft error = %v", err)
	}
	if typ.Params.MaxSpeed != 999 {
		t.Errorf("max speed = %v, want 999", typ.Params.MaxSpeed)
	}
	tel := f.sim.Telemetry()
	if tel.Aircraft != "TIE" || tel.State.Position != before {
		t.Errorf("telemetry after swap = %s at %v", tel.Aircraft, tel.State.Position)
	}
}

func TestKeyInput(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 0)
	f.run(t)
	ctx := context.Background()

	if err := f.sim.SetKey(ctx, "W", true); err != nil {
		t.Fatalf("SetKey error = %v", err)
	}
	var pitch float64
	f.sim.do(ctx, func() { pitch = f.sim.deps.Input.Controls().Pitch })
	if pitch != 1 {
		t.Errorf("pitch = %v, want 1", pitch)
	}
}

func TestDoHonorsContext(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 0)
	// the loop is not running so the command is never picked up
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := f.sim.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Start error = %v, want deadline exceeded", err)
	}
}
