package navigation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/yegors/co-flight/internal/geo"
	"github.com/yegors/co-flight/internal/metrics"
	"github.com/yegors/co-flight/internal/terrain"
	"github.com/yegors/co-flight/pkg/logger"
)

// Config holds navigation tuning
type Config struct {
	CompletionRadius float64 // arrival distance (m)
	CruiseSpeed      float64 // assumed speed for ETA (m/s)
	DefaultClearance float64 // landmark waypoint height above terrain (m)
}

// DefaultConfig returns the standard navigation tuning
func DefaultConfig() Config {
	return Config{
		CompletionRadius: 500,
		CruiseSpeed:      200,
		DefaultClearance: 1000,
	}
}

// Scene displays waypoint markers and two lines: the route, and the leg from
// the aircraft to the active waypoint. A nil slice hides a line.
type Scene interface {
	ShowWaypoint(wp Waypoint)
	RemoveWaypoint(id string)
	SetPath(points []mgl64.Vec3)
	SetLeg(points []mgl64.Vec3)
}

type nopScene struct{}

func (nopScene) ShowWaypoint(Waypoint) {}
func (nopScene) RemoveWaypoint(string) {}
func (nopScene) SetPath([]mgl64.Vec3)  {}
func (nopScene) SetLeg([]mgl64.Vec3)   {}

// Manager owns the waypoint list and the Idle/Navigating state machine.
// It is safe for concurrent use. Scene updates and events are delivered
// outside the state lock but in the order the state changed, so the scene
// and subscribers must not call back into the Manager.
type Manager struct {
	config  Config
	terrain terrain.Provider
	scene   Scene
	now     func() time.Time
	logger  *logger.Logger

	mu         sync.Mutex
	waypoints  []Waypoint
	current    int
	navigating bool

	// flushMu is taken before mu is released and held through delivery
	flushMu sync.Mutex

	subMu       sync.RWMutex
	subscribers map[int]func(Event)
	nextSubID   int
}

// NewManager creates a navigation manager. A nil scene discards display updates.
func NewManager(config Config, provider terrain.Provider, scene Scene, logger *logger.Logger) *Manager {
	return NewManagerWithClock(config, provider, scene, time.Now, logger)
}

// NewManagerWithClock is NewManager with an explicit clock
func NewManagerWithClock(config Config, provider terrain.Provider, scene Scene, now func() time.Time, logger *logger.Logger) *Manager {
	if scene == nil {
		scene = nopScene{}
	}
	if provider == nil {
		provider = terrain.Flat{}
	}
	return &Manager{
		config:      config,
		terrain:     provider,
		scene:       scene,
		now:         now,
		logger:      logger.Named("navigation"),
		subscribers: make(map[int]func(Event)),
	}
}

// Subscribe registers fn for every event and returns a function that
// removes it
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.subMu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subscribers, id)
		m.subMu.Unlock()
	}
}

// effects collects scene updates and events produced under the lock
type effects struct {
	scene  []func(Scene)
	events []Event
}

func (e *effects) show(wp Waypoint) {
	e.scene = append(e.scene, func(s Scene) { s.ShowWaypoint(wp) })
}

func (e *effects) remove(id string) {
	e.scene = append(e.scene, func(s Scene) { s.RemoveWaypoint(id) })
}

func (e *effects) path(points []mgl64.Vec3) {
	e.scene = append(e.scene, func(s Scene) { s.SetPath(points) })
}

func (e *effects) leg(points []mgl64.Vec3) {
	e.scene = append(e.scene, func(s Scene) { s.SetLeg(points) })
}

func (e *effects) emit(ev Event) {
	e.events = append(e.events, ev)
}

// unlock releases mu and delivers fx. Holding flushMu across the handoff
// keeps deliveries from two callers in the order their changes were made.
func (m *Manager) unlock(fx *effects) {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()
	m.mu.Unlock()
	m.flush(fx)
}

func (m *Manager) flush(fx *effects) {
	for _, f := range fx.scene {
		f(m.scene)
	}
	if len(fx.events) == 0 {
		return
	}

	m.subMu.RLock()
	subs := make([]func(Event), 0, len(m.subscribers))
	for i := 0; i < m.nextSubID; i++ {
		if fn, ok := m.subscribers[i]; ok {
			subs = append(subs, fn)
		}
	}
	m.subMu.RUnlock()

	for _, ev := range fx.events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

// pathLocked returns the static route line. It is shown only while
// navigating and needs at least two points.
func (m *Manager) pathLocked() []mgl64.Vec3 {
	if !m.navigating || len(m.waypoints) < 2 {
		return nil
	}
	points := make([]mgl64.Vec3, len(m.waypoints))
	for i, wp := range m.waypoints {
		points[i] = wp.Position
	}
	return points
}

func (m *Manager) terrainHeight(ctx context.Context, lon, lat float64) float64 {
	heights, err := m.terrain.SampleHeights(ctx, []geo.Cartographic{{Longitude: lon, Latitude: lat}})
	if err == nil && len(heights) != 1 {
		err = fmt.Errorf("terrain provider returned %d heights for 1 point", len(heights))
	}
	if err != nil {
		metrics.TerrainSampleFailed()
		m.logger.Warn("Failed to sample waypoint terrain height, assuming 0",
			logger.Error(err),
			logger.Float64("lon", lon),
			logger.Float64("lat", lat))
		return 0
	}
	return heights[0]
}

// AddWaypoint appends a pending waypoint clearance meters above the terrain
// at lon/lat. An empty name becomes "Waypoint N".
func (m *Manager) AddWaypoint(ctx context.Context, lon, lat, clearance float64, name string) Waypoint {
	altitude := m.terrainHeight(ctx, lon, lat) + clearance

	var fx effects
	m.mu.Lock()
	if name == "" {
		name = fmt.Sprintf("Waypoint %d", len(m.waypoints)+1)
	}
	wp := Waypoint{
		ID:        "waypoint_" + uuid.NewString(),
		Name:      name,
		Longitude: lon,
		Latitude:  lat,
		Altitude:  altitude,
		Clearance: clearance,
		Position:  geo.FromDegrees(lon, lat, altitude),
	}
	m.waypoints = append(m.waypoints, wp)
	fx.show(wp)
	fx.path(m.pathLocked())
	fx.emit(WaypointAdded{Waypoint: wp})
	m.unlock(&fx)

	m.logger.Info("Waypoint added",
		logger.String("id", wp.ID),
		logger.String("name", wp.Name),
		logger.Float64("altitude", wp.Altitude))
	return wp
}

// AddWaypointFromLandmark adds a waypoint over a landmark. A non-positive
// clearance uses the configured default.
func (m *Manager) AddWaypointFromLandmark(ctx context.Context, lm Landmark, clearance float64) Waypoint {
	if clearance <= 0 {
		clearance = m.config.DefaultClearance
	}
	return m.AddWaypoint(ctx, lm.Longitude, lm.Latitude, clearance, lm.Name)
}

// LoadRoute replaces the waypoint list with points, in order
func (m *Manager) LoadRoute(ctx context.Context, points []RoutePoint) []Waypoint {
	m.ClearWaypoints()
	out := make([]Waypoint, 0, len(points))
	for _, p := range points {
		out = append(out, m.AddWaypoint(ctx, p.Longitude, p.Latitude, p.Clearance, p.Name))
	}
	return out
}

// StartNavigation resets every waypoint to pending and starts at the first.
// Returns false if there are no waypoints.
func (m *Manager) StartNavigation() bool {
	var fx effects
	m.mu.Lock()
	if len(m.waypoints) == 0 {
		m.mu.Unlock()
		m.logger.Warn("Cannot start navigation without waypoints")
		return false
	}
	for i := range m.waypoints {
		m.waypoints[i].Reached = false
		m.waypoints[i].ReachedTime = nil
		fx.show(m.waypoints[i])
	}
	m.current = 0
	m.navigating = true
	fx.path(m.pathLocked())
	fx.emit(NavigationStarted{TotalWaypoints: len(m.waypoints)})
	total := len(m.waypoints)
	m.unlock(&fx)

	m.logger.Info("Navigation started", logger.Int("waypoints", total))
	return true
}

// StopNavigation returns to Idle keeping reached flags
func (m *Manager) StopNavigation() {
	var fx effects
	m.mu.Lock()
	m.navigating = false
	fx.path(nil)
	fx.leg(nil)
	fx.emit(NavigationStopped{})
	m.unlock(&fx)

	m.logger.Info("Navigation stopped")
}

// Update checks arrival at the active waypoint and returns progress toward
// it. It returns false when not navigating or when the route was just
// completed.
func (m *Manager) Update(position mgl64.Vec3) (Snapshot, bool) {
	var fx effects
	m.mu.Lock()

	if !m.navigating || m.current >= len(m.waypoints) {
		m.mu.Unlock()
		return Snapshot{}, false
	}

	wp := m.waypoints[m.current]
	distance := position.Sub(wp.Position).Len()

	if distance <= m.config.CompletionRadius && !wp.Reached {
		reachedAt := m.now()
		wp.Reached = true
		wp.ReachedTime = &reachedAt
		m.waypoints[m.current] = wp

		fx.show(wp)
		fx.emit(WaypointReached{
			Waypoint:  wp,
			Index:     m.current,
			Remaining: len(m.waypoints) - m.current - 1,
		})
		metrics.WaypointReached()
		m.current++

		if m.current >= len(m.waypoints) {
			m.navigating = false
			total := m.totalTimeLocked()
			fx.path(nil)
			fx.leg(nil)
			fx.emit(NavigationCompleted{TotalTime: total})
			metrics.NavigationCompleted()
			m.unlock(&fx)

			m.logger.Info("Navigation completed", logger.Duration("total_time", total))
			return Snapshot{}, false
		}

		wp = m.waypoints[m.current]
		distance = position.Sub(wp.Position).Len()
	}

	snap := m.snapshotLocked(position, wp, distance)
	fx.leg([]mgl64.Vec3{position, wp.Position})
	m.unlock(&fx)
	return snap, true
}

func (m *Manager) snapshotLocked(position mgl64.Vec3, wp Waypoint, distance float64) Snapshot {
	aircraft := geo.ToCartographic(position)
	bearing := geo.CalculateBearing(aircraft.Longitude, aircraft.Latitude, wp.Longitude, wp.Latitude)
	declination := geo.MagneticVariation(aircraft.Latitude, aircraft.Longitude, aircraft.Height, m.now())

	return Snapshot{
		CurrentWaypoint: wp,
		CurrentIndex:    m.current,
		TotalWaypoints:  len(m.waypoints),
		Distance:        distance,
		Bearing:         bearing,
		MagneticBearing: geo.TrueToMagnetic(bearing, declination),
		ElevationDiff:   wp.Altitude - aircraft.Height,
		ETA:             distance / math.Max(m.config.CruiseSpeed, 1),
	}
}

// totalTimeLocked spans the first and last reached times in list order
func (m *Manager) totalTimeLocked() time.Duration {
	var first, last *time.Time
	for i := range m.waypoints {
		if t := m.waypoints[i].ReachedTime; t != nil {
			if first == nil {
				first = t
			}
			last = t
		}
	}
	if first == nil {
		return 0
	}
	return last.Sub(*first)
}

// RemoveWaypoint deletes a waypoint by id. Returns false if it does not exist.
func (m *Manager) RemoveWaypoint(id string) bool {
	var fx effects
	m.mu.Lock()

	idx := -1
	for i, wp := range m.waypoints {
		if wp.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return false
	}

	removed := m.waypoints[idx]
	m.waypoints = append(m.waypoints[:idx], m.waypoints[idx+1:]...)
	if idx < m.current {
		m.current--
	}
	stopped := m.navigating && m.current >= len(m.waypoints)
	if stopped {
		m.navigating = false
	}

	fx.remove(id)
	fx.path(m.pathLocked())
	fx.emit(WaypointRemoved{Waypoint: removed})
	if stopped {
		fx.leg(nil)
		fx.emit(NavigationStopped{})
	}
	m.unlock(&fx)

	m.logger.Info("Waypoint removed", logger.String("id", id), logger.Bool("stopped", stopped))
	return true
}

// ClearWaypoints removes every waypoint and returns to Idle
func (m *Manager) ClearWaypoints() {
	var fx effects
	m.mu.Lock()
	for _, wp := range m.waypoints {
		fx.remove(wp.ID)
	}
	fx.path(nil)
	fx.leg(nil)
	m.waypoints = nil
	m.current = 0
	m.navigating = false
	fx.emit(WaypointsCleared{})
	m.unlock(&fx)
}

// Waypoints returns a copy of the waypoint list
func (m *Manager) Waypoints() []Waypoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Waypoint(nil), m.waypoints...)
}

// IsNavigating reports whether a route is being flown
func (m *Manager) IsNavigating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.navigating
}

// CurrentIndex returns the active waypoint index
func (m *Manager) CurrentIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// RoutePoints returns the waypoint list in its stored form
func (m *Manager) RoutePoints() []RoutePoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	points := make([]RoutePoint, 0, len(m.waypoints))
	for _, wp := range m.waypoints {
		points = append(points, RoutePoint{
			Name:      wp.Name,
			Longitude: wp.Longitude,
			Latitude:  wp.Latitude,
			Clearance: wp.Clearance,
		})
	}
	return points
}
