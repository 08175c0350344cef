package navigation

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Waypoint is one target of a route. Altitude is absolute: terrain height
// plus the requested ground clearance.
type Waypoint struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Longitude   float64    `json:"longitude"`
	Latitude    float64    `json:"latitude"`
	Altitude    float64    `json:"altitude"`
	Clearance   float64    `json:"clearance"` // requested height above terrain
	Position    mgl64.Vec3 `json:"position"`
	Reached     bool       `json:"reached"`
	ReachedTime *time.Time `json:"reached_time,omitempty"`
}

// Snapshot describes progress toward the active waypoint for one tick
type Snapshot struct {
	CurrentWaypoint Waypoint `json:"current_waypoint"`
	CurrentIndex    int      `json:"current_index"`
	TotalWaypoints  int      `json:"total_waypoints"`
	Distance        float64  `json:"distance"`         // meters
	Bearing         float64  `json:"bearing"`          // true, degrees
	MagneticBearing float64  `json:"magnetic_bearing"` // degrees
	ElevationDiff   float64  `json:"elevation_diff"`   // positive means climb
	ETA             float64  `json:"eta"`              // seconds
}

// RoutePoint is a stored route entry; Clearance is height above terrain
type RoutePoint struct {
	Name      string  `json:"name"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Clearance float64 `json:"clearance"`
}

// Landmark is a named point of interest that can become a waypoint
type Landmark struct {
	Name      string  `json:"name" toml:"name"`
	Region    string  `json:"region" toml:"region"`
	Longitude float64 `json:"longitude" toml:"lon"`
	Latitude  float64 `json:"latitude" toml:"lat"`
}

// DefaultLandmarks returns the built-in world landmark list
func DefaultLandmarks() []Landmark {
	return []Landmark{
		{Name: "Eiffel Tower", Region: "Europe", Longitude: 2.2945, Latitude: 48.8584},
		{Name: "Big Ben", Region: "Europe", Longitude: -0.1246, Latitude: 51.5007},
		{Name: "Colosseum", Region: "Europe", Longitude: 12.4922, Latitude: 41.8902},
		{Name: "Hagia Sophia", Region: "Europe", Longitude: 28.9799, Latitude: 41.0086},
		{Name: "Statue of Liberty", Region: "North America", Longitude: -74.0445, Latitude: 40.6892},
		{Name: "Golden Gate Bridge", Region: "North America", Longitude: -122.4783, Latitude: 37.8199},
		{Name: "Grand Canyon", Region: "North America", Longitude: -112.1129, Latitude: 36.0570},
		{Name: "Christ the Redeemer", Region: "South America", Longitude: -43.2105, Latitude: -22.9519},
		{Name: "Machu Picchu", Region: "South America", Longitude: -72.5449, Latitude: -13.1631},
		{Name: "Tokyo Tower", Region: "Asia", Longitude: 139.7454, Latitude: 35.6586},
		{Name: "Taj Mahal", Region: "Asia", Longitude: 78.0421, Latitude: 27.1751},
		{Name: "Forbidden City", Region: "Asia", Longitude: 116.3972, Latitude: 39.9163},
		{Name: "Oriental Pearl Tower", Region: "Asia", Longitude: 121.4995, Latitude: 31.2397},
		{Name: "Mount Everest", Region: "Asia", Longitude: 86.9250, Latitude: 27.9881},
		{Name: "Burj Khalifa", Region: "Middle East", Longitude: 55.2744, Latitude: 25.1972},
		{Name: "Petra", Region: "Middle East", Longitude: 35.4444, Latitude: 30.3285},
		{Name: "Giza Pyramids", Region: "Africa", Longitude: 31.1342, Latitude: 29.9792},
		{Name: "Table Mountain", Region: "Africa", Longitude: 18.4106, Latitude: -33.9630},
		{Name: "Sydney Opera House", Region: "Oceania", Longitude: 151.2153, Latitude: -33.8568},
		{Name: "Uluru", Region: "Oceania", Longitude: 131.0369, Latitude: -25.3444},
	}
}

// Event is a navigation lifecycle notification
type Event interface {
	EventType() string
}

// WaypointAdded is emitted after a waypoint is appended
type WaypointAdded struct {
	Waypoint Waypoint `json:"waypoint"`
}

// WaypointRemoved is emitted after a waypoint is removed
type WaypointRemoved struct {
	Waypoint Waypoint `json:"waypoint"`
}

// WaypointsCleared is emitted after the list is emptied
type WaypointsCleared struct{}

// NavigationStarted is emitted when a route is started
type NavigationStarted struct {
	TotalWaypoints int `json:"total_waypoints"`
}

// NavigationStopped is emitted when navigation is stopped by the user
type NavigationStopped struct{}

// WaypointReached is emitted once per waypoint on arrival
type WaypointReached struct {
	Waypoint  Waypoint `json:"waypoint"`
	Index     int      `json:"index"`
	Remaining int      `json:"remaining"`
}

// NavigationCompleted is emitted when the last waypoint is reached.
// TotalTime spans the first to the last arrival.
type NavigationCompleted struct {
	TotalTime time.Duration `json:"total_time"`
}

func (WaypointAdded) EventType() string       { return "waypoint_added" }
func (WaypointRemoved) EventType() string     { return "waypoint_removed" }
func (WaypointsCleared) EventType() string    { return "waypoints_cleared" }
func (NavigationStarted) EventType() string   { return "navigation_started" }
func (NavigationStopped) EventType() string   { return "navigation_stopped" }
func (WaypointReached) EventType() string     { return "waypoint_reached" }
func (NavigationCompleted) EventType() string { return "navigation_completed" }
