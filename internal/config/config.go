package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/yegors/co-flight/internal/aircraft"
	"github.com/yegors/co-flight/internal/camera"
	"github.com/yegors/co-flight/internal/input"
	"github.com/yegors/co-flight/internal/navigation"
	"github.com/yegors/co-flight/internal/physics"
	"github.com/yegors/co-flight/internal/simulation"
	"github.com/yegors/co-flight/internal/terrain"
	"github.com/yegors/co-flight/pkg/logger"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server     ServerConfig          `toml:"server"`     // HTTP server settings
	Logging    LoggingConfig         `toml:"logging"`    // Application logging settings
	Storage    StorageConfig         `toml:"storage"`    // Route and event persistence
	Simulation SimulationConfig      `toml:"simulation"` // Tick loop and spawn point
	Terrain    TerrainConfig         `toml:"terrain"`    // Ground height source
	Camera     CameraConfig          `toml:"camera"`     // Chase camera tuning
	Navigation NavigationConfig      `toml:"navigation"` // Waypoint completion and ETA
	Input      input.Bindings        `toml:"input"`      // Key bindings per control axis
	Aircraft   []AircraftConfig      `toml:"aircraft"`   // Flyable aircraft types
	Landmarks  []navigation.Landmark `toml:"landmarks"`  // Waypoint presets
	Recorder   RecorderConfig        `toml:"recorder"`   // Flight recording
	Metrics    MetricsConfig         `toml:"metrics"`    // Prometheus endpoint
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // Primary HTTP port for the server
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	AdditionalPorts  []int  `toml:"additional_ports"`      // Additional HTTP ports to listen on
	StaticFilesDir   string `toml:"static_files_dir"`      // Directory with the browser client (empty = API only)
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`        // Log level: "debug", "info", "warn", or "error"
	Format     string `toml:"format"`       // Log format: "json" (structured) or "console" (human-readable)
	File       string `toml:"file"`         // Optional log file, rotated in place
	MaxSizeMB  int    `toml:"max_size_mb"`  // Rotate the log file after this size
	MaxBackups int    `toml:"max_backups"`  // Rotated files to keep
	MaxAgeDays int    `toml:"max_age_days"` // Days to keep rotated files
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"` // SQLite database file for routes and navigation events
}

// SimulationConfig controls the tick loop and where the aircraft spawns
type SimulationConfig struct {
	TickHz          float64 `toml:"tick_hz"`           // Ticks per wall-clock second
	TimeMultiplier  float64 `toml:"time_multiplier"`   // Simulated seconds per wall-clock second
	SpawnLon        float64 `toml:"spawn_lon"`         // Spawn longitude in degrees
	SpawnLat        float64 `toml:"spawn_lat"`         // Spawn latitude in degrees
	SpawnAlt        float64 `toml:"spawn_alt"`         // Spawn height above the ellipsoid in meters
	SpawnHeadingDeg float64 `toml:"spawn_heading_deg"` // Spawn compass bearing in degrees
	DefaultAircraft string  `toml:"default_aircraft"`  // Aircraft type flown at startup
	Autostart       bool    `toml:"autostart"`         // Start ticking without an explicit start command
}

// TerrainConfig selects and tunes the ground height source
type TerrainConfig struct {
	// Provider selection
	// Allowed values:
	// - "flat": constant flat_height everywhere
	// - "synthetic": deterministic rolling hills
	// - "http": Open-Elevation style lookup service at url
	Provider         string  `toml:"provider"`
	URL              string  `toml:"url"`                // Lookup endpoint for the http provider
	RequestTimeoutMs int     `toml:"request_timeout_ms"` // Per-request HTTP timeout
	MaxRetries       int     `toml:"max_retries"`        // Retries after the first HTTP attempt
	RetryBackoffMs   int     `toml:"retry_backoff_ms"`   // First retry delay, doubled per retry
	SampleTimeoutMs  int     `toml:"sample_timeout_ms"`  // Budget for one per-tick height sample
	CacheSize        int     `toml:"cache_size"`         // Cached grid cells (0 = no cache)
	CacheTTLSecs     int     `toml:"cache_ttl_seconds"`  // Lifetime of a cached cell
	CacheResolution  float64 `toml:"cache_resolution"`   // Grid cell size in degrees
	FlatHeight       float64 `toml:"flat_height"`        // Ground height of the flat provider
	BaseHeight       float64 `toml:"base_height"`        // Mean height of the synthetic provider
	Amplitude        float64 `toml:"amplitude"`          // Hill height of the synthetic provider
	Wavelength       float64 `toml:"wavelength"`         // Hill spacing of the synthetic provider in degrees
}

// CameraConfig tunes the chase camera
type CameraConfig struct {
	Sensitivity     float64 `toml:"sensitivity"`       // Radians of orbit per pixel of drag
	ZoomStep        float64 `toml:"zoom_step"`         // Meters per unit of wheel delta
	MinDistance     float64 `toml:"min_distance"`      // Closest orbit distance
	MaxDistance     float64 `toml:"max_distance"`      // Farthest orbit distance
	DefaultDistance float64 `toml:"default_distance"`  // Initial orbit distance
	Height          float64 `toml:"height"`            // Camera offset above the aircraft
	ResetDelayMs    int     `toml:"reset_delay_ms"`    // Idle time after a drag before recentering
	ResetDurationMs int     `toml:"reset_duration_ms"` // Length of the recenter animation
}

// NavigationConfig tunes waypoint handling
type NavigationConfig struct {
	CompletionRadius float64 `toml:"completion_radius"` // Arrival distance in meters
	CruiseSpeed      float64 `toml:"cruise_speed"`      // Minimum speed used for ETA in m/s
	DefaultClearance float64 `toml:"default_clearance"` // Height above terrain for landmark waypoints
}

// AircraftConfig is one [[aircraft]] entry
type AircraftConfig struct {
	ID         string  `toml:"id"`
	Name       string  `toml:"name"`
	MaxSpeed   float64 `toml:"max_speed"`   // m/s
	PitchRate  float64 `toml:"pitch_rate"`  // deg/s
	RollRate   float64 `toml:"roll_rate"`   // deg/s
	YawRate    float64 `toml:"yaw_rate"`    // deg/s
	StallSpeed float64 `toml:"stall_speed"` // m/s
}

// RecorderConfig controls flight recording
type RecorderConfig struct {
	Enabled     bool   `toml:"enabled"`       // Write a recording per session
	Path        string `toml:"path"`          // Directory for recording files
	EveryNTicks int    `toml:"every_n_ticks"` // Keep one frame in every N ticks
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the configuration used for any value a file leaves out
func Default() *Config {
	sim := simulation.DefaultConfig()
	cam := camera.DefaultConfig()
	nav := navigation.DefaultConfig()

	types := aircraft.DefaultTypes()
	fleet := make([]AircraftConfig, 0, len(types))
	for _, t := range types {
		fleet = append(fleet, AircraftConfig{
			ID:         t.ID,
			Name:       t.Name,
			MaxSpeed:   t.Params.MaxSpeed,
			PitchRate:  t.Params.PitchRate,
			RollRate:   t.Params.RollRate,
			YawRate:    t.Params.YawRate,
			StallSpeed: t.Params.StallSpeed,
		})
	}

	return &Config{
		Server: ServerConfig{
			Port:             8080,
			Host:             "127.0.0.1",
			ReadTimeoutSecs:  15,
			WriteTimeoutSecs: 15,
			IdleTimeoutSecs:  60,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Storage: StorageConfig{
			SQLitePath: "data/co-flight.db",
		},
		Simulation: SimulationConfig{
			TickHz:          sim.TickHz,
			TimeMultiplier:  sim.TimeMultiplier,
			SpawnLon:        sim.SpawnLon,
			SpawnLat:        sim.SpawnLat,
			SpawnAlt:        sim.SpawnAlt,
			SpawnHeadingDeg: sim.SpawnHeadingDeg,
			DefaultAircraft: sim.DefaultAircraft,
			Autostart:       sim.Autostart,
		},
		Terrain: TerrainConfig{
			Provider:         "flat",
			RequestTimeoutMs: 2000,
			MaxRetries:       2,
			RetryBackoffMs:   500,
			SampleTimeoutMs:  50,
			CacheSize:        4096,
			CacheTTLSecs:     600,
			CacheResolution:  0.001,
			BaseHeight:       200,
			Amplitude:        300,
			Wavelength:       0.05,
		},
		Camera: CameraConfig{
			Sensitivity:     cam.Sensitivity,
			ZoomStep:        cam.ZoomStep,
			MinDistance:     cam.MinDistance,
			MaxDistance:     cam.MaxDistance,
			DefaultDistance: cam.DefaultDistance,
			Height:          cam.Height,
			ResetDelayMs:    int(cam.ResetDelay / time.Millisecond),
			ResetDurationMs: int(cam.ResetDuration / time.Millisecond),
		},
		Navigation: NavigationConfig{
			CompletionRadius: nav.CompletionRadius,
			CruiseSpeed:      nav.CruiseSpeed,
			DefaultClearance: nav.DefaultClearance,
		},
		Input:     input.DefaultBindings(),
		Aircraft:  fleet,
		Landmarks: navigation.DefaultLandmarks(),
		Recorder: RecorderConfig{
			Path:        "data/recordings",
			EveryNTicks: 6,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads the configuration from a TOML file on top of the defaults
func Load(path string) (*Config, error) {
	config := Default()

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// List sections replace the defaults wholesale, element fields never merge
	fleet, landmarks := config.Aircraft, config.Landmarks
	config.Aircraft, config.Landmarks = nil, nil

	md, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	if !md.IsDefined("aircraft") {
		config.Aircraft = fleet
	}
	if !md.IsDefined("landmarks") {
		config.Landmarks = landmarks
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	return config, nil
}

// LoadWithFallback tries the preferred path, then the standard locations
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // Repository layout
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate checks the configuration and normalizes case-insensitive values
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	portsSeen := map[int]bool{c.Server.Port: true}
	for _, p := range c.Server.AdditionalPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid additional server port: %d", p)
		}
		if portsSeen[p] {
			return fmt.Errorf("duplicate port configured: %d (primary or additional)", p)
		}
		portsSeen[p] = true
	}
	if c.Server.StaticFilesDir != "" {
		if _, err := os.Stat(c.Server.StaticFilesDir); os.IsNotExist(err) {
			return fmt.Errorf("static files directory does not exist: %s", c.Server.StaticFilesDir)
		}
	}

	// Validate logging config
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be 'json' or 'console')", c.Logging.Format)
	}

	if c.Storage.SQLitePath == "" {
		return errors.New("storage.sqlite_path is required")
	}

	if err := c.validateSimulation(); err != nil {
		return err
	}
	if err := c.validateTerrain(); err != nil {
		return err
	}

	// Validate camera config
	cam := c.Camera
	if cam.MinDistance <= 0 || cam.MaxDistance < cam.MinDistance {
		return fmt.Errorf("invalid camera distance range: %v..%v", cam.MinDistance, cam.MaxDistance)
	}
	if cam.DefaultDistance < cam.MinDistance || cam.DefaultDistance > cam.MaxDistance {
		return fmt.Errorf("camera default_distance %v outside %v..%v", cam.DefaultDistance, cam.MinDistance, cam.MaxDistance)
	}
	if cam.ResetDelayMs < 0 || cam.ResetDurationMs < 0 {
		return errors.New("camera reset timings must not be negative")
	}

	// Validate navigation config
	if c.Navigation.CompletionRadius <= 0 {
		return fmt.Errorf("invalid completion_radius: %v (must be > 0)", c.Navigation.CompletionRadius)
	}
	if c.Navigation.CruiseSpeed <= 0 {
		return fmt.Errorf("invalid cruise_speed: %v (must be > 0)", c.Navigation.CruiseSpeed)
	}
	if c.Navigation.DefaultClearance < 0 {
		return fmt.Errorf("invalid default_clearance: %v (must be >= 0)", c.Navigation.DefaultClearance)
	}

	for i, lm := range c.Landmarks {
		if strings.TrimSpace(lm.Name) == "" {
			return fmt.Errorf("landmark %d has no name", i)
		}
		if lm.Latitude < -90 || lm.Latitude > 90 || lm.Longitude < -180 || lm.Longitude > 180 {
			return fmt.Errorf("landmark %q has invalid coordinates %v,%v", lm.Name, lm.Longitude, lm.Latitude)
		}
	}

	// Validate recorder config
	if c.Recorder.Enabled {
		if c.Recorder.Path == "" {
			return errors.New("recorder.path is required when the recorder is enabled")
		}
		if c.Recorder.EveryNTicks < 1 {
			return fmt.Errorf("invalid recorder every_n_ticks: %d (must be >= 1)", c.Recorder.EveryNTicks)
		}
	}

	// Validate metrics config
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics path: %q (must start with '/')", c.Metrics.Path)
	}

	return nil
}

func (c *Config) validateSimulation() error {
	if _, err := c.SimulationConfig().TimeStep(); err != nil {
		return err
	}
	if c.Simulation.SpawnLat < -90 || c.Simulation.SpawnLat > 90 ||
		c.Simulation.SpawnLon < -180 || c.Simulation.SpawnLon > 180 {
		return fmt.Errorf("invalid spawn point: %v,%v", c.Simulation.SpawnLon, c.Simulation.SpawnLat)
	}

	registry, err := aircraft.NewRegistry(c.AircraftTypes())
	if err != nil {
		return fmt.Errorf("invalid aircraft config: %w", err)
	}
	if _, err := registry.Get(c.Simulation.DefaultAircraft); err != nil {
		return fmt.Errorf("invalid default_aircraft: %w", err)
	}
	return nil
}

func (c *Config) validateTerrain() error {
	t := &c.Terrain
	t.Provider = strings.ToLower(t.Provider)
	switch t.Provider {
	case "flat":
		if math.IsNaN(t.FlatHeight) || math.IsInf(t.FlatHeight, 0) {
			return errors.New("terrain.flat_height must be finite")
		}
	case "synthetic":
		if t.Wavelength <= 0 {
			return fmt.Errorf("invalid terrain wavelength: %v (must be > 0)", t.Wavelength)
		}
	case "http":
		if t.URL == "" {
			return errors.New("terrain.url is required when provider is http")
		}
		if t.RequestTimeoutMs <= 0 {
			return fmt.Errorf("invalid terrain request_timeout_ms: %d (must be > 0)", t.RequestTimeoutMs)
		}
		if t.MaxRetries < 0 {
			return fmt.Errorf("invalid terrain max_retries: %d (must be >= 0)", t.MaxRetries)
		}
	default:
		return fmt.Errorf("invalid terrain provider: %s (must be 'flat', 'synthetic', or 'http')", t.Provider)
	}

	if t.SampleTimeoutMs < 0 {
		return fmt.Errorf("invalid terrain sample_timeout_ms: %d (must be >= 0)", t.SampleTimeoutMs)
	}
	if t.CacheSize < 0 {
		return fmt.Errorf("invalid terrain cache_size: %d (must be >= 0)", t.CacheSize)
	}
	if t.CacheSize > 0 && (t.CacheResolution <= 0 || t.CacheTTLSecs <= 0) {
		return errors.New("terrain cache_resolution and cache_ttl_seconds must be > 0 when the cache is enabled")
	}
	return nil
}

// LoggerConfig converts the logging section
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}

// SimulationConfig converts the simulation section
func (c *Config) SimulationConfig() simulation.Config {
	s := c.Simulation
	return simulation.Config{
		TickHz:          s.TickHz,
		TimeMultiplier:  s.TimeMultiplier,
		SpawnLon:        s.SpawnLon,
		SpawnLat:        s.SpawnLat,
		SpawnAlt:        s.SpawnAlt,
		SpawnHeadingDeg: s.SpawnHeadingDeg,
		DefaultAircraft: s.DefaultAircraft,
		Autostart:       s.Autostart,
	}
}

// CameraConfig converts the camera section
func (c *Config) CameraConfig() camera.Config {
	cam := c.Camera
	return camera.Config{
		Sensitivity:     cam.Sensitivity,
		ZoomStep:        cam.ZoomStep,
		MinDistance:     cam.MinDistance,
		MaxDistance:     cam.MaxDistance,
		DefaultDistance: cam.DefaultDistance,
		Height:          cam.Height,
		ResetDelay:      time.Duration(cam.ResetDelayMs) * time.Millisecond,
		ResetDuration:   time.Duration(cam.ResetDurationMs) * time.Millisecond,
	}
}

// NavigationConfig converts the navigation section
func (c *Config) NavigationConfig() navigation.Config {
	return navigation.Config{
		CompletionRadius: c.Navigation.CompletionRadius,
		CruiseSpeed:      c.Navigation.CruiseSpeed,
		DefaultClearance: c.Navigation.DefaultClearance,
	}
}

// AircraftTypes converts the [[aircraft]] entries
func (c *Config) AircraftTypes() []aircraft.Type {
	types := make([]aircraft.Type, 0, len(c.Aircraft))
	for _, a := range c.Aircraft {
		types = append(types, aircraft.Type{
			ID:   a.ID,
			Name: a.Name,
			Params: physics.Params{
				MaxSpeed:   a.MaxSpeed,
				PitchRate:  a.PitchRate,
				RollRate:   a.RollRate,
				YawRate:    a.YawRate,
				StallSpeed: a.StallSpeed,
			},
		})
	}
	return types
}

// TerrainProvider builds the configured height source, wrapped in the
// grid cache when cache_size > 0
func (c *Config) TerrainProvider(log *logger.Logger) (terrain.Provider, error) {
	t := c.Terrain
	var provider terrain.Provider
	switch t.Provider {
	case "flat":
		provider = terrain.Flat{Height: t.FlatHeight}
	case "synthetic":
		provider = terrain.Synthetic{BaseHeight: t.BaseHeight, Amplitude: t.Amplitude, Wavelength: t.Wavelength}
	case "http":
		provider = terrain.NewClient(terrain.ClientConfig{
			URL:            t.URL,
			RequestTimeout: time.Duration(t.RequestTimeoutMs) * time.Millisecond,
			MaxRetries:     t.MaxRetries,
			RetryBackoff:   time.Duration(t.RetryBackoffMs) * time.Millisecond,
		}, log)
	default:
		return nil, fmt.Errorf("invalid terrain provider: %s", t.Provider)
	}

	if t.CacheSize == 0 {
		return provider, nil
	}
	return terrain.NewCached(provider, t.CacheSize, time.Duration(t.CacheTTLSecs)*time.Second, t.CacheResolution)
}

// SampleTimeout is the per-tick terrain budget
func (c *Config) SampleTimeout() time.Duration {
	return time.Duration(c.Terrain.SampleTimeoutMs) * time.Millisecond
}
