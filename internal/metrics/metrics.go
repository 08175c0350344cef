package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coflight_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coflight_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	ticksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coflight_simulation_ticks_total",
			Help: "Total number of simulation ticks processed.",
		},
	)

	tickDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coflight_simulation_tick_duration_seconds",
			Help:    "Wall time spent processing one simulation tick.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)

	terrainFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coflight_terrain_sample_failures_total",
			Help: "Terrain samples that failed and fell back to a default height.",
		},
	)

	waypointsReachedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coflight_waypoints_reached_total",
			Help: "Waypoints reached during navigation.",
		},
	)

	navigationCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coflight_navigation_completed_total",
			Help: "Routes flown to completion.",
		},
	)

	crashesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coflight_crashes_total",
			Help: "Terrain collisions.",
		},
	)

	aircraftSpeed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coflight_aircraft_speed_mps",
			Help: "Current aircraft speed in meters per second.",
		},
	)

	websocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coflight_websocket_clients",
			Help: "Connected WebSocket clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(ticksTotal)
	prometheus.MustRegister(tickDurationSeconds)
	prometheus.MustRegister(terrainFailuresTotal)
	prometheus.MustRegister(waypointsReachedTotal)
	prometheus.MustRegister(navigationCompletedTotal)
	prometheus.MustRegister(crashesTotal)
	prometheus.MustRegister(aircraftSpeed)
	prometheus.MustRegister(websocketClients)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTick records one processed simulation tick
func ObserveTick(d time.Duration, speed float64) {
	ticksTotal.Inc()
	tickDurationSeconds.Observe(d.Seconds())
	aircraftSpeed.Set(speed)
}

// TerrainSampleFailed counts a terrain fallback
func TerrainSampleFailed() {
	terrainFailuresTotal.Inc()
}

// WaypointReached counts a reached waypoint
func WaypointReached() {
	waypointsReachedTotal.Inc()
}

// NavigationCompleted counts a completed route
func NavigationCompleted() {
	navigationCompletedTotal.Inc()
}

// Crashed counts a crash onset
func Crashed() {
	crashesTotal.Inc()
}

// SetWebSocketClients records the connected client count
func SetWebSocketClients(n int) {
	websocketClients.Set(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack lets WebSocket upgrades pass through the middleware
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Middleware records request count and duration for each request. Paths are
// labeled with the matched chi route pattern to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		path := routeLabel(r)

		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(duration)
	})
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "other"
}
