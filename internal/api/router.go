package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yegors/co-flight/internal/metrics"
	"github.com/yegors/co-flight/pkg/logger"
)

// Router builds the HTTP routes
type Router struct {
	handler     *Handler
	ws          http.HandlerFunc
	static      http.Handler // optional
	metricsPath string       // empty disables /metrics
	logger      *logger.Logger
}

// RouterOptions configures the outer surfaces of the router
type RouterOptions struct {
	WebSocket   http.HandlerFunc
	StaticDir   string
	MetricsPath string
}

// NewRouter creates a router over h
func NewRouter(h *Handler, opts RouterOptions, logger *logger.Logger) *Router {
	r := &Router{
		handler:     h,
		ws:          opts.WebSocket,
		metricsPath: opts.MetricsPath,
		logger:      logger.Named("api-router"),
	}
	if opts.StaticDir != "" {
		r.static = NewStaticFileHandler(opts.StaticDir, logger)
	}
	return r
}

// Routes returns the root handler
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	h := rt.handler
	r.Route("/api/v1", func(r chi.Router) {
		// request bodies are small JSON documents
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/health", h.GetHealth)
		r.Get("/state", h.GetState)

		r.Route("/simulation", func(r chi.Router) {
			r.Post("/start", h.StartSimulation)
			r.Post("/stop", h.StopSimulation)
			r.Post("/relocate", h.Relocate)
			r.Post("/view-mode", h.SetViewMode)
		})

		r.Get("/aircraft/types", h.GetAircraftTypes)
		r.Post("/aircraft/load", h.LoadAircraft)
		r.Get("/landmarks", h.GetLandmarks)

		r.Route("/waypoints", func(r chi.Router) {
			r.Get("/", h.GetWaypoints)
			r.Post("/", h.AddWaypoint)
			r.Delete("/", h.ClearWaypoints)
			r.Post("/landmark", h.AddLandmarkWaypoint)
			r.Delete("/{id}", h.RemoveWaypoint)
		})

		r.Route("/navigation", func(r chi.Router) {
			r.Get("/", h.GetNavigation)
			r.Post("/start", h.StartNavigation)
			r.Post("/stop", h.StopNavigation)
			r.Get("/events", h.GetNavigationEvents)
		})

		r.Route("/routes", func(r chi.Router) {
			r.Get("/", h.GetRoutes)
			r.Post("/", h.SaveRoute)
			r.Post("/{id}/load", h.LoadRoute)
			r.Delete("/{id}", h.DeleteRoute)
		})
	})

	if rt.ws != nil {
		r.Get("/ws", rt.ws)
	}
	if rt.metricsPath != "" {
		r.Method(http.MethodGet, rt.metricsPath, metrics.Handler())
	}
	if rt.static != nil {
		r.Handle("/*", rt.static)
	}

	rt.logger.Debug("Routes registered",
		logger.Bool("websocket", rt.ws != nil),
		logger.Bool("static", rt.static != nil),
		logger.String("metrics_path", rt.metricsPath))
	return r
}
