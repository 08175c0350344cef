package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yegors/co-flight/internal/storage/sqlite"
	"github.com/yegors/co-flight/pkg/logger"
)

// GetWaypoints lists the waypoints in route order
func (h *Handler) GetWaypoints(w http.ResponseWriter, r *http.Request) {
	waypoints := h.navigation.Waypoints()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"waypoints":     waypoints,
		"count":         len(waypoints),
		"navigating":    h.navigation.IsNavigating(),
		"current_index": h.navigation.CurrentIndex(),
	})
}

// AddWaypoint appends a waypoint. altitude is the clearance above terrain.
func (h *Handler) AddWaypoint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lon      *float64        `json:"lon"`
		Lat      *float64        `json:"lat"`
		Altitude json.RawMessage `json:"altitude"`
		Name     string          `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Lon == nil || req.Lat == nil {
		http.Error(w, "Missing lon or lat", http.StatusBadRequest)
		return
	}
	if problem := coordinateProblem(*req.Lon, *req.Lat); problem != "" {
		http.Error(w, problem, http.StatusBadRequest)
		return
	}
	clearance, ok := parseAltitude(req.Altitude, h.defaultClearance)
	if !ok {
		http.Error(w, "Invalid altitude (must be a number)", http.StatusBadRequest)
		return
	}

	wp := h.navigation.AddWaypoint(r.Context(), *req.Lon, *req.Lat, clearance, strings.TrimSpace(req.Name))
	WriteJSON(w, http.StatusCreated, wp)
}

// AddLandmarkWaypoint appends a waypoint over a named landmark
func (h *Handler) AddLandmarkWaypoint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string          `json:"name"`
		Clearance json.RawMessage `json:"clearance"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	clearance, ok := parseAltitude(req.Clearance, 0)
	if !ok {
		http.Error(w, "Invalid clearance (must be a number)", http.StatusBadRequest)
		return
	}

	for _, lm := range h.landmarks {
		if strings.EqualFold(lm.Name, strings.TrimSpace(req.Name)) {
			wp := h.navigation.AddWaypointFromLandmark(r.Context(), lm, clearance)
			WriteJSON(w, http.StatusCreated, wp)
			return
		}
	}
	writeMessage(w, http.StatusNotFound, "Landmark not found")
}

// RemoveWaypoint deletes one waypoint
func (h *Handler) RemoveWaypoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Missing waypoint ID", http.StatusBadRequest)
		return
	}
	if !h.navigation.RemoveWaypoint(id) {
		writeMessage(w, http.StatusNotFound, "Waypoint not found")
		return
	}
	writeMessage(w, http.StatusOK, "Waypoint removed")
}

// ClearWaypoints deletes every waypoint and stops navigation
func (h *Handler) ClearWaypoints(w http.ResponseWriter, r *http.Request) {
	h.navigation.ClearWaypoints()
	writeMessage(w, http.StatusOK, "Waypoints cleared")
}

// StartNavigation starts flying the route from the first waypoint
func (h *Handler) StartNavigation(w http.ResponseWriter, r *http.Request) {
	if !h.navigation.StartNavigation() {
		writeMessage(w, http.StatusConflict, "No waypoints to navigate")
		return
	}
	writeMessage(w, http.StatusOK, "Navigation started")
}

// StopNavigation stops flying the route
func (h *Handler) StopNavigation(w http.ResponseWriter, r *http.Request) {
	h.navigation.StopNavigation()
	writeMessage(w, http.StatusOK, "Navigation stopped")
}

// GetNavigation returns the latest navigation snapshot
func (h *Handler) GetNavigation(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"navigating": h.navigation.IsNavigating(),
		"snapshot":   h.simulator.Telemetry().Navigation,
	})
}

// GetRoutes lists saved routes, newest first
func (h *Handler) GetRoutes(w http.ResponseWriter, r *http.Request) {
	if h.routeStorage == nil {
		http.Error(w, "Route storage not available", http.StatusServiceUnavailable)
		return
	}
	routes, err := h.routeStorage.ListRoutes(r.Context())
	if err != nil {
		h.logger.Error("Failed to list routes", logger.Error(err))
		http.Error(w, "Failed to list routes", http.StatusInternalServerError)
		return
	}
	if routes == nil {
		routes = []*sqlite.Route{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"routes": routes,
		"count":  len(routes),
	})
}

// SaveRoute stores the current waypoints as a named route
func (h *Handler) SaveRoute(w http.ResponseWriter, r *http.Request) {
	if h.routeStorage == nil {
		http.Error(w, "Route storage not available", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		http.Error(w, "Missing route name", http.StatusBadRequest)
		return
	}

	points := h.navigation.RoutePoints()
	if len(points) == 0 {
		writeMessage(w, http.StatusConflict, "No waypoints to save")
		return
	}

	route, err := h.routeStorage.SaveRoute(r.Context(), name, points)
	if err != nil {
		h.logger.Error("Failed to save route", logger.Error(err))
		http.Error(w, "Failed to save route", http.StatusInternalServerError)
		return
	}
	h.logger.Info("Route saved via API",
		logger.String("id", route.ID),
		logger.String("name", route.Name),
		logger.Int("waypoints", route.Count))
	WriteJSON(w, http.StatusCreated, route)
}

// LoadRoute replaces the waypoints with a saved route
func (h *Handler) LoadRoute(w http.ResponseWriter, r *http.Request) {
	if h.routeStorage == nil {
		http.Error(w, "Route storage not available", http.StatusServiceUnavailable)
		return
	}
	id := chi.URLParam(r, "id")
	route, err := h.routeStorage.GetRoute(r.Context(), id)
	if errors.Is(err, sqlite.ErrRouteNotFound) {
		writeMessage(w, http.StatusNotFound, "Route not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get route", logger.Error(err), logger.String("id", id))
		http.Error(w, "Failed to load route", http.StatusInternalServerError)
		return
	}

	waypoints := h.navigation.LoadRoute(r.Context(), route.Points)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"route":     route.Name,
		"waypoints": waypoints,
		"count":     len(waypoints),
	})
}

// DeleteRoute removes a saved route
func (h *Handler) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	if h.routeStorage == nil {
		http.Error(w, "Route storage not available", http.StatusServiceUnavailable)
		return
	}
	err := h.routeStorage.DeleteRoute(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, sqlite.ErrRouteNotFound) {
		writeMessage(w, http.StatusNotFound, "Route not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to delete route", logger.Error(err))
		http.Error(w, "Failed to delete route", http.StatusInternalServerError)
		return
	}
	writeMessage(w, http.StatusOK, "Route deleted")
}

// GetNavigationEvents returns the persisted event log, newest first
func (h *Handler) GetNavigationEvents(w http.ResponseWriter, r *http.Request) {
	if h.eventStorage == nil {
		http.Error(w, "Event storage not available", http.StatusServiceUnavailable)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "Invalid limit (must be between 1 and 1000)", http.StatusBadRequest)
			return
		}
		limit = n
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "Invalid offset", http.StatusBadRequest)
			return
		}
		offset = n
	}

	events, err := h.eventStorage.GetEvents(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to get navigation events", logger.Error(err))
		http.Error(w, "Failed to get navigation events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*sqlite.EventRecord{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  limit,
		"offset": offset,
	})
}
