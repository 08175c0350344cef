package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yegors/co-flight/internal/aircraft"
	"github.com/yegors/co-flight/internal/navigation"
	"github.com/yegors/co-flight/internal/simulation"
	"github.com/yegors/co-flight/internal/storage/sqlite"
	"github.com/yegors/co-flight/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	simulator        *simulation.Simulator
	navigation       *navigation.Manager
	routeStorage     *sqlite.RouteStorage // optional
	eventStorage     *sqlite.EventStorage // optional
	landmarks        []navigation.Landmark
	defaultClearance float64
	version          string
	startedAt        time.Time
	logger           *logger.Logger
}

// Options are the collaborators a Handler serves
type Options struct {
	Simulator        *simulation.Simulator
	Navigation       *navigation.Manager
	RouteStorage     *sqlite.RouteStorage
	EventStorage     *sqlite.EventStorage
	Landmarks        []navigation.Landmark
	DefaultClearance float64
	Version          string
}

// NewHandler creates a new API handler
func NewHandler(opts Options, logger *logger.Logger) *Handler {
	if opts.DefaultClearance <= 0 {
		opts.DefaultClearance = navigation.DefaultConfig().DefaultClearance
	}
	return &Handler{
		simulator:        opts.Simulator,
		navigation:       opts.Navigation,
		routeStorage:     opts.RouteStorage,
		eventStorage:     opts.EventStorage,
		landmarks:        opts.Landmarks,
		defaultClearance: opts.DefaultClearance,
		version:          opts.Version,
		startedAt:        time.Now(),
		logger:           logger.Named("api-handler"),
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, messageResponse{Success: status < 400, Message: message})
}

// decodeJSON decodes the request body, writing a 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// coordinateProblem returns a human readable reason for invalid input,
// or "" when lon/lat are usable
func coordinateProblem(lon, lat float64) string {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return "Invalid latitude (must be between -90 and 90)"
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return "Invalid longitude (must be between -180 and 180)"
	}
	return ""
}

// parseAltitude accepts a JSON number or a string holding one. A missing or
// null value returns fallback.
func parseAltitude(raw json.RawMessage, fallback float64) (float64, bool) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return fallback, true
	}
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = strings.TrimSpace(unquoted)
	}
	// ParseFloat alone would also take hex floats and Inf
	if !isJSONNumber(text) {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isJSONNumber(text string) bool {
	if text == "" || (text[0] != '-' && (text[0] < '0' || text[0] > '9')) {
		return false
	}
	return json.Valid([]byte(text))
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	t := h.simulator.Telemetry()
	response := map[string]interface{}{
		"status":   "ok",
		"version":  h.version,
		"uptime":   time.Since(h.startedAt).Round(time.Second).String(),
		"running":  t.Running,
		"tick":     t.Tick,
		"aircraft": t.Aircraft,
	}
	WriteJSON(w, http.StatusOK, response)
}

// GetState returns the last telemetry frame
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.simulator.Telemetry())
}

// StartSimulation resumes the tick loop
func (h *Handler) StartSimulation(w http.ResponseWriter, r *http.Request) {
	if err := h.simulator.Start(r.Context()); err != nil {
		h.simulationError(w, "start", err)
		return
	}
	writeMessage(w, http.StatusOK, "Simulation started")
}

// StopSimulation pauses the tick loop
func (h *Handler) StopSimulation(w http.ResponseWriter, r *http.Request) {
	if err := h.simulator.Stop(r.Context()); err != nil {
		h.simulationError(w, "stop", err)
		return
	}
	writeMessage(w, http.StatusOK, "Simulation stopped")
}

// Relocate moves the aircraft above a new point
func (h *Handler) Relocate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lon *float64 `json:"lon"`
		Lat *float64 `json:"lat"`
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

	if _, err := h.simulator.Relocate(r.Context(), *req.Lon, *req.Lat); err != nil {
		h.simulationError(w, "relocate", err)
		return
	}

	h.logger.Info("Aircraft relocated via API",
		logger.Float64("lon", *req.Lon),
		logger.Float64("lat", *req.Lat))
	WriteJSON(w, http.StatusOK, h.simulator.Telemetry())
}

// SetViewMode switches between FLIGHT and GLOBAL
func (h *Handler) SetViewMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	mode, err := simulation.ParseViewMode(req.Mode)
	if err != nil {
		http.Error(w, "Invalid mode (must be FLIGHT or GLOBAL)", http.StatusBadRequest)
		return
	}
	if err := h.simulator.SetViewMode(r.Context(), mode); err != nil {
		h.simulationError(w, "set view mode", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"mode": string(mode)})
}

// GetAircraftTypes lists the configured aircraft
func (h *Handler) GetAircraftTypes(w http.ResponseWriter, r *http.Request) {
	types := h.simulator.AircraftTypes()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"types":   types,
		"count":   len(types),
		"current": h.simulator.Telemetry().Aircraft,
	})
}

// LoadAircraft swaps the flown aircraft type
func (h *Handler) LoadAircraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Type) == "" {
		http.Error(w, "Missing aircraft type", http.StatusBadRequest)
		return
	}

	typ, err := h.simulator.LoadAircraft(r.Context(), req.Type)
	if errors.Is(err, aircraft.ErrUnknownAircraft) {
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("Unknown aircraft type %q", req.Type))
		return
	}
	if err != nil {
		h.simulationError(w, "load aircraft", err)
		return
	}
	WriteJSON(w, http.StatusOK, typ)
}

// GetLandmarks lists the landmark presets
func (h *Handler) GetLandmarks(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"landmarks": h.landmarks,
		"count":     len(h.landmarks),
	})
}

func (h *Handler) simulationError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, simulation.ErrNotRunning) {
		writeMessage(w, http.StatusServiceUnavailable, "Simulation is not running")
		return
	}
	h.logger.Error("Simulation command failed", logger.String("op", op), logger.Error(err))
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
