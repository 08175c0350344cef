package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yegors/co-flight/internal/aircraft"
	"github.com/yegors/co-flight/internal/audio"
	"github.com/yegors/co-flight/internal/camera"
	"github.com/yegors/co-flight/internal/input"
	"github.com/yegors/co-flight/internal/navigation"
	"github.com/yegors/co-flight/internal/simulation"
	"github.com/yegors/co-flight/internal/storage/sqlite"
	"github.com/yegors/co-flight/internal/terrain"
	"github.com/yegors/co-flight/pkg/logger"
)

const groundHeight = 120

type testAPI struct {
	server *httptest.Server
	nav    *navigation.Manager
}

func newTestAPI(t *testing.T, staticDir string) *testAPI {
	t.Helper()
	log := logger.NewNop()
	ground := terrain.Flat{Height: groundHeight}

	registry, err := aircraft.NewRegistry(aircraft.DefaultTypes())
	if err != nil {
		t.Fatalf("NewRegistry error = %v", err)
	}

	store, err := sqlite.New(filepath.Join(t.TempDir(), "api.db"), log)
	if err != nil {
		t.Fatalf("sqlite.New error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	events := sqlite.NewEventStorage(store.GetDB(), "test-session", log)
	nav := navigation.NewManager(navigation.DefaultConfig(), ground, nil, log)
	nav.Subscribe(events.Subscriber())

	sim, err := simulation.New(simulation.DefaultConfig(), simulation.Deps{
		Registry:   registry,
		Terrain:    terrain.NewSampler(ground, 0, log),
		Navigation: nav,
		Audio:      audio.NewFeedback(audio.Discard{}, log),
		Camera:     camera.NewController(camera.DefaultConfig()),
		Input:      input.NewMapper(input.DefaultBindings()),
	}, log)
	if err != nil {
		t.Fatalf("simulation.New error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sim.Run(ctx)
	}()

	h := NewHandler(Options{
		Simulator:    sim,
		Navigation:   nav,
		RouteStorage: sqlite.NewRouteStorage(store.GetDB(), log),
		EventStorage: events,
		Landmarks:    navigation.DefaultLandmarks(),
		Version:      "test",
	}, log)
	router := NewRouter(h, RouterOptions{StaticDir: staticDir, MetricsPath: "/metrics"}, log)

	srv := httptest.NewServer(router.Routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return &testAPI{server: srv, nav: nav}
}

func (a *testAPI) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest error = %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(raw)
}

func (a *testAPI) decode(t *testing.T, method, path, body string, wantStatus int, v any) {
	t.Helper()
	status, raw := a.do(t, method, path, body)
	if status != wantStatus {
		t.Fatalf("%s %s status = %d, want %d (body %q)", method, path, status, wantStatus, raw)
	}
	if v == nil {
		return
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func TestAddWaypointValidation(t *testing.T) {
	api := newTestAPI(t, "")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"malformed", `{"lon":`, http.StatusBadRequest, "Invalid JSON"},
		{"missing lat", `{"lon":2}`, http.StatusBadRequest, "Missing lon or lat"},
		{"latitude too high", `{"lon":2,"lat":95}`, http.StatusBadRequest, "Invalid latitude (must be between -90 and 90)"},
		{"latitude too low", `{"lon":2,"lat":-90.5}`, http.StatusBadRequest, "Invalid latitude (must be between -90 and 90)"},
		{"longitude out of range", `{"lon":181,"lat":0}`, http.StatusBadRequest, "Invalid longitude (must be between -180 and 180)"},
		{"altitude not a number", `{"lon":2,"lat":48,"altitude":"abc"}`, http.StatusBadRequest, "Invalid altitude (must be a number)"},
		{"altitude boolean", `{"lon":2,"lat":48,"altitude":true}`, http.StatusBadRequest, "Invalid altitude (must be a number)"},
		{"altitude hex float", `{"lon":2,"lat":48,"altitude":"0x1p4"}`, http.StatusBadRequest, "Invalid altitude (must be a number)"},
		{"altitude infinity", `{"lon":2,"lat":48,"altitude":"Inf"}`, http.StatusBadRequest, "Invalid altitude (must be a number)"},
		{"altitude overflow", `{"lon":2,"lat":48,"altitude":1e400}`, http.StatusBadRequest, "Invalid altitude (must be a number)"},
		{"altitude quoted null", `{"lon":2,"lat":48,"altitude":"null"}`, http.StatusBadRequest, "Invalid altitude (must be a number)"},
		{"valid", `{"lon":2,"lat":48,"altitude":500,"name":"Paris"}`, http.StatusCreated, ""},
		{"numeric string altitude", `{"lon":-180,"lat":90,"altitude":"750"}`, http.StatusCreated, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := api.do(t, http.MethodPost, "/api/v1/waypoints", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", status, tt.wantStatus, body)
			}
			if tt.wantBody != "" && strings.TrimSpace(body) != tt.wantBody {
				t.Errorf("body = %q, want %q", strings.TrimSpace(body), tt.wantBody)
			}
		})
	}

	got := api.nav.Waypoints()
	if len(got) != 2 {
		t.Fatalf("waypoints = %d, want 2", len(got))
	}
	if got[0].Name != "Paris" || got[0].Altitude != groundHeight+500 {
		t.Errorf("first waypoint = %q at %v", got[0].Name, got[0].Altitude)
	}
	if got[1].Altitude != groundHeight+750 {
		t.Errorf("second waypoint altitude = %v, want %v", got[1].Altitude, groundHeight+750)
	}
}

func TestWaypointDefaultClearance(t *testing.T) {
	api := newTestAPI(t, "")

	var wp navigation.Waypoint
	api.decode(t, http.MethodPost, "/api/v1/waypoints", `{"lon":10,"lat":10}`, http.StatusCreated, &wp)
	if wp.Altitude != groundHeight+1000 || wp.Name != "Waypoint 1" {
		t.Errorf("waypoint = %q at %v", wp.Name, wp.Altitude)
	}
}

func TestNavigationLifecycle(t *testing.T) {
	api := newTestAPI(t, "")

	var msg messageResponse
	api.decode(t, http.MethodPost, "/api/v1/navigation/start", "", http.StatusConflict, &msg)
	if msg.Success || msg.Message != "No waypoints to navigate" {
		t.Errorf("empty start = %+v", msg)
	}

	var wp navigation.Waypoint
	api.decode(t, http.MethodPost, "/api/v1/waypoints/landmark", `{"name":"eiffel tower"}`, http.StatusCreated, &wp)
	if wp.Name != "Eiffel Tower" {
		t.Errorf("landmark waypoint = %q", wp.Name)
	}
	api.decode(t, http.MethodPost, "/api/v1/waypoints/landmark", `{"name":"Atlantis"}`, http.StatusNotFound, nil)

	api.decode(t, http.MethodPost, "/api/v1/navigation/start", "", http.StatusOK, nil)
	var nav struct {
		Navigating bool `json:"navigating"`
	}
	api.decode(t, http.MethodGet, "/api/v1/navigation", "", http.StatusOK, &nav)
	if !nav.Navigating {
		t.Error("navigation not active after start")
	}

	api.decode(t, http.MethodDelete, "/api/v1/waypoints/waypoint_missing", "", http.StatusNotFound, nil)
	api.decode(t, http.MethodDelete, "/api/v1/waypoints/"+wp.ID, "", http.StatusOK, nil)

	var list struct {
		Count      int  `json:"count"`
		Navigating bool `json:"navigating"`
	}
	api.decode(t, http.MethodGet, "/api/v1/waypoints", "", http.StatusOK, &list)
	if list.Count != 0 || list.Navigating {
		t.Errorf("waypoints after removal = %+v", list)
	}

	var events struct {
		Events []sqlite.EventRecord `json:"events"`
	}
	api.decode(t, http.MethodGet, "/api/v1/navigation/events?limit=10", "", http.StatusOK, &events)
	if len(events.Events) == 0 || events.Events[len(events.Events)-1].Type != "waypoint_added" {
		t.Errorf("event log = %+v", events.Events)
	}
	api.decode(t, http.MethodGet, "/api/v1/navigation/events?limit=0", "", http.StatusBadRequest, nil)
}

func TestRoutes(t *testing.T) {
	api := newTestAPI(t, "")

	api.decode(t, http.MethodPost, "/api/v1/routes", `{"name":"empty"}`, http.StatusConflict, nil)

	api.decode(t, http.MethodPost, "/api/v1/waypoints", `{"lon":1,"lat":1,"altitude":300,"name":"A"}`, http.StatusCreated, nil)
	api.decode(t, http.MethodPost, "/api/v1/waypoints", `{"lon":2,"lat":2,"altitude":400,"name":"B"}`, http.StatusCreated, nil)

	api.decode(t, http.MethodPost, "/api/v1/routes", `{"name":" "}`, http.StatusBadRequest, nil)

	var saved sqlite.Route
	api.decode(t, http.MethodPost, "/api/v1/routes", `{"name":"Test route"}`, http.StatusCreated, &saved)
	if saved.Count != 2 {
		t.Errorf("saved count = %d, want 2", saved.Count)
	}

	api.decode(t, http.MethodDelete, "/api/v1/waypoints", "", http.StatusOK, nil)

	var loaded struct {
		Count int `json:"count"`
	}
	api.decode(t, http.MethodPost, "/api/v1/routes/"+saved.ID+"/load", "", http.StatusOK, &loaded)
	if loaded.Count != 2 {
		t.Errorf("loaded count = %d, want 2", loaded.Count)
	}
	got := api.nav.Waypoints()
	if len(got) != 2 || got[1].Name != "B" || got[1].Altitude != groundHeight+400 {
		t.Errorf("waypoints after load = %+v", got)
	}

	var list struct {
		Count int `json:"count"`
	}
	api.decode(t, http.MethodGet, "/api/v1/routes", "", http.StatusOK, &list)
	if list.Count != 1 {
		t.Errorf("route count = %d, want 1", list.Count)
	}

	api.decode(t, http.MethodPost, "/api/v1/routes/missing/load", "", http.StatusNotFound, nil)
	api.decode(t, http.MethodDelete, "/api/v1/routes/"+saved.ID, "", http.StatusOK, nil)
	api.decode(t, http.MethodDelete, "/api/v1/routes/"+saved.ID, "", http.StatusNotFound, nil)
}

func TestSimulationEndpoints(t *testing.T) {
	api := newTestAPI(t, "")

	var tel simulation.Telemetry
	api.decode(t, http.MethodPost, "/api/v1/simulation/relocate", `{"lon":139.7454,"lat":35.6586}`, http.StatusOK, &tel)
	if tel.State.Speed != aircraft.RelocateSpeed || tel.ViewMode != simulation.ViewFlight {
		t.Errorf("relocated telemetry = speed %v, view %s", tel.State.Speed, tel.ViewMode)
	}
	status, body := api.do(t, http.MethodPost, "/api/v1/simulation/relocate", `{"lon":0,"lat":-91}`)
	if status != http.StatusBadRequest || !strings.HasPrefix(body, "Invalid latitude") {
		t.Errorf("bad relocate = %d %q", status, body)
	}

	api.decode(t, http.MethodPost, "/api/v1/simulation/view-mode", `{"mode":"orbit"}`, http.StatusBadRequest, nil)
	var mode map[string]string
	api.decode(t, http.MethodPost, "/api/v1/simulation/view-mode", `{"mode":"global"}`, http.StatusOK, &mode)
	if mode["mode"] != "GLOBAL" {
		t.Errorf("mode = %v", mode)
	}

	api.decode(t, http.MethodPost, "/api/v1/aircraft/load", `{"type":"B52"}`, http.StatusNotFound, nil)
	var typ aircraft.Type
	api.decode(t, http.MethodPost, "/api/v1/aircraft/load", `{"type":"F22"}`, http.StatusOK, &typ)
	if typ.Params.MaxSpeed != 650 {
		t.Errorf("F22 max speed = %v", typ.Params.MaxSpeed)
	}

	var types struct {
		Count   int    `json:"count"`
		Current string `json:"current"`
	}
	api.decode(t, http.MethodGet, "/api/v1/aircraft/types", "", http.StatusOK, &types)
	if types.Count != 3 || types.Current != "F22" {
		t.Errorf("types = %+v", types)
	}

	api.decode(t, http.MethodPost, "/api/v1/simulation/start", "", http.StatusOK, nil)
	api.decode(t, http.MethodPost, "/api/v1/simulation/start", "", http.StatusOK, nil)
	api.decode(t, http.MethodPost, "/api/v1/simulation/stop", "", http.StatusOK, nil)
	api.decode(t, http.MethodGet, "/api/v1/state", "", http.StatusOK, &tel)
	if tel.Running {
		t.Error("still running after stop")
	}

	var health map[string]any
	api.decode(t, http.MethodGet, "/api/v1/health", "", http.StatusOK, &health)
	if health["status"] != "ok" || health["version"] != "test" {
		t.Errorf("health = %v", health)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, "")

	api.decode(t, http.MethodGet, "/api/v1/landmarks", "", http.StatusOK, nil)
	status, body := api.do(t, http.MethodGet, "/metrics", "")
	if status != http.StatusOK {
		t.Fatalf("metrics status = %d", status)
	}
	if !strings.Contains(body, `path="/api/v1/landmarks"`) {
		t.Error("request metrics missing the route pattern label")
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>flight</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := NewStaticFileHandler(dir, logger.NewNop())

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/", http.StatusOK, "<html>flight</html>"},
		{"/app.js", http.StatusOK, "console.log(1)"},
		{"/routes/saved", http.StatusOK, "<html>flight</html>"},
		{"/missing.css", http.StatusNotFound, ""},
		// ServeFile refuses any path with a dot-dot element
		{"/../../etc/passwd", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.URL.Path = tt.path
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if rec.Code == http.StatusOK && rec.Header().Get("Cache-Control") == "" {
				t.Error("missing Cache-Control header")
			}
		})
	}
}
