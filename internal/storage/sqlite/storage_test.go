package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/yegors/co-flight/internal/navigation"
	"github.com/yegors/co-flight/pkg/logger"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRouteRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	routes := NewRouteStorage(s.GetDB(), logger.NewNop())
	ctx := context.Background()

	points := []navigation.RoutePoint{
		{Name: "Eiffel Tower", Longitude: 2.2945, Latitude: 48.8584, Clearance: 1000},
		{Name: "", Longitude: -0.1246, Latitude: 51.5007, Clearance: 800},
	}

	saved, err := routes.SaveRoute(ctx, "Paris to London", points)
	if err != nil {
		t.Fatalf("SaveRoute error = %v", err)
	}

	got, err := routes.GetRoute(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetRoute error = %v", err)
	}
	if diff := cmp.Diff(points, got.Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
	if got.Name != "Paris to London" || got.Count != 2 {
		t.Errorf("route = %q with %d points", got.Name, got.Count)
	}
	if !got.CreatedAt.Equal(saved.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, saved.CreatedAt)
	}
}

func TestListRoutesNewestFirst(t *testing.T) {
	s := newTestStorage(t)
	routes := NewRouteStorage(s.GetDB(), logger.NewNop())
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		at := base.Add(time.Duration(i) * time.Second)
		routes.now = func() time.Time { return at }
		if _, err := routes.SaveRoute(ctx, name, []navigation.RoutePoint{{Longitude: 1, Latitude: 1}}); err != nil {
			t.Fatalf("SaveRoute error = %v", err)
		}
	}

	list, err := routes.ListRoutes(ctx)
	if err != nil {
		t.Fatalf("ListRoutes error = %v", err)
	}
	var names []string
	for _, r := range list {
		names = append(names, r.Name)
		if r.Count != 1 {
			t.Errorf("route %s count = %d, want 1", r.Name, r.Count)
		}
	}
	if diff := cmp.Diff([]string{"third", "second", "first"}, names); diff != "" {
		t.Errorf("order mismatch:\n%s", diff)
	}
}

func TestRouteNotFound(t *testing.T) {
	s := newTestStorage(t)
	routes := NewRouteStorage(s.GetDB(), logger.NewNop())
	ctx := context.Background()

	if _, err := routes.GetRoute(ctx, "missing"); !errors.Is(err, ErrRouteNotFound) {
		t.Errorf("GetRoute error = %v, want ErrRouteNotFound", err)
	}
	if err := routes.DeleteRoute(ctx, "missing"); !errors.Is(err, ErrRouteNotFound) {
		t.Errorf("DeleteRoute error = %v, want ErrRouteNotFound", err)
	}

	saved, _ := routes.SaveRoute(ctx, "tmp", nil)
	if err := routes.DeleteRoute(ctx, saved.ID); err != nil {
		t.Fatalf("DeleteRoute error = %v", err)
	}
	if _, err := routes.GetRoute(ctx, saved.ID); !errors.Is(err, ErrRouteNotFound) {
		t.Errorf("deleted route still readable: %v", err)
	}
}

func TestEventLog(t *testing.T) {
	s := newTestStorage(t)
	events := NewEventStorage(s.GetDB(), "session-1", logger.NewNop())
	ctx := context.Background()

	store := events.Subscriber()
	store(navigation.NavigationStarted{TotalWaypoints: 3})
	store(navigation.WaypointReached{Waypoint: navigation.Waypoint{ID: "waypoint_a", Name: "A"}, Index: 0, Remaining: 2})

	records, err := events.GetEvents(ctx, 10, 0)
	if err != nil {
		t.Fatalf("GetEvents error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}

	if records[0].Type != "waypoint_reached" || records[1].Type != "navigation_started" {
		t.Errorf("types = %s, %s", records[0].Type, records[1].Type)
	}
	if records[0].SessionID != "session-1" {
		t.Errorf("session = %q", records[0].SessionID)
	}

	var started navigation.NavigationStarted
	if err := json.Unmarshal(records[1].Payload, &started); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if started.TotalWaypoints != 3 {
		t.Errorf("payload total = %d, want 3", started.TotalWaypoints)
	}

	page, _ := events.GetEvents(ctx, 1, 1)
	if len(page) != 1 || page[0].Type != "navigation_started" {
		t.Errorf("paged records = %+v", page)
	}
}
