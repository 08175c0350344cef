package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yegors/co-flight/internal/navigation"
	"github.com/yegors/co-flight/pkg/logger"
)

// ErrRouteNotFound is returned for an unknown route id
var ErrRouteNotFound = errors.New("route not found")

// Route is a saved, named list of route points
type Route struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	CreatedAt time.Time               `json:"created_at"`
	Points    []navigation.RoutePoint `json:"points,omitempty"`
	Count     int                     `json:"count"`
}

// RouteStorage persists routes
type RouteStorage struct {
	db     *sql.DB
	logger *logger.Logger
	now    func() time.Time
}

// NewRouteStorage creates a route store on an open database
func NewRouteStorage(db *sql.DB, logger *logger.Logger) *RouteStorage {
	return &RouteStorage{
		db:     db,
		logger: logger.Named("sqlite-routes"),
		now:    time.Now,
	}
}

// SaveRoute stores points under a new route id
func (s *RouteStorage) SaveRoute(ctx context.Context, name string, points []navigation.RoutePoint) (*Route, error) {
	route := &Route{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: s.now().UTC(),
		Points:    points,
		Count:     len(points),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO routes (id, name, created_at) VALUES (?, ?, ?)`,
		route.ID, route.Name, route.CreatedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to insert route: %w", err)
	}

	for i, p := range points {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO route_waypoints (route_id, seq, name, lon, lat, clearance) VALUES (?, ?, ?, ?, ?, ?)`,
			route.ID, i, p.Name, p.Longitude, p.Latitude, p.Clearance)
		if err != nil {
			return nil, fmt.Errorf("failed to insert route waypoint %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit route: %w", err)
	}

	s.logger.Info("Saved route",
		String("id", route.ID),
		String("name", route.Name),
		Int("waypoints", len(points)))

	return route, nil
}

// ListRoutes returns every route, newest first, without points
func (s *RouteStorage) ListRoutes(ctx context.Context) ([]*Route, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.created_at, COUNT(w.seq)
		FROM routes r
		LEFT JOIN route_waypoints w ON w.route_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	var routes []*Route
	for rows.Next() {
		var route Route
		var createdAt string
		if err := rows.Scan(&route.ID, &route.Name, &createdAt, &route.Count); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		route.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		routes = append(routes, &route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating routes: %w", err)
	}

	return routes, nil
}

// GetRoute returns a route with its points in order
func (s *RouteStorage) GetRoute(ctx context.Context, id string) (*Route, error) {
	var route Route
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM routes WHERE id = ?`, id,
	).Scan(&route.ID, &route.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query route: %w", err)
	}
	route.CreatedAt, _ = time.Parse(timeLayout, createdAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, lon, lat, clearance FROM route_waypoints WHERE route_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query route waypoints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p navigation.RoutePoint
		var name sql.NullString
		if err := rows.Scan(&name, &p.Longitude, &p.Latitude, &p.Clearance); err != nil {
			return nil, fmt.Errorf("failed to scan route waypoint: %w", err)
		}
		p.Name = name.String
		route.Points = append(route.Points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating route waypoints: %w", err)
	}
	route.Count = len(route.Points)

	return &route, nil
}

// DeleteRoute removes a route and its points
func (s *RouteStorage) DeleteRoute(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM routes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete route: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRouteNotFound, id)
	}
	return nil
}
