package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/yegors/co-flight/pkg/logger"
	_ "modernc.org/sqlite"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

// timeLayout is fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Storage owns the SQLite connection shared by the route and event stores
type Storage struct {
	db     *sql.DB
	logger *logger.Logger
}

// New opens (or creates) the database at dbPath and applies the schema
func New(dbPath string, log *logger.Logger) (*Storage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []struct {
		stmt string
		name string
	}{
		{"PRAGMA journal_mode=WAL", "journal mode"},
		{"PRAGMA synchronous=NORMAL", "synchronous mode"},
		{"PRAGMA busy_timeout=5000", "busy timeout"},
		{"PRAGMA cache_size=10000", "cache size"},
		{"PRAGMA foreign_keys=ON", "foreign keys"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %s: %w", p.name, err)
		}
	}

	if err := initDatabase(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{
		db:     db,
		logger: storageLogger,
	}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetDB returns the database connection
func (s *Storage) GetDB() *sql.DB {
	return s.db
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS routes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create routes table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS route_waypoints (
			route_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			name TEXT,
			lon REAL NOT NULL,
			lat REAL NOT NULL,
			clearance REAL NOT NULL, -- meters above terrain
			PRIMARY KEY (route_id, seq),
			FOREIGN KEY (route_id) REFERENCES routes(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create route_waypoints table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS navigation_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			type TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create navigation_events table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_navigation_events_created_at ON navigation_events(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create index on navigation_events.created_at: %w", err)
	}

	return nil
}
