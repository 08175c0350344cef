package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yegors/co-flight/internal/navigation"
	"github.com/yegors/co-flight/pkg/logger"
)

// EventRecord is one persisted navigation event
type EventRecord struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"timestamp"`
}

// EventStorage keeps a log of navigation events
type EventStorage struct {
	db        *sql.DB
	sessionID string
	logger    *logger.Logger
	now       func() time.Time
}

// NewEventStorage creates an event log tagged with sessionID
func NewEventStorage(db *sql.DB, sessionID string, logger *logger.Logger) *EventStorage {
	return &EventStorage{
		db:        db,
		sessionID: sessionID,
		logger:    logger.Named("sqlite-events"),
		now:       time.Now,
	}
}

// StoreEvent appends an event to the log
func (s *EventStorage) StoreEvent(ctx context.Context, ev navigation.Event) (int64, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("failed to encode event payload: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO navigation_events (session_id, type, payload, created_at) VALUES (?, ?, ?, ?)`,
		s.sessionID, ev.EventType(), string(payload), s.now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to insert navigation event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// Subscriber returns a navigation subscriber that stores every event
func (s *EventStorage) Subscriber() func(navigation.Event) {
	return func(ev navigation.Event) {
		if _, err := s.StoreEvent(context.Background(), ev); err != nil {
			s.logger.Error("Failed to store navigation event",
				String("type", ev.EventType()),
				Error(err))
		}
	}
}

// GetEvents returns events newest first
func (s *EventStorage) GetEvents(ctx context.Context, limit, offset int) ([]*EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, type, payload, created_at
		FROM navigation_events
		ORDER BY id DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query navigation events: %w", err)
	}
	defer rows.Close()

	records := []*EventRecord{}
	for rows.Next() {
		var r EventRecord
		var payload, createdAt string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Type, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan navigation event: %w", err)
		}
		r.Payload = json.RawMessage(payload)
		r.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating navigation events: %w", err)
	}

	return records, nil
}
