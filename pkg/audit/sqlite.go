package audit

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"

	"onramp/pkg/core"
)

// SQLiteStore persists mission events in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed event store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureAuditSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Record stores a single event.
func (s *SQLiteStore) Record(ctx context.Context, event core.Event) error {
	payload, err := encodePayload(event.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mission_events (
			mission_id, trace_id, event_type, payload_json, created_at
		) VALUES (?, ?, ?, ?, ?)
	`,
		event.MissionID,
		event.TraceID,
		string(event.Type),
		string(payload),
		normalizeTime(event.Timestamp),
	)
	return err
}

// List returns events matching the filter in record order.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]core.Event, error) {
	query := `
		SELECT mission_id, trace_id, event_type, payload_json, created_at
		FROM mission_events
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.MissionID != "" {
		addFilter("mission_id = ?", filter.MissionID)
	}
	if filter.TraceID != "" {
		addFilter("trace_id = ?", filter.TraceID)
	}
	if filter.Type != "" {
		addFilter("event_type = ?", string(filter.Type))
	}
	query += where + " ORDER BY created_at ASC, rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []core.Event
	for rows.Next() {
		var (
			event       core.Event
			eventType   string
			payloadJSON string
			created     sql.NullTime
		)
		if err := rows.Scan(
			&event.MissionID,
			&event.TraceID,
			&eventType,
			&payloadJSON,
			&created,
		); err != nil {
			return nil, err
		}
		event.Type = core.EventType(eventType)
		if payload, err := decodePayload([]byte(payloadJSON)); err == nil {
			event.Payload = payload
		}
		if created.Valid {
			event.Timestamp = created.Time
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func ensureAuditSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS mission_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mission_id TEXT NOT NULL,
			trace_id TEXT,
			event_type TEXT NOT NULL,
			payload_json TEXT,
			created_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_mission_events_mission ON mission_events(mission_id);
		CREATE INDEX IF NOT EXISTS idx_mission_events_type ON mission_events(event_type);
	`)
	return err
}
