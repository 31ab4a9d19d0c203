package protocol

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"onramp/pkg/core"
	"onramp/pkg/errors"
)

const protocolTable = "protocols"

// SQLiteStore persists protocols in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed protocol store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if err := ensureProtocolSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func ensureProtocolSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ` + protocolTable + ` (
			project_id TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			steps_json TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	return err
}

// Get returns the protocol for a project, or NOT_FOUND.
func (s *SQLiteStore) Get(ctx context.Context, projectID string) (core.Protocol, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version, steps_json, created_at FROM `+protocolTable+` WHERE project_id = ?
	`, projectID)

	var (
		version   int
		stepsJSON string
		createdAt int64
	)
	if err := row.Scan(&version, &stepsJSON, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return core.Protocol{}, errors.New(errors.CodeNotFound, "protocol not found", nil).
				WithContext("project_id", projectID)
		}
		return core.Protocol{}, err
	}

	var steps []core.StepSpec
	if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
		return core.Protocol{}, err
	}
	return core.Protocol{
		ProjectID: projectID,
		Version:   version,
		Steps:     steps,
		CreatedAt: time.Unix(0, createdAt).UTC(),
	}, nil
}

// Create stores version 1 of a protocol. The primary key on project_id
// makes concurrent creates first-writer-wins.
func (s *SQLiteStore) Create(ctx context.Context, projectID string, steps []core.StepSpec) (core.Protocol, error) {
	if projectID == "" {
		return core.Protocol{}, errors.New(errors.CodeInvalidInput, "project id is required", nil)
	}
	stepsJSON, err := json.Marshal(core.CloneSteps(steps))
	if err != nil {
		return core.Protocol{}, err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO `+protocolTable+` (project_id, version, steps_json, created_at)
		VALUES (?, 1, ?, ?)
	`, projectID, string(stepsJSON), now.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return core.Protocol{}, errors.New(errors.CodeAlreadyExists, "protocol already exists", err).
				WithContext("project_id", projectID)
		}
		return core.Protocol{}, err
	}
	return core.Protocol{ProjectID: projectID, Version: 1, Steps: core.CloneSteps(steps), CreatedAt: now}, nil
}

// Replace writes a new protocol version for an existing project.
func (s *SQLiteStore) Replace(ctx context.Context, projectID string, steps []core.StepSpec) (core.Protocol, error) {
	stepsJSON, err := json.Marshal(core.CloneSteps(steps))
	if err != nil {
		return core.Protocol{}, err
	}
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Protocol{}, err
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRowContext(ctx, `
		SELECT version FROM `+protocolTable+` WHERE project_id = ?
	`, projectID).Scan(&version); err != nil {
		if err == sql.ErrNoRows {
			return core.Protocol{}, errors.New(errors.CodeNotFound, "protocol not found", nil).
				WithContext("project_id", projectID)
		}
		return core.Protocol{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE `+protocolTable+` SET version = ?, steps_json = ?, created_at = ? WHERE project_id = ?
	`, version+1, string(stepsJSON), now.UnixNano(), projectID); err != nil {
		return core.Protocol{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Protocol{}, err
	}
	return core.Protocol{ProjectID: projectID, Version: version + 1, Steps: core.CloneSteps(steps), CreatedAt: now}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}
