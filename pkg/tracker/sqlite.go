package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"onramp/pkg/core"
	"onramp/pkg/errors"
)

const (
	missionTable = "missions"
	stepTable    = "mission_steps"
)

// SQLiteTracker persists missions in a SQLite database. SQLite serializes
// writers, which satisfies the per-mission single-writer requirement.
type SQLiteTracker struct {
	db *sql.DB
}

// NewSQLiteTracker creates a SQLite-backed tracker and ensures schema.
func NewSQLiteTracker(db *sql.DB) (*SQLiteTracker, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if err := ensureMissionSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteTracker{db: db}, nil
}

func ensureMissionSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + missionTable + ` (
			id TEXT PRIMARY KEY,
			trace_id TEXT NOT NULL,
			employee_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			protocol_version INTEGER NOT NULL DEFAULT 0,
			verdict_json TEXT,
			reason TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			completed_at INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_` + missionTable + `_project ON ` + missionTable + `(project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_` + missionTable + `_mode ON ` + missionTable + `(mode);`,
		`CREATE TABLE IF NOT EXISTS ` + stepTable + ` (
			mission_id TEXT NOT NULL,
			step_index INTEGER NOT NULL,
			status TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (mission_id, step_index)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Create stores a new mission and returns its id.
func (t *SQLiteTracker) Create(ctx context.Context, mission *core.Mission) (string, error) {
	if mission == nil || mission.ID == "" {
		return "", errors.New(errors.CodeInvalidInput, "mission with id is required", nil)
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO `+missionTable+` (id, trace_id, employee_id, project_id, mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, mission.ID, mission.TraceID, mission.EmployeeID, mission.ProjectID, string(mission.Mode), mission.CreatedAt.UnixNano())
	if err != nil {
		return "", err
	}
	return mission.ID, nil
}

// Get returns a snapshot of the mission, or NOT_FOUND.
func (t *SQLiteTracker) Get(ctx context.Context, missionID string) (core.Mission, error) {
	row := t.db.QueryRowContext(ctx, `
		SELECT id, trace_id, employee_id, project_id, mode, protocol_version, verdict_json, reason, created_at, completed_at
		FROM `+missionTable+` WHERE id = ?
	`, missionID)

	var (
		mission     core.Mission
		mode        string
		verdictJSON sql.NullString
		createdAt   int64
		completedAt int64
	)
	err := row.Scan(
		&mission.ID,
		&mission.TraceID,
		&mission.EmployeeID,
		&mission.ProjectID,
		&mode,
		&mission.ProtocolVersion,
		&verdictJSON,
		&mission.Reason,
		&createdAt,
		&completedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Mission{}, errors.New(errors.CodeNotFound, "mission not found", nil).
				WithContext("mission_id", missionID)
		}
		return core.Mission{}, err
	}
	mission.Mode = core.Mode(mode)
	mission.CreatedAt = time.Unix(0, createdAt).UTC()
	if completedAt != 0 {
		mission.CompletedAt = time.Unix(0, completedAt).UTC()
	}
	if verdictJSON.Valid && verdictJSON.String != "" {
		var verdict core.Verdict
		if err := json.Unmarshal([]byte(verdictJSON.String), &verdict); err != nil {
			return core.Mission{}, err
		}
		mission.Verdict = &verdict
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT step_index, status, detail FROM `+stepTable+` WHERE mission_id = ? ORDER BY step_index ASC
	`, missionID)
	if err != nil {
		return core.Mission{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			result core.StepResult
			status string
		)
		if err := rows.Scan(&result.StepIndex, &status, &result.Detail); err != nil {
			return core.Mission{}, err
		}
		result.Status = core.StepStatus(status)
		mission.StepResults = append(mission.StepResults, result)
	}
	if err := rows.Err(); err != nil {
		return core.Mission{}, err
	}
	return mission, nil
}

// AppendStepResult appends one step outcome to the mission.
func (t *SQLiteTracker) AppendStepResult(ctx context.Context, missionID string, result core.StepResult) error {
	if err := t.exists(ctx, missionID); err != nil {
		return err
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO `+stepTable+` (mission_id, step_index, status, detail) VALUES (?, ?, ?, ?)
	`, missionID, result.StepIndex, string(result.Status), result.Detail)
	return err
}

// SetMode transitions the mission mode, stamping completion on terminal modes.
func (t *SQLiteTracker) SetMode(ctx context.Context, missionID string, mode core.Mode, reason string) error {
	completedAt := int64(0)
	if mode.Terminal() {
		completedAt = time.Now().UTC().UnixNano()
	}
	query := `UPDATE ` + missionTable + ` SET mode = ?,
		completed_at = CASE WHEN ? != 0 THEN ? ELSE completed_at END,
		reason = CASE WHEN ? != '' THEN ? ELSE reason END
		WHERE id = ?`
	res, err := t.db.ExecContext(ctx, query, string(mode), completedAt, completedAt, reason, reason, missionID)
	if err != nil {
		return err
	}
	return requireRow(res, missionID)
}

// SetVerdict records the assignment checker's verdict.
func (t *SQLiteTracker) SetVerdict(ctx context.Context, missionID string, verdict core.Verdict) error {
	raw, err := json.Marshal(verdict)
	if err != nil {
		return err
	}
	res, err := t.db.ExecContext(ctx, `
		UPDATE `+missionTable+` SET verdict_json = ? WHERE id = ?
	`, string(raw), missionID)
	if err != nil {
		return err
	}
	return requireRow(res, missionID)
}

// BindProtocol records the protocol version the mission executes against.
func (t *SQLiteTracker) BindProtocol(ctx context.Context, missionID string, version int) error {
	res, err := t.db.ExecContext(ctx, `
		UPDATE `+missionTable+` SET protocol_version = ? WHERE id = ?
	`, version, missionID)
	if err != nil {
		return err
	}
	return requireRow(res, missionID)
}

func (t *SQLiteTracker) exists(ctx context.Context, missionID string) error {
	var one int
	err := t.db.QueryRowContext(ctx, `SELECT 1 FROM `+missionTable+` WHERE id = ?`, missionID).Scan(&one)
	if err == sql.ErrNoRows {
		return errors.New(errors.CodeNotFound, "mission not found", nil).
			WithContext("mission_id", missionID)
	}
	return err
}

func requireRow(res sql.Result, missionID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New(errors.CodeNotFound, "mission not found", nil).
			WithContext("mission_id", missionID)
	}
	return nil
}
