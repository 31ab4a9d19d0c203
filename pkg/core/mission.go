package core

import (
	"time"

	"github.com/google/uuid"
)

// Mode describes the lifecycle state of a mission's workflow.
type Mode string

const (
	ModePending          Mode = "pending"
	ModeProtocolCreation Mode = "protocol_creation"
	ModeExecution        Mode = "execution"
	ModeBlocked          Mode = "blocked"
	ModeCompleted        Mode = "completed"
	ModeFailed           Mode = "failed"
)

// Terminal reports whether the mode admits no further transitions.
func (m Mode) Terminal() bool {
	return m == ModeCompleted || m == ModeFailed
}

// CanTransition reports whether a mission may move from one mode to
// another. Any non-terminal mode may fail; the rest of the graph is
// strictly forward.
func CanTransition(from, to Mode) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case ModeProtocolCreation:
		return from == ModePending
	case ModeExecution:
		return from == ModePending || from == ModeProtocolCreation
	case ModeBlocked:
		return from == ModeExecution
	case ModeCompleted:
		return from == ModeExecution
	case ModeFailed:
		return true
	default:
		return false
	}
}

// StepStatus is the terminal outcome recorded for one attempted step.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailure StepStatus = "failure"
	StepStatusSkipped StepStatus = "skipped"
)

// StepResult records the outcome of one delegated protocol step.
// Entries are append-only and kept in step order.
type StepResult struct {
	StepIndex int        `json:"step_index"`
	Status    StepStatus `json:"status"`
	Detail    string     `json:"detail,omitempty"`
}

// Verdict is the authorization result returned by the assignment checker.
type Verdict struct {
	Authorized bool   `json:"authorized"`
	Role       string `json:"role,omitempty"`
}

// Mission is one onboarding run for one (employee, project) pair.
type Mission struct {
	ID              string       `json:"id"`
	TraceID         string       `json:"trace_id"`
	EmployeeID      string       `json:"employee_id"`
	ProjectID       string       `json:"project_id"`
	Mode            Mode         `json:"mode"`
	ProtocolVersion int          `json:"protocol_version,omitempty"`
	Verdict         *Verdict     `json:"verdict,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	StepResults     []StepResult `json:"step_results,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	CompletedAt     time.Time    `json:"completed_at,omitzero"`
}

// NewMission creates a pending mission with generated mission and trace ids.
func NewMission(employeeID, projectID string) *Mission {
	return &Mission{
		ID:         uuid.NewString(),
		TraceID:    uuid.NewString(),
		EmployeeID: employeeID,
		ProjectID:  projectID,
		Mode:       ModePending,
		CreatedAt:  time.Now().UTC(),
	}
}

// Clone returns a deep copy so tracker snapshots never alias internal state.
func (m *Mission) Clone() Mission {
	out := *m
	if m.Verdict != nil {
		verdict := *m.Verdict
		out.Verdict = &verdict
	}
	out.StepResults = append([]StepResult(nil), m.StepResults...)
	return out
}
