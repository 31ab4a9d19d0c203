package provision

import (
	"context"
	"fmt"

	"onramp/pkg/assignment"
	"onramp/pkg/core"
	"onramp/pkg/errors"
)

// AssignmentWorker executes assignment-check protocol steps by consulting
// the assignment checker. Protocols carry an explicit verification step so
// the check is re-applied at execution time, not only at classification.
type AssignmentWorker struct {
	checker assignment.Checker
}

// NewAssignmentWorker creates a worker over the given checker.
func NewAssignmentWorker(checker assignment.Checker) *AssignmentWorker {
	return &AssignmentWorker{checker: checker}
}

// ExecuteStep verifies the employee's assignment for the step's project.
// The project id comes from step parameters when present, so a protocol
// may pin the check to a specific project.
func (w *AssignmentWorker) ExecuteStep(ctx context.Context, step core.StepSpec, employeeID string) (string, error) {
	projectID, _ := stringParam(step.Parameters, "project_id")
	verdict, err := w.checker.CheckAssignment(ctx, employeeID, projectID)
	if err != nil {
		return "", errors.AsOnrampError(err)
	}
	if !verdict.Authorized {
		return "", errors.New(errors.CodeUnauthorized, "employee not assigned to project", nil).
			WithContext("employee_id", employeeID)
	}
	return fmt.Sprintf("assignment verified, role %s", verdict.Role), nil
}
