// Package assignment resolves an employee's authorization and role for a
// project against the enterprise allocation platform.
package assignment

import (
	"context"

	"onramp/pkg/core"
)

// Checker is the capability contract the coordinator depends on.
// A negative verdict is a business outcome, not an error; errors are
// reserved for unreachable-class failures.
type Checker interface {
	CheckAssignment(ctx context.Context, employeeID, projectID string) (core.Verdict, error)
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, employeeID, projectID string) (core.Verdict, error)

// CheckAssignment implements Checker.
func (f CheckerFunc) CheckAssignment(ctx context.Context, employeeID, projectID string) (core.Verdict, error) {
	return f(ctx, employeeID, projectID)
}
