// Package provision executes individual protocol steps against downstream
// systems through narrow worker contracts.
package provision

import (
	"context"

	"onramp/pkg/core"
	"onramp/pkg/errors"
)

// Worker executes one idempotent provisioning action. On success the
// returned detail describes what was applied. Failures are typed:
// UNREACHABLE for transient transport problems and STEP_FAILED for
// downstream rejections.
type Worker interface {
	ExecuteStep(ctx context.Context, step core.StepSpec, employeeID string) (string, error)
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc func(ctx context.Context, step core.StepSpec, employeeID string) (string, error)

// ExecuteStep implements Worker.
func (f WorkerFunc) ExecuteStep(ctx context.Context, step core.StepSpec, employeeID string) (string, error) {
	return f(ctx, step, employeeID)
}

// Registry dispatches steps to workers by step kind. It satisfies Worker
// itself, so a coordinator holds a single delegation target.
type Registry struct {
	workers map[string]Worker
}

// NewRegistry creates an empty worker registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]Worker)}
}

// Register binds a worker to a step kind, replacing any previous binding.
func (r *Registry) Register(kind string, worker Worker) {
	r.workers[kind] = worker
}

// Kinds returns the registered step kinds.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.workers))
	for kind := range r.workers {
		kinds = append(kinds, kind)
	}
	return kinds
}

// ExecuteStep dispatches to the worker registered for the step kind.
// A step kind with no adapter surfaces as an UNREACHABLE failure.
func (r *Registry) ExecuteStep(ctx context.Context, step core.StepSpec, employeeID string) (string, error) {
	worker, ok := r.workers[step.Kind]
	if !ok {
		return "", errors.New(errors.CodeUnreachable, "no worker registered for step kind", nil).
			WithContext("kind", step.Kind)
	}
	return worker.ExecuteStep(ctx, step, employeeID)
}
