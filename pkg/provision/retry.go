package provision

import (
	"context"
	"time"

	"onramp/pkg/core"
	"onramp/pkg/resilience"
)

// RetryingWorker decorates a worker with retry and timeout policy.
// Retries live here, at the worker contract, never in the coordinator:
// only recoverable (unreachable-class) failures are re-attempted.
type RetryingWorker struct {
	next    Worker
	retry   resilience.RetryConfig
	timeout time.Duration
}

// NewRetryingWorker wraps next with the given retry policy and per-attempt
// timeout. A zero timeout disables the boundary.
func NewRetryingWorker(next Worker, retry resilience.RetryConfig, timeout time.Duration) *RetryingWorker {
	return &RetryingWorker{next: next, retry: retry, timeout: timeout}
}

// ExecuteStep implements Worker.
func (w *RetryingWorker) ExecuteStep(ctx context.Context, step core.StepSpec, employeeID string) (string, error) {
	value, err := w.retry.DoWithResult(ctx, func() (interface{}, error) {
		return resilience.WithTimeoutResult(ctx, resilience.TimeoutConfig{Duration: w.timeout}, func() (interface{}, error) {
			return w.next.ExecuteStep(ctx, step, employeeID)
		})
	})
	if err != nil {
		return "", err
	}
	detail, _ := value.(string)
	return detail, nil
}
