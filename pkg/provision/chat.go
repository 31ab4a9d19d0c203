package provision

import (
	"context"
	"fmt"
	"strings"

	"onramp/pkg/core"
	"onramp/pkg/errors"
)

// ChatTransport is the wire-level chat-space membership API.
type ChatTransport interface {
	AddMember(ctx context.Context, space, email, serviceAccount string) error
}

// ChatWorker adds an employee to every chat space a step names. It always
// acts as the configured least-privilege service account; a step that
// demands a different identity fails rather than escalate.
type ChatWorker struct {
	transport    ChatTransport
	authorizedSA string
}

// NewChatWorker creates a chat provisioning worker bound to a transport
// and the authorized service account id.
func NewChatWorker(transport ChatTransport, authorizedSA string) *ChatWorker {
	return &ChatWorker{transport: transport, authorizedSA: authorizedSA}
}

// ExecuteStep adds the employee to each space listed in the step
// parameters. The step fails on the first space that cannot be applied.
func (w *ChatWorker) ExecuteStep(ctx context.Context, step core.StepSpec, employeeID string) (string, error) {
	if sa, ok := stringParam(step.Parameters, "service_account"); ok && sa != w.authorizedSA {
		return "", errors.New(errors.CodeStepFailed, "service account mismatch", nil).
			WithContext("requested", sa).
			WithContext("authorized", w.authorizedSA)
	}

	spaces := spacesParam(step.Parameters)
	if len(spaces) == 0 {
		return "no chat spaces configured for project", nil
	}

	for _, space := range spaces {
		if err := w.transport.AddMember(ctx, space, employeeID, w.authorizedSA); err != nil {
			return "", errors.AsOnrampError(err).WithContext("space", space)
		}
	}
	return fmt.Sprintf("added %s to %d chat space(s)", employeeID, len(spaces)), nil
}

func stringParam(params map[string]any, key string) (string, bool) {
	if params == nil {
		return "", false
	}
	value, ok := params[key].(string)
	return value, ok
}

// spacesParam tolerates both []string and the []any YAML decoding yields.
func spacesParam(params map[string]any) []string {
	if params == nil {
		return nil
	}
	switch value := params["spaces"].(type) {
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// SimulatedChatTransport is the deterministic transport used in tests and
// local profiles. Space names carry their intended failure mode, the same
// fixtures the downstream platform's sandbox uses.
type SimulatedChatTransport struct{}

// AddMember applies the simulated membership call.
func (SimulatedChatTransport) AddMember(_ context.Context, space, email, serviceAccount string) error {
	switch {
	case strings.HasPrefix(space, "spaces/FAIL_TRANSIENT"):
		return errors.New(errors.CodeUnreachable, "chat service temporarily unavailable", nil).
			WithContext("space", space).
			WithRecoverable(true)
	case strings.HasPrefix(space, "spaces/FAIL_PERMANENT"):
		return errors.New(errors.CodeStepFailed, "chat space not found", nil).
			WithContext("space", space)
	default:
		return nil
	}
}
