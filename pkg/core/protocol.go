package core

import "time"

// Step kinds known to the stock worker registry.
const (
	StepKindAssignmentCheck = "assignment-check"
	StepKindChatProvision   = "chat-provision"
)

// StepSpec describes one provisioning action within a protocol.
// Specs are immutable once the owning protocol is created.
type StepSpec struct {
	Kind           string         `json:"kind" yaml:"kind"`
	TargetSystem   string         `json:"target_system,omitempty" yaml:"target_system,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	FatalOnFailure bool           `json:"fatal_on_failure" yaml:"fatal_on_failure"`
}

// Protocol is the ordered onboarding step list for a project. Order is
// significant: steps execute strictly in listed order.
type Protocol struct {
	ProjectID string     `json:"project_id" yaml:"project_id"`
	Version   int        `json:"version" yaml:"version"`
	Steps     []StepSpec `json:"steps" yaml:"steps"`
	CreatedAt time.Time  `json:"created_at,omitzero" yaml:"created_at,omitempty"`
}

// CloneSteps copies a step list so stored protocols never alias caller slices.
func CloneSteps(steps []StepSpec) []StepSpec {
	if steps == nil {
		return nil
	}
	out := make([]StepSpec, len(steps))
	for i, step := range steps {
		out[i] = step
		if step.Parameters != nil {
			params := make(map[string]any, len(step.Parameters))
			for k, v := range step.Parameters {
				params[k] = v
			}
			out[i].Parameters = params
		}
	}
	return out
}
