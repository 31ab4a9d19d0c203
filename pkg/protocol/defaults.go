package protocol

import "onramp/pkg/core"

// DefaultSteps returns the minimal step list used when a coordinator
// synthesizes version 1 of a protocol in creation mode: verify the
// assignment, then provision the project's chat spaces.
func DefaultSteps() []core.StepSpec {
	return []core.StepSpec{
		{
			Kind:           core.StepKindAssignmentCheck,
			TargetSystem:   "allocation-platform",
			FatalOnFailure: true,
		},
		{
			Kind:           core.StepKindChatProvision,
			TargetSystem:   "gchat",
			FatalOnFailure: false,
		},
	}
}
