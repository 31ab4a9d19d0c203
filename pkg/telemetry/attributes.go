// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration for onboarding
// mission observability.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"

	"onramp/pkg/core"
)

// Semantic conventions for onramp telemetry.
const (
	// Mission attributes
	AttrMissionID       = "onramp.mission.id"
	AttrMissionMode     = "onramp.mission.mode"
	AttrMissionReason   = "onramp.mission.reason"
	AttrEmployeeID      = "onramp.employee.id"
	AttrProjectID       = "onramp.project.id"
	AttrProtocolVersion = "onramp.protocol.version"

	// Verdict attributes
	AttrVerdictAuthorized = "onramp.verdict.authorized"
	AttrVerdictRole       = "onramp.verdict.role"

	// Step attributes
	AttrStepIndex  = "onramp.step.index"
	AttrStepKind   = "onramp.step.kind"
	AttrStepTarget = "onramp.step.target_system"
	AttrStepFatal  = "onramp.step.fatal"
	AttrStepStatus = "onramp.step.status"
	AttrStepDetail = "onramp.step.detail"

	// Event attributes
	AttrEventType = "onramp.event.type"
)

// MissionAttributes returns common attributes for mission spans.
func MissionAttributes(m *core.Mission) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrMissionID, m.ID),
		attribute.String(AttrEmployeeID, m.EmployeeID),
		attribute.String(AttrProjectID, m.ProjectID),
		attribute.String(AttrMissionMode, string(m.Mode)),
	}
	if m.ProtocolVersion > 0 {
		attrs = append(attrs, attribute.Int(AttrProtocolVersion, m.ProtocolVersion))
	}
	return attrs
}

// VerdictAttributes returns attributes for an assignment verdict.
func VerdictAttributes(v core.Verdict) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Bool(AttrVerdictAuthorized, v.Authorized),
	}
	if v.Role != "" {
		attrs = append(attrs, attribute.String(AttrVerdictRole, v.Role))
	}
	return attrs
}

// StepAttributes returns attributes for a delegated step span.
func StepAttributes(index int, step core.StepSpec) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrStepIndex, index),
		attribute.String(AttrStepKind, step.Kind),
		attribute.String(AttrStepTarget, step.TargetSystem),
		attribute.Bool(AttrStepFatal, step.FatalOnFailure),
	}
}

// StepResultAttributes returns attributes describing a step outcome.
func StepResultAttributes(res core.StepResult) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrStepIndex, res.StepIndex),
		attribute.String(AttrStepStatus, string(res.Status)),
	}
	if res.Detail != "" {
		detail := res.Detail
		if len(detail) > 200 {
			detail = detail[:200] + "..."
		}
		attrs = append(attrs, attribute.String(AttrStepDetail, detail))
	}
	return attrs
}
