// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"onramp/pkg/core"
	"onramp/pkg/errors"
)

// MissionMetrics tracks mission throughput, outcomes and step activity.
type MissionMetrics struct {
	missionsStarted  metric.Int64Counter
	missionsTerminal metric.Int64Counter
	stepsTotal       metric.Int64Counter
	missionDuration  metric.Float64Histogram
	errorsTotal      metric.Int64Counter
}

// NewMissionMetrics creates a mission metrics tracker with OTEL meters.
func NewMissionMetrics() (*MissionMetrics, error) {
	meter := otel.Meter("onramp/coordinator")

	missionsStarted, err := meter.Int64Counter(
		"onramp.missions.started",
		metric.WithDescription("Missions submitted for processing"),
	)
	if err != nil {
		return nil, err
	}

	missionsTerminal, err := meter.Int64Counter(
		"onramp.missions.terminal",
		metric.WithDescription("Missions reaching a terminal mode, by mode"),
	)
	if err != nil {
		return nil, err
	}

	stepsTotal, err := meter.Int64Counter(
		"onramp.steps.total",
		metric.WithDescription("Delegated protocol steps by kind and status"),
	)
	if err != nil {
		return nil, err
	}

	missionDuration, err := meter.Float64Histogram(
		"onramp.mission.duration_ms",
		metric.WithDescription("Mission wall time from submit to terminal mode"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	errorsTotal, err := meter.Int64Counter(
		"onramp.errors.total",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	return &MissionMetrics{
		missionsStarted:  missionsStarted,
		missionsTerminal: missionsTerminal,
		stepsTotal:       stepsTotal,
		missionDuration:  missionDuration,
		errorsTotal:      errorsTotal,
	}, nil
}

// RecordMissionStarted increments the started counter.
func (mm *MissionMetrics) RecordMissionStarted(ctx context.Context, projectID string) {
	if mm == nil {
		return
	}
	mm.missionsStarted.Add(ctx, 1,
		metric.WithAttributes(attribute.String(AttrProjectID, projectID)),
	)
}

// RecordMissionTerminal records a mission reaching completed or failed,
// together with its duration.
func (mm *MissionMetrics) RecordMissionTerminal(ctx context.Context, projectID string, mode core.Mode, durationMs float64) {
	if mm == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrProjectID, projectID),
		attribute.String(AttrMissionMode, string(mode)),
	)
	mm.missionsTerminal.Add(ctx, 1, attrs)
	if durationMs > 0 {
		mm.missionDuration.Record(ctx, durationMs, attrs)
	}
}

// RecordStep records the outcome of a delegated step.
func (mm *MissionMetrics) RecordStep(ctx context.Context, kind string, status core.StepStatus) {
	if mm == nil {
		return
	}
	mm.stepsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrStepKind, kind),
			attribute.String(AttrStepStatus, string(status)),
		),
	)
}

// RecordError increments the error counter for the given error and component.
func (mm *MissionMetrics) RecordError(ctx context.Context, err error, component string) {
	if mm == nil || err == nil {
		return
	}
	oe := errors.AsOnrampError(err)
	code := string(oe.Code)
	recoverable := "false"
	if oe.Recoverable {
		recoverable = "true"
	}
	mm.errorsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", code),
			attribute.String("component", component),
			attribute.String("recoverable", recoverable),
		),
	)
}
