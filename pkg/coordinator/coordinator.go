// SPDX-License-Identifier: Apache-2.0

// Package coordinator drives the onboarding workflow state machine. A
// coordinator owns no mission state of its own: every transition is
// written to the tracker, so a mission can be inspected at any time and
// the coordinator itself stays stateless.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"onramp/pkg/assignment"
	"onramp/pkg/core"
	"onramp/pkg/errors"
	"onramp/pkg/protocol"
	"onramp/pkg/provision"
	"onramp/pkg/telemetry"
	"onramp/pkg/tracker"
)

// Coordinator processes onboarding missions: it classifies them against
// the protocol store, gates them through the assignment checker and
// delegates protocol steps to provisioning workers strictly in order.
type Coordinator struct {
	protocols protocol.Store
	checker   assignment.Checker
	worker    provision.Worker
	missions  tracker.Tracker
	emitter   core.EventEmitter
	metrics   *telemetry.MissionMetrics
	tracer    trace.Tracer
	log       *slog.Logger
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithEventEmitter sets the emitter for semantic mission events.
func WithEventEmitter(emitter core.EventEmitter) Option {
	return func(c *Coordinator) {
		if emitter != nil {
			c.emitter = emitter
		}
	}
}

// WithMetrics sets the mission metrics tracker.
func WithMetrics(metrics *telemetry.MissionMetrics) Option {
	return func(c *Coordinator) { c.metrics = metrics }
}

// WithLogger sets the coordinator logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a coordinator over the given collaborators.
func New(protocols protocol.Store, checker assignment.Checker, worker provision.Worker, missions tracker.Tracker, opts ...Option) *Coordinator {
	c := &Coordinator{
		protocols: protocols,
		checker:   checker,
		worker:    worker,
		missions:  missions,
		emitter:   core.NoopEventEmitter{},
		tracer:    otel.Tracer("onramp/coordinator"),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit registers a new mission and processes it to a terminal mode.
// The returned mission is the final tracker snapshot. An error is
// returned only for infrastructure faults (tracker or store writes);
// a mission that ends in FAILED is a normal outcome, reported through
// Mission.Mode and Mission.Reason.
func (c *Coordinator) Submit(ctx context.Context, employeeID, projectID string) (core.Mission, error) {
	m, err := c.create(ctx, employeeID, projectID)
	if err != nil {
		return core.Mission{}, err
	}
	ctx = core.WithTraceID(ctx, m.TraceID)
	if err := c.run(ctx, m.ID); err != nil {
		return core.Mission{}, err
	}
	return c.missions.Get(ctx, m.ID)
}

// SubmitAsync registers a new mission and processes it in the
// background, detached from the caller's cancellation. The returned
// snapshot is the mission as created; callers poll Status for progress.
func (c *Coordinator) SubmitAsync(ctx context.Context, employeeID, projectID string) (core.Mission, error) {
	m, err := c.create(ctx, employeeID, projectID)
	if err != nil {
		return core.Mission{}, err
	}
	runCtx := core.WithTraceID(context.WithoutCancel(ctx), m.TraceID)
	go func() {
		if err := c.run(runCtx, m.ID); err != nil {
			c.log.ErrorContext(runCtx, "coordinator.mission.error",
				slog.String("mission_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return *m, nil
}

// Status returns the current tracker snapshot for a mission.
func (c *Coordinator) Status(ctx context.Context, missionID string) (core.Mission, error) {
	return c.missions.Get(ctx, missionID)
}

func (c *Coordinator) create(ctx context.Context, employeeID, projectID string) (*core.Mission, error) {
	if employeeID == "" {
		return nil, errors.New(errors.CodeInvalidInput, "employee id is required", nil)
	}
	if projectID == "" {
		return nil, errors.New(errors.CodeInvalidInput, "project id is required", nil)
	}
	m := core.NewMission(employeeID, projectID)
	if _, err := c.missions.Create(ctx, m); err != nil {
		return nil, err
	}
	c.metrics.RecordMissionStarted(ctx, projectID)
	c.emitter.Emit(ctx, core.NewEvent(core.EventMissionSubmitted, m.ID, m.TraceID, map[string]any{
		"employee_id": employeeID,
		"project_id":  projectID,
	}))
	c.log.InfoContext(ctx, "coordinator.mission.submitted",
		slog.String("mission_id", m.ID),
		slog.String("employee_id", employeeID),
		slog.String("project_id", projectID),
	)
	return m, nil
}

// setMode validates the transition against the mode graph before
// persisting it, then keeps the in-flight snapshot current. A rejected
// transition is a coordinator bug, not a mission outcome.
func (c *Coordinator) setMode(ctx context.Context, m *core.Mission, mode core.Mode, reason string) error {
	if !core.CanTransition(m.Mode, mode) {
		return errors.New(errors.CodeInternal, "illegal mode transition", nil).
			WithContext("mission_id", m.ID).
			WithContext("from", string(m.Mode)).
			WithContext("to", string(mode))
	}
	if err := c.missions.SetMode(ctx, m.ID, mode, reason); err != nil {
		return err
	}
	m.Mode = mode
	return nil
}

// run executes one mission to a terminal mode. Each transition is
// persisted before the next action so the tracker never lags the
// workflow.
func (c *Coordinator) run(ctx context.Context, missionID string) error {
	m, err := c.missions.Get(ctx, missionID)
	if err != nil {
		return err
	}
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "Coordinator.Mission",
		trace.WithAttributes(telemetry.MissionAttributes(&m)...),
	)
	defer span.End()

	p, err := c.classify(ctx, &m)
	if err != nil {
		return c.fail(ctx, span, &m, start, "protocol resolution failed", err)
	}
	if err := c.missions.BindProtocol(ctx, m.ID, p.Version); err != nil {
		return err
	}
	m.ProtocolVersion = p.Version
	if err := c.setMode(ctx, &m, core.ModeExecution, ""); err != nil {
		return err
	}

	verdict, err := c.checker.CheckAssignment(ctx, m.EmployeeID, m.ProjectID)
	if err != nil {
		return c.fail(ctx, span, &m, start, "assignment check failed", err)
	}
	if err := c.missions.SetVerdict(ctx, m.ID, verdict); err != nil {
		return err
	}
	span.SetAttributes(telemetry.VerdictAttributes(verdict)...)
	if !verdict.Authorized {
		if err := c.setMode(ctx, &m, core.ModeBlocked, ""); err != nil {
			return err
		}
		c.emitter.Emit(ctx, core.NewEvent(core.EventMissionBlocked, m.ID, m.TraceID, nil))
		c.log.WarnContext(ctx, "coordinator.mission.blocked",
			slog.String("mission_id", m.ID),
			slog.String("employee_id", m.EmployeeID),
			slog.String("project_id", m.ProjectID),
		)
		return c.fail(ctx, span, &m, start, "unauthorized", nil)
	}

	for i, step := range p.Steps {
		res, err := c.runStep(ctx, &m, i, step)
		if err != nil {
			return err
		}
		if res.Status == core.StepStatusFailure && step.FatalOnFailure {
			return c.fail(ctx, span, &m, start, fmt.Sprintf("step %d failed", i), nil)
		}
	}

	if err := c.setMode(ctx, &m, core.ModeCompleted, ""); err != nil {
		return err
	}
	c.metrics.RecordMissionTerminal(ctx, m.ProjectID, core.ModeCompleted, float64(time.Since(start).Milliseconds()))
	c.emitter.Emit(ctx, core.NewEvent(core.EventMissionCompleted, m.ID, m.TraceID, map[string]any{
		"steps": len(p.Steps),
	}))
	c.log.InfoContext(ctx, "coordinator.mission.completed",
		slog.String("mission_id", m.ID),
		slog.Int("steps", len(p.Steps)),
	)
	span.SetStatus(codes.Ok, "")
	return nil
}

// classify resolves the mission's protocol. When no protocol exists for
// the project, the mission enters protocol creation and attempts to
// write the default protocol; losing the creation race to a concurrent
// mission is fine, the winner's protocol is fetched and used.
func (c *Coordinator) classify(ctx context.Context, m *core.Mission) (core.Protocol, error) {
	p, err := c.protocols.Get(ctx, m.ProjectID)
	if err == nil {
		c.emitter.Emit(ctx, core.NewEvent(core.EventMissionClassified, m.ID, m.TraceID, map[string]any{
			"protocol_exists":  true,
			"protocol_version": p.Version,
		}))
		return p, nil
	}
	if !errors.IsNotFound(err) {
		return core.Protocol{}, err
	}

	if err := c.setMode(ctx, m, core.ModeProtocolCreation, ""); err != nil {
		return core.Protocol{}, err
	}
	c.emitter.Emit(ctx, core.NewEvent(core.EventMissionClassified, m.ID, m.TraceID, map[string]any{
		"protocol_exists": false,
	}))
	c.log.InfoContext(ctx, "coordinator.protocol.creating",
		slog.String("mission_id", m.ID),
		slog.String("project_id", m.ProjectID),
	)

	created, err := c.protocols.Create(ctx, m.ProjectID, protocol.DefaultSteps())
	if err != nil {
		if !errors.IsAlreadyExists(err) {
			return core.Protocol{}, err
		}
		// Lost the race. Use the winner's protocol.
		winner, gerr := c.protocols.Get(ctx, m.ProjectID)
		if gerr != nil {
			return core.Protocol{}, gerr
		}
		c.log.InfoContext(ctx, "coordinator.protocol.race_lost",
			slog.String("mission_id", m.ID),
			slog.String("project_id", m.ProjectID),
			slog.Int("version", winner.Version),
		)
		return winner, nil
	}
	c.emitter.Emit(ctx, core.NewEvent(core.EventProtocolCreated, m.ID, m.TraceID, map[string]any{
		"project_id":       m.ProjectID,
		"protocol_version": created.Version,
		"steps":            len(created.Steps),
	}))
	c.log.InfoContext(ctx, "coordinator.protocol.created",
		slog.String("mission_id", m.ID),
		slog.String("project_id", m.ProjectID),
		slog.Int("version", created.Version),
	)
	return created, nil
}

// runStep delegates a single step to the worker exactly once and
// records its outcome. Retries, if any, live inside the worker; the
// coordinator never re-delegates a recorded step.
func (c *Coordinator) runStep(ctx context.Context, m *core.Mission, index int, step core.StepSpec) (core.StepResult, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.Step",
		trace.WithAttributes(telemetry.StepAttributes(index, step)...),
	)
	defer span.End()

	c.emitter.Emit(ctx, core.NewEvent(core.EventStepStarted, m.ID, m.TraceID, map[string]any{
		"step_index": index,
		"kind":       step.Kind,
	}))

	// Steps run against the mission's project unless the protocol pins
	// a different one.
	params := make(map[string]any, len(step.Parameters)+1)
	for k, v := range step.Parameters {
		params[k] = v
	}
	if _, ok := params["project_id"]; !ok {
		params["project_id"] = m.ProjectID
	}
	step.Parameters = params

	detail, err := c.worker.ExecuteStep(ctx, step, m.EmployeeID)
	res := core.StepResult{StepIndex: index, Status: core.StepStatusSuccess, Detail: detail}
	if err != nil {
		res.Status = core.StepStatusFailure
		res.Detail = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.RecordError(ctx, err, "worker")
		c.log.WarnContext(ctx, "coordinator.step.failed",
			slog.String("mission_id", m.ID),
			slog.Int("step_index", index),
			slog.String("kind", step.Kind),
			slog.Bool("fatal", step.FatalOnFailure),
			slog.String("error", err.Error()),
		)
	} else {
		c.log.InfoContext(ctx, "coordinator.step.completed",
			slog.String("mission_id", m.ID),
			slog.Int("step_index", index),
			slog.String("kind", step.Kind),
		)
	}

	if err := c.missions.AppendStepResult(ctx, m.ID, res); err != nil {
		return core.StepResult{}, err
	}
	c.metrics.RecordStep(ctx, step.Kind, res.Status)
	c.emitter.Emit(ctx, core.NewEvent(core.EventStepCompleted, m.ID, m.TraceID, map[string]any{
		"step_index": index,
		"kind":       step.Kind,
		"status":     string(res.Status),
	}))
	return res, nil
}

// fail moves the mission to FAILED with the given reason and records
// terminal telemetry. The cause, when present, is attached to the span
// and event but the reason string is what the tracker keeps.
func (c *Coordinator) fail(ctx context.Context, span trace.Span, m *core.Mission, start time.Time, reason string, cause error) error {
	if err := c.setMode(ctx, m, core.ModeFailed, reason); err != nil {
		return err
	}
	c.metrics.RecordMissionTerminal(ctx, m.ProjectID, core.ModeFailed, float64(time.Since(start).Milliseconds()))
	payload := map[string]any{"reason": reason}
	if cause != nil {
		payload["error"] = cause.Error()
		span.RecordError(cause)
		c.metrics.RecordError(ctx, cause, "coordinator")
	}
	c.emitter.Emit(ctx, core.NewEvent(core.EventMissionFailed, m.ID, m.TraceID, payload))
	span.SetStatus(codes.Error, reason)
	c.log.WarnContext(ctx, "coordinator.mission.failed",
		slog.String("mission_id", m.ID),
		slog.String("reason", reason),
	)
	return nil
}
