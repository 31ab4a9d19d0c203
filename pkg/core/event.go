package core

import (
	"context"
	"time"
)

// EventType identifies a semantic event emitted by the coordinator.
type EventType string

const (
	EventMissionSubmitted  EventType = "mission.submitted"
	EventMissionClassified EventType = "mission.classified"
	EventProtocolCreated   EventType = "mission.protocol.created"
	EventStepStarted       EventType = "mission.step.started"
	EventStepCompleted     EventType = "mission.step.completed"
	EventMissionBlocked    EventType = "mission.blocked"
	EventMissionCompleted  EventType = "mission.completed"
	EventMissionFailed     EventType = "mission.failed"
)

// Event captures a semantic streaming/logging event for one mission.
type Event struct {
	Type      EventType
	MissionID string
	TraceID   string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives semantic events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// NewEvent builds a default event with timestamp.
func NewEvent(eventType EventType, missionID, traceID string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		MissionID: missionID,
		TraceID:   traceID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
