// Package tracker holds the mutable state of in-flight onboarding
// missions. It is the single source of truth for mission state: the
// coordinator keeps nothing outside it, so any observer sees a
// consistent snapshot.
package tracker

import (
	"context"
	"sync"
	"time"

	"onramp/pkg/core"
	"onramp/pkg/errors"
)

// Tracker provides access to mission records. All mutations are atomic
// with respect to a single mission; writes to different missions never
// contend.
type Tracker interface {
	Create(ctx context.Context, mission *core.Mission) (string, error)
	Get(ctx context.Context, missionID string) (core.Mission, error)
	AppendStepResult(ctx context.Context, missionID string, result core.StepResult) error
	SetMode(ctx context.Context, missionID string, mode core.Mode, reason string) error
	SetVerdict(ctx context.Context, missionID string, verdict core.Verdict) error
	BindProtocol(ctx context.Context, missionID string, version int) error
}

// MemoryTracker keeps missions in memory with a lock per mission.
type MemoryTracker struct {
	mu       sync.RWMutex
	missions map[string]*missionRecord
}

type missionRecord struct {
	mu      sync.Mutex
	mission core.Mission
}

// NewMemoryTracker creates a new in-memory mission tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{missions: make(map[string]*missionRecord)}
}

// Create stores a new mission and returns its id.
func (t *MemoryTracker) Create(_ context.Context, mission *core.Mission) (string, error) {
	if mission == nil || mission.ID == "" {
		return "", errors.New(errors.CodeInvalidInput, "mission with id is required", nil)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.missions[mission.ID]; ok {
		return "", errors.New(errors.CodeAlreadyExists, "mission already exists", nil).
			WithContext("mission_id", mission.ID)
	}
	t.missions[mission.ID] = &missionRecord{mission: mission.Clone()}
	return mission.ID, nil
}

// Get returns a snapshot of the mission, or NOT_FOUND.
func (t *MemoryTracker) Get(_ context.Context, missionID string) (core.Mission, error) {
	record, err := t.record(missionID)
	if err != nil {
		return core.Mission{}, err
	}
	record.mu.Lock()
	defer record.mu.Unlock()
	return record.mission.Clone(), nil
}

// AppendStepResult appends one step outcome to the mission.
func (t *MemoryTracker) AppendStepResult(_ context.Context, missionID string, result core.StepResult) error {
	record, err := t.record(missionID)
	if err != nil {
		return err
	}
	record.mu.Lock()
	defer record.mu.Unlock()
	record.mission.StepResults = append(record.mission.StepResults, result)
	return nil
}

// SetMode transitions the mission mode, stamping completion on terminal
// modes. The reason is recorded only when non-empty.
func (t *MemoryTracker) SetMode(_ context.Context, missionID string, mode core.Mode, reason string) error {
	record, err := t.record(missionID)
	if err != nil {
		return err
	}
	record.mu.Lock()
	defer record.mu.Unlock()
	record.mission.Mode = mode
	if reason != "" {
		record.mission.Reason = reason
	}
	if mode.Terminal() {
		record.mission.CompletedAt = time.Now().UTC()
	}
	return nil
}

// SetVerdict records the assignment checker's verdict.
func (t *MemoryTracker) SetVerdict(_ context.Context, missionID string, verdict core.Verdict) error {
	record, err := t.record(missionID)
	if err != nil {
		return err
	}
	record.mu.Lock()
	defer record.mu.Unlock()
	record.mission.Verdict = &verdict
	return nil
}

// BindProtocol records the protocol version the mission executes against.
func (t *MemoryTracker) BindProtocol(_ context.Context, missionID string, version int) error {
	record, err := t.record(missionID)
	if err != nil {
		return err
	}
	record.mu.Lock()
	defer record.mu.Unlock()
	record.mission.ProtocolVersion = version
	return nil
}

func (t *MemoryTracker) record(missionID string) (*missionRecord, error) {
	t.mu.RLock()
	record, ok := t.missions[missionID]
	t.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "mission not found", nil).
			WithContext("mission_id", missionID)
	}
	return record, nil
}
