// Package protocol implements the protocol store gateway: reading and
// writing onboarding protocol definitions keyed by project id.
package protocol

import (
	"context"
	"sync"
	"time"

	"onramp/pkg/core"
	"onramp/pkg/errors"
)

// Store provides access to onboarding protocol records.
//
// Create must guarantee at-most-one success per project id: when two
// coordinators race on an uncreated project, the loser receives
// ALREADY_EXISTS and is expected to re-fetch the winning protocol.
type Store interface {
	Get(ctx context.Context, projectID string) (core.Protocol, error)
	Create(ctx context.Context, projectID string, steps []core.StepSpec) (core.Protocol, error)
	Replace(ctx context.Context, projectID string, steps []core.StepSpec) (core.Protocol, error)
}

// MemoryStore keeps protocols in memory.
type MemoryStore struct {
	mu        sync.RWMutex
	protocols map[string]core.Protocol
}

// NewMemoryStore creates a new in-memory protocol store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{protocols: make(map[string]core.Protocol)}
}

// Get returns the protocol for a project, or NOT_FOUND.
func (s *MemoryStore) Get(_ context.Context, projectID string) (core.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.protocols[projectID]
	if !ok {
		return core.Protocol{}, errors.New(errors.CodeNotFound, "protocol not found", nil).
			WithContext("project_id", projectID)
	}
	return cloneProtocol(p), nil
}

// Create stores version 1 of a protocol. First writer wins.
func (s *MemoryStore) Create(_ context.Context, projectID string, steps []core.StepSpec) (core.Protocol, error) {
	if projectID == "" {
		return core.Protocol{}, errors.New(errors.CodeInvalidInput, "project id is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.protocols[projectID]; ok {
		return core.Protocol{}, errors.New(errors.CodeAlreadyExists, "protocol already exists", nil).
			WithContext("project_id", projectID)
	}
	p := core.Protocol{
		ProjectID: projectID,
		Version:   1,
		Steps:     core.CloneSteps(steps),
		CreatedAt: time.Now().UTC(),
	}
	s.protocols[projectID] = p
	return cloneProtocol(p), nil
}

// Replace writes a new protocol version for an existing project. The prior
// version is never edited in place, so mid-flight missions holding it stay
// consistent.
func (s *MemoryStore) Replace(_ context.Context, projectID string, steps []core.StepSpec) (core.Protocol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.protocols[projectID]
	if !ok {
		return core.Protocol{}, errors.New(errors.CodeNotFound, "protocol not found", nil).
			WithContext("project_id", projectID)
	}
	p := core.Protocol{
		ProjectID: projectID,
		Version:   prev.Version + 1,
		Steps:     core.CloneSteps(steps),
		CreatedAt: time.Now().UTC(),
	}
	s.protocols[projectID] = p
	return cloneProtocol(p), nil
}

func cloneProtocol(p core.Protocol) core.Protocol {
	p.Steps = core.CloneSteps(p.Steps)
	return p
}
