// Package audit persists the coordinator's semantic event stream so a
// mission's history survives beyond its tracker record.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"onramp/pkg/core"
)

// Store persists mission events.
type Store interface {
	Record(ctx context.Context, event core.Event) error
	List(ctx context.Context, filter Filter) ([]core.Event, error)
}

// Filter limits event queries.
type Filter struct {
	MissionID string
	TraceID   string
	Type      core.EventType
	Limit     int
}

// MemoryStore keeps events in memory.
type MemoryStore struct {
	mu     sync.Mutex
	events []core.Event
}

// NewMemoryStore returns an in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends an event.
func (s *MemoryStore) Record(_ context.Context, event core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List returns filtered events in record order.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Event, 0, len(s.events))
	for _, ev := range s.events {
		if filter.MissionID != "" && ev.MissionID != filter.MissionID {
			continue
		}
		if filter.TraceID != "" && ev.TraceID != filter.TraceID {
			continue
		}
		if filter.Type != "" && ev.Type != filter.Type {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Emitter adapts a Store to the coordinator's EventEmitter. Recording
// failures are dropped; the audit trail never blocks a mission.
type Emitter struct {
	store Store
}

// NewEmitter wraps a store as an event emitter.
func NewEmitter(store Store) *Emitter {
	return &Emitter{store: store}
}

// Emit implements core.EventEmitter.
func (e *Emitter) Emit(ctx context.Context, event core.Event) {
	_ = e.store.Record(ctx, event)
}

func encodePayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return []byte("null"), nil
	}
	return json.Marshal(payload)
}

func decodePayload(raw []byte) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeTime(value time.Time) time.Time {
	if value.IsZero() {
		return value
	}
	return value.UTC()
}
