package tracker

import (
	"context"
	"database/sql"
	"reflect"
	"sync"
	"testing"

	"onramp/pkg/core"
	"onramp/pkg/errors"
)

func trackers(t *testing.T) map[string]Tracker {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqliteTracker, err := NewSQLiteTracker(db)
	if err != nil {
		t.Fatalf("new sqlite tracker: %v", err)
	}
	return map[string]Tracker{
		"memory": NewMemoryTracker(),
		"sqlite": sqliteTracker,
	}
}

func TestTrackerLifecycle(t *testing.T) {
	for name, tr := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mission := core.NewMission("maria.rosa@enterprise.com", "PROJ-ALPHA")

			id, err := tr.Create(ctx, mission)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if id != mission.ID {
				t.Fatalf("unexpected id: %s", id)
			}

			if err := tr.BindProtocol(ctx, id, 1); err != nil {
				t.Fatalf("bind protocol: %v", err)
			}
			if err := tr.SetVerdict(ctx, id, core.Verdict{Authorized: true, Role: "Developer"}); err != nil {
				t.Fatalf("set verdict: %v", err)
			}
			if err := tr.SetMode(ctx, id, core.ModeExecution, ""); err != nil {
				t.Fatalf("set mode: %v", err)
			}
			if err := tr.AppendStepResult(ctx, id, core.StepResult{StepIndex: 0, Status: core.StepStatusSuccess, Detail: "verified"}); err != nil {
				t.Fatalf("append: %v", err)
			}
			if err := tr.AppendStepResult(ctx, id, core.StepResult{StepIndex: 1, Status: core.StepStatusFailure, Detail: "space missing"}); err != nil {
				t.Fatalf("append: %v", err)
			}
			if err := tr.SetMode(ctx, id, core.ModeCompleted, ""); err != nil {
				t.Fatalf("set mode: %v", err)
			}

			got, err := tr.Get(ctx, id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Mode != core.ModeCompleted {
				t.Fatalf("unexpected mode: %s", got.Mode)
			}
			if got.ProtocolVersion != 1 {
				t.Fatalf("unexpected protocol version: %d", got.ProtocolVersion)
			}
			if got.Verdict == nil || !got.Verdict.Authorized || got.Verdict.Role != "Developer" {
				t.Fatalf("unexpected verdict: %+v", got.Verdict)
			}
			if len(got.StepResults) != 2 || got.StepResults[1].Status != core.StepStatusFailure {
				t.Fatalf("unexpected step results: %+v", got.StepResults)
			}
			if got.CompletedAt.IsZero() {
				t.Fatal("terminal mode must stamp completion")
			}
		})
	}
}

func TestTrackerNotFound(t *testing.T) {
	for name, tr := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := tr.Get(ctx, "missing"); !errors.IsNotFound(err) {
				t.Fatalf("get: expected not found, got %v", err)
			}
			if err := tr.SetMode(ctx, "missing", core.ModeFailed, "x"); !errors.IsNotFound(err) {
				t.Fatalf("set mode: expected not found, got %v", err)
			}
			if err := tr.AppendStepResult(ctx, "missing", core.StepResult{}); !errors.IsNotFound(err) {
				t.Fatalf("append: expected not found, got %v", err)
			}
			if err := tr.SetVerdict(ctx, "missing", core.Verdict{}); !errors.IsNotFound(err) {
				t.Fatalf("set verdict: expected not found, got %v", err)
			}
			if err := tr.BindProtocol(ctx, "missing", 1); !errors.IsNotFound(err) {
				t.Fatalf("bind: expected not found, got %v", err)
			}
		})
	}
}

func TestTrackerFailureReason(t *testing.T) {
	for name, tr := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mission := core.NewMission("stranger@enterprise.com", "PROJ-ALPHA")
			id, err := tr.Create(ctx, mission)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := tr.SetMode(ctx, id, core.ModeBlocked, ""); err != nil {
				t.Fatalf("set blocked: %v", err)
			}
			if err := tr.SetMode(ctx, id, core.ModeFailed, "unauthorized"); err != nil {
				t.Fatalf("set failed: %v", err)
			}
			got, err := tr.Get(ctx, id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Mode != core.ModeFailed || got.Reason != "unauthorized" {
				t.Fatalf("unexpected terminal state: mode=%s reason=%q", got.Mode, got.Reason)
			}
		})
	}
}

func TestStatusSnapshotIdempotent(t *testing.T) {
	tr := NewMemoryTracker()
	ctx := context.Background()
	mission := core.NewMission("maria.rosa@enterprise.com", "PROJ-ALPHA")
	id, _ := tr.Create(ctx, mission)
	_ = tr.AppendStepResult(ctx, id, core.StepResult{StepIndex: 0, Status: core.StepStatusSuccess})

	first, err := tr.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, err := tr.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("status snapshots differ without intervening mutation")
	}

	// Mutating the snapshot must not leak into tracker state.
	first.StepResults[0].Status = core.StepStatusFailure
	third, _ := tr.Get(ctx, id)
	if third.StepResults[0].Status != core.StepStatusSuccess {
		t.Fatal("snapshot aliases tracker state")
	}
}

func TestMemoryTrackerConcurrentMissions(t *testing.T) {
	tr := NewMemoryTracker()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mission := core.NewMission("maria.rosa@enterprise.com", "PROJ-ALPHA")
			id, err := tr.Create(ctx, mission)
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			for step := 0; step < 4; step++ {
				if err := tr.AppendStepResult(ctx, id, core.StepResult{StepIndex: step, Status: core.StepStatusSuccess}); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
			got, err := tr.Get(ctx, id)
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			if len(got.StepResults) != 4 {
				t.Errorf("expected 4 step results, got %d", len(got.StepResults))
			}
		}()
	}
	wg.Wait()
}
