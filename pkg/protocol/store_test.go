package protocol

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"onramp/pkg/core"
	"onramp/pkg/errors"
)

func testSteps() []core.StepSpec {
	return []core.StepSpec{
		{Kind: core.StepKindAssignmentCheck, FatalOnFailure: true},
		{Kind: core.StepKindChatProvision, Parameters: map[string]any{"spaces": []string{"spaces/ALPHA-GENERAL"}}},
	}
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "PROJ-MISSING")
	if !errors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	created, err := store.Create(context.Background(), "PROJ-ALPHA", testSteps())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1, got %d", created.Version)
	}

	got, err := store.Get(context.Background(), "PROJ-ALPHA")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(got.Steps))
	}

	// Stored protocol must not alias the caller's parameter maps.
	got.Steps[1].Parameters["spaces"] = nil
	again, _ := store.Get(context.Background(), "PROJ-ALPHA")
	if again.Steps[1].Parameters["spaces"] == nil {
		t.Fatal("stored protocol aliases returned snapshot")
	}
}

func TestMemoryStoreCreateRace(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = store.Create(context.Background(), "PROJ-BETA", testSteps())
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.IsAlreadyExists(err):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one create to win, got %d", winners)
	}
}

func TestMemoryStoreReplaceBumpsVersion(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Create(context.Background(), "PROJ-ALPHA", testSteps()); err != nil {
		t.Fatalf("create: %v", err)
	}
	replaced, err := store.Replace(context.Background(), "PROJ-ALPHA", testSteps()[:1])
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if replaced.Version != 2 {
		t.Fatalf("expected version 2, got %d", replaced.Version)
	}
	if _, err := store.Replace(context.Background(), "PROJ-NONE", testSteps()); !errors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	db, err := sql.Open("sqlite", "file:protocol_store_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}

	if _, err := store.Get(context.Background(), "PROJ-ALPHA"); !errors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	created, err := store.Create(context.Background(), "PROJ-ALPHA", testSteps())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1, got %d", created.Version)
	}

	if _, err := store.Create(context.Background(), "PROJ-ALPHA", testSteps()); !errors.IsAlreadyExists(err) {
		t.Fatalf("expected already exists, got %v", err)
	}

	got, err := store.Get(context.Background(), "PROJ-ALPHA")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Steps) != 2 || got.Steps[0].Kind != core.StepKindAssignmentCheck {
		t.Fatalf("unexpected steps: %+v", got.Steps)
	}

	replaced, err := store.Replace(context.Background(), "PROJ-ALPHA", testSteps()[:1])
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if replaced.Version != 2 {
		t.Fatalf("expected version 2, got %d", replaced.Version)
	}
}

func TestParseSeeds(t *testing.T) {
	data := []byte(`
protocols:
  - project_id: PROJ-ALPHA
    steps:
      - kind: assignment-check
        target_system: allocation-platform
        fatal_on_failure: true
      - kind: chat-provision
        target_system: gchat
        parameters:
          spaces:
            - spaces/ALPHA-GENERAL
            - spaces/ALPHA-DEV
`)
	protocols, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(protocols) != 1 {
		t.Fatalf("expected 1 protocol, got %d", len(protocols))
	}
	p := protocols[0]
	if p.ProjectID != "PROJ-ALPHA" || len(p.Steps) != 2 {
		t.Fatalf("unexpected protocol: %+v", p)
	}
	if !p.Steps[0].FatalOnFailure {
		t.Fatal("expected first step fatal")
	}
}

func TestParseSeedsRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing project": "protocols:\n  - steps:\n      - kind: chat-provision\n",
		"no steps":        "protocols:\n  - project_id: PROJ-X\n",
		"missing kind":    "protocols:\n  - project_id: PROJ-X\n    steps:\n      - target_system: gchat\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSeedSkipsExisting(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Create(context.Background(), "PROJ-ALPHA", testSteps()); err != nil {
		t.Fatalf("create: %v", err)
	}
	seeds := []core.Protocol{
		{ProjectID: "PROJ-ALPHA", Steps: testSteps()[:1]},
		{ProjectID: "PROJ-GAMMA", Steps: testSteps()},
	}
	if err := Seed(context.Background(), store, seeds); err != nil {
		t.Fatalf("seed: %v", err)
	}
	existing, _ := store.Get(context.Background(), "PROJ-ALPHA")
	if len(existing.Steps) != 2 {
		t.Fatal("seed must not overwrite existing protocols")
	}
	if _, err := store.Get(context.Background(), "PROJ-GAMMA"); err != nil {
		t.Fatalf("expected seeded protocol: %v", err)
	}
}
