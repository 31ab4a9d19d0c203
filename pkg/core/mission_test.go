package core

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Mode
		want     bool
	}{
		{ModePending, ModeProtocolCreation, true},
		{ModePending, ModeExecution, true},
		{ModePending, ModeFailed, true},
		{ModePending, ModeCompleted, false},
		{ModePending, ModeBlocked, false},
		{ModeProtocolCreation, ModeExecution, true},
		{ModeProtocolCreation, ModeFailed, true},
		{ModeProtocolCreation, ModeCompleted, false},
		{ModeProtocolCreation, ModeProtocolCreation, false},
		{ModeExecution, ModeBlocked, true},
		{ModeExecution, ModeCompleted, true},
		{ModeExecution, ModeFailed, true},
		{ModeExecution, ModeProtocolCreation, false},
		{ModeBlocked, ModeFailed, true},
		{ModeBlocked, ModeExecution, false},
		{ModeBlocked, ModeCompleted, false},
		{ModeCompleted, ModeFailed, false},
		{ModeFailed, ModeExecution, false},
		{ModeFailed, ModeFailed, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestModeTerminal(t *testing.T) {
	terminal := map[Mode]bool{
		ModePending:          false,
		ModeProtocolCreation: false,
		ModeExecution:        false,
		ModeBlocked:          false,
		ModeCompleted:        true,
		ModeFailed:           true,
	}
	for mode, want := range terminal {
		if got := mode.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", mode, got, want)
		}
	}
}

func TestNewMissionDefaults(t *testing.T) {
	m := NewMission("maria.rosa@enterprise.com", "PROJ-ALPHA")
	if m.ID == "" {
		t.Fatal("expected generated mission id")
	}
	if m.TraceID == "" {
		t.Fatal("expected generated trace id")
	}
	if m.Mode != ModePending {
		t.Fatalf("new mission mode = %s, want %s", m.Mode, ModePending)
	}
	if m.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}
}

func TestCloneIsolatesStepResults(t *testing.T) {
	m := NewMission("maria.rosa@enterprise.com", "PROJ-ALPHA")
	m.StepResults = []StepResult{{StepIndex: 0, Status: StepStatusSuccess, Detail: "ok"}}

	c := m.Clone()
	c.StepResults[0].Detail = "mutated"
	c.StepResults = append(c.StepResults, StepResult{StepIndex: 1})

	if m.StepResults[0].Detail != "ok" {
		t.Fatalf("clone mutation leaked into original: %q", m.StepResults[0].Detail)
	}
	if len(m.StepResults) != 1 {
		t.Fatalf("original step results = %d, want 1", len(m.StepResults))
	}
}
