package agent

import (
	"context"
	"testing"
)

type stubAgent struct{ name string }

func (s *stubAgent) Name() string        { return s.name }
func (s *stubAgent) Description() string { return s.name + " agent" }
func (s *stubAgent) Execute(context.Context, *Task, *RunContext) (*Response, error) {
	return &Response{AgentName: s.name}, nil
}

func newTestRegistry(t *testing.T, names ...string) *Registry {
	t.Helper()
	agents := make([]Agent, len(names))
	for i, n := range names {
		agents[i] = &stubAgent{name: n}
	}
	r, err := NewRegistry(agents...)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestNewRegistry_RequiresGeneral(t *testing.T) {
	if _, err := NewRegistry(&stubAgent{name: NameRisk}); err == nil {
		t.Error("registry without a general agent should be rejected")
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(&stubAgent{name: NameGeneral}, &stubAgent{name: NameGeneral})
	if err == nil {
		t.Error("duplicate agent ids should be rejected")
	}
}

func TestResolve_UnknownSubstitutesGeneral(t *testing.T) {
	r := newTestRegistry(t, NameGeneral, NameRisk)

	agents, degraded := r.Resolve([]string{"foo"})
	if !degraded {
		t.Error("unknown id must flag degraded routing")
	}
	if len(agents) != 1 || agents[0].Name() != NameGeneral {
		t.Errorf("agents = %v, want just general", names(agents))
	}
}

func TestResolve_KnownAgentNotDegraded(t *testing.T) {
	r := newTestRegistry(t, NameGeneral, NameRisk)

	agents, degraded := r.Resolve([]string{NameRisk})
	if degraded {
		t.Error("known id must not flag degraded routing")
	}
	if len(agents) != 1 || agents[0].Name() != NameRisk {
		t.Errorf("agents = %v", names(agents))
	}
}

func TestResolve_PriorityOrderingIsDeterministic(t *testing.T) {
	r := newTestRegistry(t, NameGeneral, NameRisk, NameIncident, NameCompliance)

	// Same set, different classifier orderings: resolution must agree.
	first, _ := r.Resolve([]string{NameCompliance, NameIncident, NameRisk})
	second, _ := r.Resolve([]string{NameRisk, NameCompliance, NameIncident})

	want := []string{NameIncident, NameRisk, NameCompliance}
	for i, w := range want {
		if first[i].Name() != w || second[i].Name() != w {
			t.Fatalf("ordering = %v / %v, want %v", names(first), names(second), want)
		}
	}
}

func TestResolve_DeduplicatesAfterSubstitution(t *testing.T) {
	r := newTestRegistry(t, NameGeneral)

	// Two unknown ids both map to general; it must appear once.
	agents, degraded := r.Resolve([]string{"foo", "bar"})
	if !degraded {
		t.Error("expected degraded routing")
	}
	if len(agents) != 1 {
		t.Errorf("agents = %v, want single general", names(agents))
	}
}

func TestResolve_EmptyInputFallsBackToGeneral(t *testing.T) {
	r := newTestRegistry(t, NameGeneral, NameRisk)

	agents, _ := r.Resolve(nil)
	if len(agents) != 1 || agents[0].Name() != NameGeneral {
		t.Errorf("agents = %v, want general fallback", names(agents))
	}
}

func names(agents []Agent) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.Name()
	}
	return out
}
