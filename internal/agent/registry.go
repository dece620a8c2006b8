package agent

import (
	"fmt"
	"sort"
)

// Well-known agent identifiers.
const (
	NameGeneral    = "general"
	NameRisk       = "risk"
	NameIncident   = "incident"
	NameCompliance = "compliance"
	NameReporting  = "reporting"
)

// priorityOrder breaks ties in agent selection and fixes execution order so
// routing is deterministic for identical classifier output.
var priorityOrder = map[string]int{
	NameIncident:   0,
	NameRisk:       1,
	NameCompliance: 2,
	NameReporting:  3,
	NameGeneral:    4,
}

// Registry holds the live agents keyed by id. The set is fixed at startup;
// lookups at turn time never mutate it, so no locking is needed.
type Registry struct {
	agents map[string]Agent
}

// NewRegistry builds a registry. The general agent is mandatory: it is the
// guaranteed default arm every unknown or unavailable id falls back to.
func NewRegistry(agents ...Agent) (*Registry, error) {
	r := &Registry{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		if _, dup := r.agents[a.Name()]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", a.Name())
		}
		r.agents[a.Name()] = a
	}
	if _, ok := r.agents[NameGeneral]; !ok {
		return nil, fmt.Errorf("registry requires a %q agent", NameGeneral)
	}
	return r, nil
}

// Get returns the agent registered under id.
func (r *Registry) Get(id string) (Agent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// Resolve maps classifier-proposed ids to live agents. Unknown ids are
// substituted with the general agent and reported as degraded routing;
// resolution never fails. The result is deduplicated and ordered by the
// fixed priority so identical inputs always produce identical routing.
func (r *Registry) Resolve(ids []string) (agents []Agent, degraded bool) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		a, ok := r.agents[id]
		if !ok {
			degraded = true
			a = r.agents[NameGeneral]
		}
		if seen[a.Name()] {
			continue
		}
		seen[a.Name()] = true
		agents = append(agents, a)
	}
	if len(agents) == 0 {
		agents = append(agents, r.agents[NameGeneral])
	}

	sort.SliceStable(agents, func(i, j int) bool {
		return PriorityRank(agents[i].Name()) < PriorityRank(agents[j].Name())
	})
	return agents, degraded
}

// PriorityRank returns an agent id's position in the fixed priority
// ordering; unknown ids sort last.
func PriorityRank(name string) int {
	if rank, ok := priorityOrder[name]; ok {
		return rank
	}
	return len(priorityOrder)
}
