package orchestrator

// State tracks a turn through the pipeline. Transitions are linear;
// StateFailed is reachable from anywhere and still attempts persistence.
type State int

const (
	StateReceived State = iota
	StateClassified
	StateRouted
	StateExecuting
	StateAggregating
	StatePersisted
	StateResponded
	StateFailed
)

var stateNames = map[State]string{
	StateReceived:    "received",
	StateClassified:  "classified",
	StateRouted:      "routed",
	StateExecuting:   "executing",
	StateAggregating: "aggregating",
	StatePersisted:   "persisted",
	StateResponded:   "responded",
	StateFailed:      "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
