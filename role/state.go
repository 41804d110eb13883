package role

// State is the lifecycle state of a role. The cycle is
// Idle -> Observing -> Thinking -> Acting -> Idle; Terminated is terminal
// and reachable from any state via Stop or context cancellation.
type State int

const (
	// StateIdle means the role is between cycles.
	StateIdle State = iota
	// StateObserving means the role is pulling new deliveries into memory.
	StateObserving
	// StateThinking means the role is selecting its next action.
	StateThinking
	// StateActing means the role is executing the selected action.
	StateActing
	// StateTerminated means the role has stopped permanently.
	StateTerminated
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateObserving:
		return "observing"
	case StateThinking:
		return "thinking"
	case StateActing:
		return "acting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
