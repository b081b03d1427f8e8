package orchestrator

// State is a position in the per-request state machine.
type State int

const (
	StateInit State = iota
	StateDispatched
	StateStreaming
	StateToolPending
	StateAborted
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateDispatched:
		return "dispatched"
	case StateStreaming:
		return "streaming"
	case StateToolPending:
		return "tool_pending"
	case StateAborted:
		return "aborted"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateAborted || s == StateCompleted || s == StateFailed
}
