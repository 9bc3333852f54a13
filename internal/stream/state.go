package stream

// State is the lifecycle state of one streaming task.
type State int

const (
	StateIdle State = iota
	StateCheckingAvailability
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

var stateNames = map[State]string{
	StateIdle:                 "idle",
	StateCheckingAvailability: "checking_availability",
	StateStreaming:            "streaming",
	StateCompleted:            "completed",
	StateFailed:               "failed",
	StateCancelled:            "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the task is finished in this state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}
