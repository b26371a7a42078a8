package pipeline

type State int32

const (
	StateIdle State = iota
	StateDetectingLanguage
	StateResolvingChains
	StateStreamingSegments
	StateFinalizing
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateDetectingLanguage:
		return "DETECTING_LANGUAGE"
	case StateResolvingChains:
		return "RESOLVING_CHAINS"
	case StateStreamingSegments:
		return "STREAMING_SEGMENTS"
	case StateFinalizing:
		return "FINALIZING"
	case StateCompleted:
		return "COMPLETED"
	case StateCancelled:
		return "CANCELLED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal returns true for states a run never leaves.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}
