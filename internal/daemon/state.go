package daemon

// Phase is where the supervisor is in the daemon lifecycle.
type Phase int

const (
	Stopped Phase = iota
	Starting
	Running
	Failed
)

func (p Phase) String() string {
	switch p {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the supervisor's observable state. Reason is only set when Phase
// is Failed.
type State struct {
	Phase  Phase
	Reason string
}

func (s State) String() string {
	if s.Phase == Failed {
		return "failed: " + s.Reason
	}
	return s.Phase.String()
}

// CanStart reports whether Start would begin a new startup attempt.
func (s State) CanStart() bool {
	return s.Phase == Stopped || s.Phase == Failed
}

// StateChangedMsg is emitted on every state transition.
type StateChangedMsg struct {
	State State
}

// Failure reasons reported in State.Reason.
const (
	ReasonBinaryNotFound = "Daemon binary not found"
	ReasonStartupTimeout = "Daemon startup timeout"
)
