package daemon

// OutcomeKind tags the result of one startup attempt.
type OutcomeKind int

const (
	// AlreadyRunning means a healthy daemon answered before anything was
	// spawned. The supervisor does not own it.
	AlreadyRunning OutcomeKind = iota
	// Spawned means this attempt started the daemon and it became healthy.
	Spawned
	// StartFailed means the attempt gave up; Reason says why.
	StartFailed
)

// Outcome is what the startup sequence hands back to the foreground.
type Outcome struct {
	Kind    OutcomeKind
	Process *Process // set for Spawned
	Reason  string   // set for StartFailed
}

func failed(reason string) Outcome {
	return Outcome{Kind: StartFailed, Reason: reason}
}
