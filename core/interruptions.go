package transcript

type interruptionState string

const (
	interruptionStateIdle          interruptionState = "idle"
	interruptionStateAgentSpeaking interruptionState = "agent_speaking"
	interruptionStateInterrupted   interruptionState = "interrupted"
)

// interruptionTracker follows the agent's speaking state, which arrives as
// notifications separate from the spoken text. An interruption only tags the
// utterance whose stop notification ends it.
type interruptionTracker struct {
	state interruptionState
}

func newInterruptionTracker() interruptionTracker {
	return interruptionTracker{state: interruptionStateIdle}
}

func (t *interruptionTracker) agentStarted() {
	t.state = interruptionStateAgentSpeaking
}

// agentInterrupted reports whether the interruption applied, it is only
// meaningful while the agent is speaking.
func (t *interruptionTracker) agentInterrupted() bool {
	if t.state != interruptionStateAgentSpeaking {
		return false
	}

	t.state = interruptionStateInterrupted
	return true
}

// agentStopped returns to idle and reports whether the utterance that just
// ended was interrupted. The interruption is cleared either way.
func (t *interruptionTracker) agentStopped() (wasInterrupted bool) {
	wasInterrupted = t.state == interruptionStateInterrupted
	t.state = interruptionStateIdle
	return wasInterrupted
}
