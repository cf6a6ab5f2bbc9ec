package events

const (
	// KindAgentSpeechStarted identifies the agent starting to speak.
	KindAgentSpeechStarted Kind = "agent_speech.started"
	// KindAgentSpeechStopped identifies the agent finishing (or abandoning) speech.
	KindAgentSpeechStopped Kind = "agent_speech.stopped"
	// KindAgentSpeechInterrupted identifies the other party talking over the agent.
	KindAgentSpeechInterrupted Kind = "agent_speech.interrupted"
)

// AgentSpeechStarted marks when the agent starts speaking.
type AgentSpeechStarted struct{ Base }

// NewAgentSpeechStarted creates an agent speech started event.
func NewAgentSpeechStarted(opts ...BaseOption) AgentSpeechStarted {
	return AgentSpeechStarted{Base: NewBase(KindAgentSpeechStarted, opts...)}
}

// AgentSpeechStopped marks when the agent stops speaking.
//
// FinalText is what the agent actually said, nil when the transport could not
// tell.
type AgentSpeechStopped struct {
	Base
	FinalText *string
}

// NewAgentSpeechStopped creates an agent speech stopped event carrying the
// spoken text.
func NewAgentSpeechStopped(finalText string, opts ...BaseOption) AgentSpeechStopped {
	return AgentSpeechStopped{Base: NewBase(KindAgentSpeechStopped, opts...), FinalText: &finalText}
}

// NewAgentSpeechStoppedWithoutText creates an agent speech stopped event for
// speech whose text could not be recovered.
func NewAgentSpeechStoppedWithoutText(opts ...BaseOption) AgentSpeechStopped {
	return AgentSpeechStopped{Base: NewBase(KindAgentSpeechStopped, opts...)}
}

// AgentSpeechInterrupted marks the other party starting to talk while the
// agent was speaking.
type AgentSpeechInterrupted struct{ Base }

// NewAgentSpeechInterrupted creates an agent speech interrupted event.
func NewAgentSpeechInterrupted(opts ...BaseOption) AgentSpeechInterrupted {
	return AgentSpeechInterrupted{Base: NewBase(KindAgentSpeechInterrupted, opts...)}
}
