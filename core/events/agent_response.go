package events

const (
	// KindAgentUtteranceCommitted identifies committed agent text.
	KindAgentUtteranceCommitted Kind = "agent_response.utterance_committed"
	// KindDirectMessage identifies an utterance injected by the system itself.
	KindDirectMessage Kind = "agent_response.direct_message"
)

// AgentUtteranceCommitted carries committed agent text.
//
// The same utterance is commonly reported by more than one notification path,
// Source names the path for diagnostics.
type AgentUtteranceCommitted struct {
	Base
	Text   string
	Source string
}

// NewAgentUtteranceCommitted creates an agent utterance committed event.
func NewAgentUtteranceCommitted(text string, source string, opts ...BaseOption) AgentUtteranceCommitted {
	return AgentUtteranceCommitted{Base: NewBase(KindAgentUtteranceCommitted, opts...), Text: text, Source: source}
}

// DirectMessage carries text the system makes the agent say directly, e.g.
// an opening greeting. It is recorded before it is actually spoken.
type DirectMessage struct {
	Base
	Text string
}

// NewDirectMessage creates a direct message event.
func NewDirectMessage(text string, opts ...BaseOption) DirectMessage {
	return DirectMessage{Base: NewBase(KindDirectMessage, opts...), Text: text}
}
