package events

const (
	// KindUserUtteranceCommitted identifies a final user utterance.
	KindUserUtteranceCommitted Kind = "user_input.utterance_committed"
)

// UserUtteranceCommitted carries the committed transcript of a user utterance.
type UserUtteranceCommitted struct {
	Base
	Text string
}

// NewUserUtteranceCommitted creates a user utterance committed event.
func NewUserUtteranceCommitted(text string, opts ...BaseOption) UserUtteranceCommitted {
	return UserUtteranceCommitted{Base: NewBase(KindUserUtteranceCommitted, opts...), Text: text}
}
