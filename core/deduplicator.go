package transcript

import "github.com/koscakluka/ema-transcript/core/conversations"

// deduplicator drops agent text that was already recorded. The agent's
// utterances are usually reported through more than one notification path.
// User text is never deduplicated.
type deduplicator struct {
	lastAgentText *string
}

// accept reports whether the exchange should be recorded.
func (d *deduplicator) accept(exchange conversations.Exchange) bool {
	if exchange.Role != conversations.RoleAgent {
		return true
	}

	if d.lastAgentText != nil && *d.lastAgentText == exchange.Text {
		return false
	}

	text := exchange.Text
	d.lastAgentText = &text
	return true
}
