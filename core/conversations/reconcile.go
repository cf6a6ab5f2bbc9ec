package conversations

import (
	"strings"

	"github.com/koscakluka/ema-transcript/internal/utils"
)

// Reconcile derives the turn based and clean pairs views from a
// chronologically ordered exchange sequence.
//
// Reconcile is pure: it never mutates exchanges and always produces the same
// view for the same input, so callers should rerun it on the full sequence
// instead of trying to update a previous view.
func Reconcile(exchanges []Exchange) TurnView {
	view := TurnView{
		Chronological: make([]Exchange, len(exchanges)),
		Turns:         []Turn{},
		CleanPairs:    []Pair{},
	}
	copy(view.Chronological, exchanges)

	remaining := exchanges
	var lastRole Role
	if len(remaining) > 0 && remaining[0].Role == RoleAgent {
		// An opening agent message (usually a greeting) always stands alone
		greeting := remaining[0]
		view.Turns = append(view.Turns, Turn{Agent: utils.Ptr(greeting.Text), Timestamp: greeting.Timestamp})
		view.CleanPairs = append(view.CleanPairs, Pair{Exchange: greeting})
		lastRole = RoleAgent
		remaining = remaining[1:]
	}

	view.Turns = append(view.Turns, buildTurns(remaining)...)

	pairs := pairBuilder{lastRole: lastRole}
	for i, exchange := range remaining {
		pairs.add(exchange)
		if i == len(remaining)-1 || remaining[i+1].Role != exchange.Role {
			pairs.flush()
		}
	}
	pairs.flushRemaining()
	view.CleanPairs = append(view.CleanPairs, pairs.pairs...)

	return view
}

func buildTurns(exchanges []Exchange) []Turn {
	turns := []Turn{}
	current := Turn{}
	for _, exchange := range exchanges {
		switch exchange.Role {
		case RoleUser:
			if current.User != nil {
				turns = append(turns, current)
				current = Turn{}
			}
			current.User = utils.Ptr(exchange.Text)
			current.Timestamp = exchange.Timestamp

		case RoleAgent:
			if current.User == nil || current.Agent != nil {
				turns = append(turns, Turn{Agent: utils.Ptr(exchange.Text), Timestamp: exchange.Timestamp})
				continue
			}
			current.Agent = utils.Ptr(exchange.Text)
			turns = append(turns, current)
			current = Turn{}
		}
	}

	if current.User != nil {
		turns = append(turns, current)
	}
	return turns
}

// pairBuilder accumulates same-role runs and emits them as merged pairs so
// that emitted roles alternate.
type pairBuilder struct {
	pairs       []Pair
	lastRole    Role
	userBuffer  []Exchange
	agentBuffer []Exchange
}

func (b *pairBuilder) add(exchange Exchange) {
	switch exchange.Role {
	case RoleUser:
		b.userBuffer = append(b.userBuffer, exchange)
	case RoleAgent:
		b.agentBuffer = append(b.agentBuffer, exchange)
	}
}

// flush emits buffered runs that keep the pairs alternating. A run that would
// break alternation stays buffered.
func (b *pairBuilder) flush() {
	if len(b.userBuffer) > 0 && (b.lastRole == "" || b.lastRole == RoleAgent) {
		b.pairs = append(b.pairs, mergeUserRun(b.userBuffer))
		b.userBuffer = nil
		b.lastRole = RoleUser
	}

	if len(b.agentBuffer) > 0 && b.lastRole == RoleUser {
		b.pairs = append(b.pairs, mergeAgentRun(b.agentBuffer))
		b.agentBuffer = nil
		b.lastRole = RoleAgent
	}
}

// flushRemaining emits whatever is still buffered, even if that breaks
// alternation. Capturing the content wins over strict alternation at the tail.
func (b *pairBuilder) flushRemaining() {
	if len(b.userBuffer) > 0 {
		b.pairs = append(b.pairs, mergeUserRun(b.userBuffer))
		b.userBuffer = nil
		b.lastRole = RoleUser
	}
	if len(b.agentBuffer) > 0 {
		b.pairs = append(b.pairs, mergeAgentRun(b.agentBuffer))
		b.agentBuffer = nil
		b.lastRole = RoleAgent
	}
}

func mergeUserRun(run []Exchange) Pair {
	texts := make([]string, 0, len(run))
	for _, exchange := range run {
		texts = append(texts, exchange.Text)
	}

	return Pair{Exchange: Exchange{
		Role:      RoleUser,
		Text:      strings.Join(texts, " "),
		Timestamp: run[0].Timestamp,
	}}
}

// mergeAgentRun keeps the last complete response of the run and attaches the
// interrupted attempts to it. If the agent never completed a response, the
// last interrupted attempt is used and the pair itself is marked interrupted.
func mergeAgentRun(run []Exchange) Pair {
	var interrupted []string
	var final *Exchange
	for i := range run {
		if run[i].WasInterrupted {
			interrupted = append(interrupted, run[i].Text)
		} else {
			final = &run[i]
		}
	}

	if final != nil {
		return Pair{
			Exchange:             Exchange{Role: RoleAgent, Text: final.Text, Timestamp: final.Timestamp},
			InterruptedResponses: interrupted,
		}
	}

	return Pair{Exchange: Exchange{
		Role:           RoleAgent,
		Text:           interrupted[len(interrupted)-1],
		Timestamp:      run[len(run)-1].Timestamp,
		WasInterrupted: true,
	}}
}
