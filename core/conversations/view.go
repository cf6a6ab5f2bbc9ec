package conversations

import "time"

// Pair is a single entry of the clean pairs transcript.
type Pair struct {
	Exchange
	// InterruptedResponses holds agent attempts that were cut short before
	// the final response in the same agent run.
	InterruptedResponses []string `json:"interrupted_responses,omitempty"`
}

// Turn is a traditional user-then-agent grouping. Either side may be nil for
// unmatched messages.
type Turn struct {
	User      *string   `json:"user"`
	Agent     *string   `json:"agent"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnView holds every view derived from a chronological exchange sequence.
// It is always recomputed from scratch, never patched.
type TurnView struct {
	Chronological []Exchange `json:"chronological"`
	Turns         []Turn     `json:"turns"`
	CleanPairs    []Pair     `json:"clean_pairs"`
}
