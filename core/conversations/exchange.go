package conversations

import (
	"slices"
	"time"
)

// Role identifies which party produced an utterance.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAgent
}

// Exchange is a single utterance attributed to one role.
type Exchange struct {
	Role      Role      `json:"role" jsonschema:"enum=user,enum=agent"`
	Text      string    `json:"text" jsonschema:"minLength=1"`
	Timestamp time.Time `json:"timestamp"`
	// WasInterrupted is only ever set on agent exchanges whose delivery was
	// cut short by the other speaker.
	WasInterrupted bool `json:"was_interrupted,omitempty"`
}

// SortExchanges orders exchanges by timestamp in place. Exchanges with equal
// timestamps keep their relative order.
func SortExchanges(exchanges []Exchange) {
	slices.SortStableFunc(exchanges, func(a, b Exchange) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}
