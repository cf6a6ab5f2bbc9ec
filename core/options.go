package transcript

import (
	"time"

	"github.com/koscakluka/ema-transcript/core/persistence"
)

const (
	DefaultCheckpointInterval = 10 * time.Second
	DefaultWriteTimeout       = 15 * time.Second
)

type SessionOption func(*Session)

// WithConversationID uses the given ID instead of generating one.
func WithConversationID(conversationID string) SessionOption {
	return func(s *Session) {
		if conversationID != "" {
			s.conversationID = conversationID
		}
	}
}

// WithGateway sets the store conversation documents are written to. Without
// it the session keeps documents in memory only.
func WithGateway(gateway persistence.Gateway) SessionOption {
	return func(s *Session) {
		if gateway != nil {
			s.gateway = gateway
		}
	}
}

// WithCheckpointInterval sets how often an active session writes a
// checkpoint. A non-positive interval disables periodic checkpoints,
// checkpoints requested explicitly and the final write still happen.
func WithCheckpointInterval(interval time.Duration) SessionOption {
	return func(s *Session) {
		s.checkpointInterval = interval
	}
}

// WithWriteTimeout bounds a single document write. A non-positive timeout
// leaves writes bounded only by the store itself.
func WithWriteTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.writeTimeout = timeout
	}
}

// WithClock replaces the wall clock used for ingestion and checkpoint times.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}
