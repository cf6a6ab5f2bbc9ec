package events

import "time"

type Kind string

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

type Base struct {
	kind      Kind
	timestamp time.Time
}

type BaseOption func(*Base)

// WithTimestamp overrides the observed time of the event, e.g. when the
// transport reports when an utterance actually happened.
func WithTimestamp(timestamp time.Time) BaseOption {
	return func(b *Base) {
		if !timestamp.IsZero() {
			b.timestamp = timestamp
		}
	}
}

func NewBase(kind Kind, opts ...BaseOption) Base {
	base := Base{kind: kind, timestamp: time.Now()}
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
