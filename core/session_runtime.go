package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/koscakluka/ema-transcript/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type queueItem struct {
	event    events.Event
	queuedAt time.Time

	// control runs on the event loop instead of an event, it is used for
	// reads and checkpoint requests that must see a consistent store.
	control func(ctx context.Context)
}

// mailbox is an unbounded queue, pushing never blocks the caller.
type mailbox struct {
	mu     sync.Mutex
	items  []queueItem
	closed bool
	wake   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (m *mailbox) push(item queueItem) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, item)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) drain() []queueItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items
	m.items = nil
	return items
}

// close stops accepting new items, already queued ones can still be drained.
func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mailbox) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// run is the session's single writer. Every mutation of the store,
// deduplicator and interruption tracker happens here.
func (s *Session) run(ctx context.Context) {
	defer close(s.loopDone)

	var ticks <-chan time.Time
	if s.checkpointInterval > 0 {
		ticker := time.NewTicker(s.checkpointInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-s.stopLoop:
			s.processQueued(ctx, s.mailbox.drain())
			return
		case <-s.mailbox.wake:
			s.processQueued(ctx, s.mailbox.drain())
		case <-ticks:
			s.checkpoint(ctx, "interval")
		}
	}
}

func (s *Session) processQueued(ctx context.Context, items []queueItem) {
	for _, item := range items {
		if item.control != nil {
			item.control(ctx)
			continue
		}

		span := trace.SpanFromContext(ctx)
		if span.IsRecording() {
			span.AddEvent("processing queued event", trace.WithAttributes(
				attribute.String("event.kind", string(item.event.Kind())),
				attribute.Float64("event.queued_time", time.Since(item.queuedAt).Seconds()),
			))
		}
		s.handleEvent(ctx, item.event)
	}
}
