package transcript

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-transcript/core/conversations"
	"github.com/koscakluka/ema-transcript/core/events"
	"github.com/koscakluka/ema-transcript/core/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Session records a single voice conversation between a participant and the
// agent and keeps its persisted transcript up to date.
//
// Events can be handed to a session from any goroutine, they are queued and
// applied in order by the session's own event loop.
type Session struct {
	conversationID string
	participantID  string

	gateway            persistence.Gateway
	checkpointInterval time.Duration
	writeTimeout       time.Duration
	now                func() time.Time
	metrics            sessionMetrics

	// Owned by the event loop while the session is running
	startTime     time.Time
	store         chronologicalStore
	deduplicator  deduplicator
	interruptions interruptionTracker

	mailbox *mailbox
	writer  *checkpointWriter

	startOnce sync.Once
	started   atomic.Bool
	stopLoop  chan struct{}
	loopDone  chan struct{}

	closeOnce      sync.Once
	closed         chan struct{}
	closeErr       error
	finalExchanges []conversations.Exchange
}

// NewSession creates a session for the given participant. The session does
// not process events or write anything until it is started.
func NewSession(participantID string, opts ...SessionOption) *Session {
	s := &Session{
		conversationID:     uuid.NewString(),
		participantID:      participantID,
		gateway:            persistence.NewMemoryGateway(),
		checkpointInterval: DefaultCheckpointInterval,
		writeTimeout:       DefaultWriteTimeout,
		now:                time.Now,
		metrics:            newSessionMetrics(),
		interruptions:      newInterruptionTracker(),
		mailbox:            newMailbox(),
		stopLoop:           make(chan struct{}),
		loopDone:           make(chan struct{}),
		closed:             make(chan struct{}),
	}
	s.writer = newCheckpointWriter(s.writeDocument)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Session) ConversationID() string { return s.conversationID }
func (s *Session) ParticipantID() string  { return s.participantID }

// Start records the start time, writes the initial conversation record and
// starts processing events. Events handed to the session before Start are
// processed once it starts.
//
// Cancelling ctx closes the session. Start is effective at most once and
// never after Close.
func (s *Session) Start(ctx context.Context) (started bool) {
	s.startOnce.Do(func() {
		if s.mailbox.isClosed() {
			return
		}

		started = true
		s.started.Store(true)
		s.startTime = s.now()

		go s.writer.run(ctx)
		s.writer.submit(checkpointRequest{
			kind:   documentKindInitial,
			reason: "session started",
			snapshot: conversations.Snapshot{
				ConversationID: s.conversationID,
				ParticipantID:  s.participantID,
				StartTime:      s.startTime,
			},
		})
		go s.run(ctx)

		go func() {
			select {
			case <-ctx.Done():
				_ = s.Close(context.WithoutCancel(ctx))
			case <-s.closed:
			}
		}()

		logger.InfoContext(ctx, "conversation session started",
			"conversation_id", s.conversationID,
			"participant_id", s.participantID)
	})

	return started
}

// Close finalizes the session: every event handed over before Close is
// applied, then the final document, with the clean pairs in place of the
// raw exchanges, is written. Close waits for that write and returns its
// error. Calling Close again returns the result of the first call.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.finalise(ctx)
		close(s.closed)
	})

	return s.closeErr
}

func (s *Session) finalise(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "finalise conversation")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", s.conversationID))

	s.mailbox.close()
	// Blocks a concurrent Start until it is done, and prevents a later one
	s.startOnce.Do(func() {})

	started := s.started.Load()
	if started {
		close(s.stopLoop)
		<-s.loopDone
	} else {
		s.processQueued(ctx, s.mailbox.drain())
	}
	s.writer.shutdown(started)

	if s.startTime.IsZero() {
		s.startTime = s.now()
	}

	snapshot, err := s.snapshot()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "failed to snapshot conversation for finalisation", "conversation_id", s.conversationID, "error", err)
		return err
	}
	s.finalExchanges = snapshot.Exchanges

	if err := s.writeDocument(ctx, checkpointRequest{kind: documentKindFinal, reason: "session closed", snapshot: snapshot}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	logger.InfoContext(ctx, "conversation session finalised",
		"conversation_id", s.conversationID,
		"exchanges", len(snapshot.Exchanges))
	return nil
}

// Handle queues an event for processing and returns immediately.
func (s *Session) Handle(event events.Event) error {
	if event == nil {
		return nil
	}

	if !s.mailbox.push(queueItem{event: event, queuedAt: time.Now()}) {
		logger.Warn("dropped event for finalised session",
			"conversation_id", s.conversationID,
			"kind", string(event.Kind()))
		return ErrSessionClosed
	}
	return nil
}

// Ingest validates an utterance and queues it for recording. A zero
// observedTime stands for the time of ingestion.
func (s *Session) Ingest(role conversations.Role, text string, observedTime time.Time) error {
	exchange, err := s.normalise(role, text, observedTime)
	if err != nil {
		return err
	}

	opts := []events.BaseOption{events.WithTimestamp(exchange.Timestamp)}
	if role == conversations.RoleUser {
		return s.Handle(events.NewUserUtteranceCommitted(text, opts...))
	}
	return s.Handle(events.NewAgentUtteranceCommitted(text, "ingest", opts...))
}

func (s *Session) observedNow() events.BaseOption {
	return events.WithTimestamp(s.now())
}

func (s *Session) RecordUserUtterance(text string) error {
	return s.Handle(events.NewUserUtteranceCommitted(text, s.observedNow()))
}

// RecordAgentUtterance records committed agent text. The same text reported
// by another source is recorded once.
func (s *Session) RecordAgentUtterance(text string, source string) error {
	return s.Handle(events.NewAgentUtteranceCommitted(text, source, s.observedNow()))
}

func (s *Session) RecordAgentSpeechStarted() error {
	return s.Handle(events.NewAgentSpeechStarted(s.observedNow()))
}

func (s *Session) RecordAgentInterrupted() error {
	return s.Handle(events.NewAgentSpeechInterrupted(s.observedNow()))
}

// RecordAgentSpeechStopped reports the end of agent speech. finalText is what
// was actually said, or nil when it is not known.
func (s *Session) RecordAgentSpeechStopped(finalText *string) error {
	if finalText == nil {
		return s.Handle(events.NewAgentSpeechStoppedWithoutText(s.observedNow()))
	}
	return s.Handle(events.NewAgentSpeechStopped(*finalText, s.observedNow()))
}

// RecordDirectMessage records text the system makes the agent say, e.g. a
// greeting, and writes a checkpoint right after.
func (s *Session) RecordDirectMessage(text string) error {
	return s.Handle(events.NewDirectMessage(text, s.observedNow()))
}

// RequestCheckpoint asks for a checkpoint outside the regular interval.
func (s *Session) RequestCheckpoint() error {
	if !s.mailbox.push(queueItem{control: func(ctx context.Context) { s.checkpoint(ctx, "requested") }}) {
		return ErrSessionClosed
	}
	return nil
}

// Exchanges returns the chronological exchanges recorded so far, after every
// event handed over before the call has been applied.
func (s *Session) Exchanges(ctx context.Context) ([]conversations.Exchange, error) {
	type result struct {
		exchanges []conversations.Exchange
		err       error
	}
	results := make(chan result, 1)

	if !s.mailbox.push(queueItem{control: func(context.Context) {
		exchanges, err := s.store.all()
		results <- result{exchanges: exchanges, err: err}
	}}) {
		<-s.closed
		return s.finalExchanges, nil
	}

	select {
	case r := <-results:
		return r.exchanges, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// View reconciles the exchanges recorded so far into every derived view.
func (s *Session) View(ctx context.Context) (conversations.TurnView, error) {
	exchanges, err := s.Exchanges(ctx)
	if err != nil {
		return conversations.TurnView{}, err
	}
	return conversations.Reconcile(exchanges), nil
}
