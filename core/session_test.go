package transcript

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-transcript/core/conversations"
	"github.com/koscakluka/ema-transcript/core/persistence"
)

func TestSessionRecordsInterruptedResponse(t *testing.T) {
	gateway := newRecordingGateway()
	s := NewSession("participant-1",
		WithConversationID("conversation-1"),
		WithGateway(gateway),
		WithCheckpointInterval(0),
		WithClock(newStepClock().now),
	)
	s.Start(context.Background())

	mustRecord(t, s.RecordDirectMessage("Hi"))
	mustRecord(t, s.RecordUserUtterance("wait"))
	mustRecord(t, s.RecordAgentSpeechStarted())
	mustRecord(t, s.RecordAgentInterrupted())
	mustRecord(t, s.RecordAgentSpeechStopped(text("Let me ex-")))
	mustRecord(t, s.RecordAgentUtterance("Let me ex-", "conversation_item"))
	mustRecord(t, s.RecordAgentSpeechStarted())
	mustRecord(t, s.RecordAgentSpeechStopped(text("Let me explain fully")))
	mustRecord(t, s.RecordAgentUtterance("Let me explain fully", "conversation_item"))

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("failed to close session: %v", err)
	}

	document, err := gateway.GetConversation(context.Background(), "conversation-1")
	if err != nil {
		t.Fatalf("failed to read final document: %v", err)
	}

	data := document.ConversationData
	if !data.Metadata.Finalized {
		t.Fatalf("expected final document to be marked finalized")
	}
	if document.ParticipantID != "participant-1" || data.Metadata.ParticipantID != "participant-1" {
		t.Fatalf("expected participant id on the document, got %+v", document)
	}
	if len(data.RawChronological) != 4 {
		t.Fatalf("expected 4 raw exchanges, got %d: %+v", len(data.RawChronological), data.RawChronological)
	}
	if !data.RawChronological[2].WasInterrupted {
		t.Fatalf("expected cut short response to be marked interrupted: %+v", data.RawChronological[2])
	}
	if data.RawChronological[3].WasInterrupted {
		t.Fatalf("expected full response not to be marked interrupted: %+v", data.RawChronological[3])
	}

	if len(data.Exchanges) != 3 {
		t.Fatalf("expected 3 clean pairs, got %d: %+v", len(data.Exchanges), data.Exchanges)
	}
	response := data.Exchanges[2]
	if response.Text != "Let me explain fully" {
		t.Fatalf("expected final response text, got %q", response.Text)
	}
	if len(response.InterruptedResponses) != 1 || response.InterruptedResponses[0] != "Let me ex-" {
		t.Fatalf("expected interrupted responses [Let me ex-], got %v", response.InterruptedResponses)
	}
	if data.StructuredFormat == nil || len(data.StructuredFormat.Turns) == 0 {
		t.Fatalf("expected structured format on the final document")
	}
}

func TestSessionSuppressesDuplicateAgentText(t *testing.T) {
	s := NewSession("participant-1", WithCheckpointInterval(0), WithClock(newStepClock().now))
	s.Start(context.Background())
	defer s.Close(context.Background())

	mustRecord(t, s.RecordAgentUtterance("Sure", "speech_handle"))
	mustRecord(t, s.RecordAgentUtterance("Sure", "conversation_item"))

	exchanges, err := s.Exchanges(context.Background())
	if err != nil {
		t.Fatalf("failed to read exchanges: %v", err)
	}
	if len(exchanges) != 1 {
		t.Fatalf("expected a single stored exchange, got %d", len(exchanges))
	}
}

func TestSessionClearsInterruptionWhenStopHasNoText(t *testing.T) {
	s := NewSession("participant-1", WithCheckpointInterval(0), WithClock(newStepClock().now))
	s.Start(context.Background())
	defer s.Close(context.Background())

	mustRecord(t, s.RecordDirectMessage("Hi"))
	mustRecord(t, s.RecordUserUtterance("question"))
	mustRecord(t, s.RecordAgentSpeechStarted())
	mustRecord(t, s.RecordAgentInterrupted())
	mustRecord(t, s.RecordAgentSpeechStopped(nil))
	mustRecord(t, s.RecordUserUtterance("sorry, go on"))
	mustRecord(t, s.RecordAgentSpeechStarted())
	mustRecord(t, s.RecordAgentSpeechStopped(text("Here is the full answer")))

	exchanges, err := s.Exchanges(context.Background())
	if err != nil {
		t.Fatalf("failed to read exchanges: %v", err)
	}
	if len(exchanges) != 4 {
		t.Fatalf("expected 4 exchanges, got %+v", exchanges)
	}
	for _, exchange := range exchanges {
		if exchange.WasInterrupted {
			t.Fatalf("expected no exchange to be marked interrupted, got %+v", exchange)
		}
	}

	view, err := s.View(context.Background())
	if err != nil {
		t.Fatalf("failed to read view: %v", err)
	}
	answer := view.CleanPairs[len(view.CleanPairs)-1]
	if answer.Text != "Here is the full answer" || answer.WasInterrupted || len(answer.InterruptedResponses) != 0 {
		t.Fatalf("expected a complete answer, got %+v", answer)
	}
}

func TestSessionTagsRecordedTextWhenInterruptedStopRepeatsIt(t *testing.T) {
	s := NewSession("participant-1", WithCheckpointInterval(0), WithClock(newStepClock().now))
	s.Start(context.Background())
	defer s.Close(context.Background())

	mustRecord(t, s.RecordDirectMessage("Hi"))
	mustRecord(t, s.RecordUserUtterance("wait"))
	mustRecord(t, s.RecordAgentSpeechStarted())
	mustRecord(t, s.RecordAgentUtterance("Let me ex-", "conversation_item"))
	mustRecord(t, s.RecordAgentInterrupted())
	mustRecord(t, s.RecordAgentSpeechStopped(text("Let me ex-")))
	mustRecord(t, s.RecordAgentSpeechStarted())
	mustRecord(t, s.RecordAgentSpeechStopped(text("Let me explain fully")))

	exchanges, err := s.Exchanges(context.Background())
	if err != nil {
		t.Fatalf("failed to read exchanges: %v", err)
	}
	if len(exchanges) != 4 {
		t.Fatalf("expected 4 exchanges, got %+v", exchanges)
	}
	if !exchanges[2].WasInterrupted {
		t.Fatalf("expected recorded text to be marked interrupted, got %+v", exchanges[2])
	}
	if exchanges[3].WasInterrupted {
		t.Fatalf("expected following response not to be marked interrupted, got %+v", exchanges[3])
	}
}

func TestSessionViewMergesUserBursts(t *testing.T) {
	s := NewSession("participant-1", WithCheckpointInterval(0), WithClock(newStepClock().now))
	s.Start(context.Background())
	defer s.Close(context.Background())

	mustRecord(t, s.Ingest(conversations.RoleAgent, "Hi", at(0)))
	mustRecord(t, s.Ingest(conversations.RoleUser, "one", at(1)))
	mustRecord(t, s.Ingest(conversations.RoleUser, "two", at(2)))
	mustRecord(t, s.Ingest(conversations.RoleAgent, "ok", at(3)))

	view, err := s.View(context.Background())
	if err != nil {
		t.Fatalf("failed to read view: %v", err)
	}

	if len(view.CleanPairs) != 3 {
		t.Fatalf("expected 3 clean pairs, got %+v", view.CleanPairs)
	}
	burst := view.CleanPairs[1]
	if burst.Role != conversations.RoleUser || burst.Text != "one two" || !burst.Timestamp.Equal(at(1)) {
		t.Fatalf("expected merged user burst at %v, got %+v", at(1), burst)
	}
}

func TestSessionIngestOrdersByObservedTime(t *testing.T) {
	s := NewSession("participant-1", WithCheckpointInterval(0))
	s.Start(context.Background())
	defer s.Close(context.Background())

	mustRecord(t, s.Ingest(conversations.RoleAgent, "Hi", at(5)))
	mustRecord(t, s.Ingest(conversations.RoleUser, "said first", at(1)))

	exchanges, err := s.Exchanges(context.Background())
	if err != nil {
		t.Fatalf("failed to read exchanges: %v", err)
	}
	if len(exchanges) != 2 || exchanges[0].Text != "said first" {
		t.Fatalf("expected exchanges ordered by observed time, got %+v", exchanges)
	}
}

func TestSessionRejectsInvalidInput(t *testing.T) {
	s := NewSession("participant-1", WithCheckpointInterval(0), WithClock(newStepClock().now))
	s.Start(context.Background())
	defer s.Close(context.Background())

	if err := s.Ingest("system", "hello", time.Time{}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if err := s.Ingest(conversations.RoleUser, " \t\n", time.Time{}); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}

	mustRecord(t, s.RecordUserUtterance("   "))
	mustRecord(t, s.RecordAgentSpeechStarted())
	mustRecord(t, s.RecordAgentSpeechStopped(nil))
	mustRecord(t, s.RecordAgentSpeechStopped(text("")))

	exchanges, err := s.Exchanges(context.Background())
	if err != nil {
		t.Fatalf("failed to read exchanges: %v", err)
	}
	if len(exchanges) != 0 {
		t.Fatalf("expected nothing to be recorded, got %+v", exchanges)
	}
}

func TestSessionKeepsTextUnchanged(t *testing.T) {
	s := NewSession("participant-1", WithCheckpointInterval(0), WithClock(newStepClock().now))
	s.Start(context.Background())
	defer s.Close(context.Background())

	mustRecord(t, s.RecordUserUtterance("  padded  "))

	exchanges, err := s.Exchanges(context.Background())
	if err != nil {
		t.Fatalf("failed to read exchanges: %v", err)
	}
	if len(exchanges) != 1 || exchanges[0].Text != "  padded  " {
		t.Fatalf("expected text to be stored as given, got %+v", exchanges)
	}
}

func TestSessionProcessesEventsQueuedBeforeStart(t *testing.T) {
	s := NewSession("participant-1", WithCheckpointInterval(0), WithClock(newStepClock().now))
	mustRecord(t, s.RecordUserUtterance("early"))

	s.Start(context.Background())
	defer s.Close(context.Background())

	exchanges, err := s.Exchanges(context.Background())
	if err != nil {
		t.Fatalf("failed to read exchanges: %v", err)
	}
	if len(exchanges) != 1 || exchanges[0].Text != "early" {
		t.Fatalf("expected queued event to be processed, got %+v", exchanges)
	}
}

func TestSessionWritesInitialDocument(t *testing.T) {
	gateway := newRecordingGateway()
	s := NewSession("participant-1", WithGateway(gateway), WithCheckpointInterval(0))
	s.Start(context.Background())
	defer s.Close(context.Background())

	waitForCondition(t, time.Second, "initial document", func() bool {
		return len(gateway.written()) > 0
	})

	initial := gateway.written()[0]
	if initial.ConversationData.Exchanges == nil || len(initial.ConversationData.Exchanges) != 0 {
		t.Fatalf("expected empty exchanges on the initial document, got %+v", initial.ConversationData.Exchanges)
	}
	if initial.ConversationData.Metadata.StartTime == nil {
		t.Fatalf("expected start time on the initial document")
	}
	if initial.ConversationData.Metadata.Finalized {
		t.Fatalf("expected initial document not to be finalized")
	}
}

func TestSessionDirectMessageTriggersCheckpoint(t *testing.T) {
	gateway := newRecordingGateway()
	s := NewSession("participant-1", WithGateway(gateway), WithCheckpointInterval(0))
	s.Start(context.Background())
	defer s.Close(context.Background())

	mustRecord(t, s.RecordDirectMessage("Hello, how can I help?"))

	waitForCondition(t, time.Second, "direct message checkpoint", func() bool {
		for _, document := range gateway.written() {
			if len(document.ConversationData.RawChronological) == 1 && !document.ConversationData.Metadata.Finalized {
				return true
			}
		}
		return false
	})
}

func TestSessionWritesPeriodicCheckpoints(t *testing.T) {
	gateway := newRecordingGateway()
	s := NewSession("participant-1", WithGateway(gateway), WithCheckpointInterval(20*time.Millisecond))
	s.Start(context.Background())
	defer s.Close(context.Background())

	mustRecord(t, s.RecordUserUtterance("hello"))

	waitForCondition(t, time.Second, "periodic checkpoint", func() bool {
		for _, document := range gateway.written() {
			data := document.ConversationData
			if len(data.RawChronological) == 1 && data.StructuredFormat != nil && !data.Metadata.Finalized {
				return true
			}
		}
		return false
	})
}

func TestSessionRequestCheckpoint(t *testing.T) {
	gateway := newRecordingGateway()
	s := NewSession("participant-1", WithGateway(gateway), WithCheckpointInterval(0))
	s.Start(context.Background())
	defer s.Close(context.Background())

	mustRecord(t, s.RecordUserUtterance("hello"))
	mustRecord(t, s.RequestCheckpoint())

	waitForCondition(t, time.Second, "requested checkpoint", func() bool {
		for _, document := range gateway.written() {
			if len(document.ConversationData.RawChronological) == 1 {
				return true
			}
		}
		return false
	})
}

func TestSessionRetriesFailedWriteWithFullState(t *testing.T) {
	gateway := newRecordingGateway()
	gateway.failures = 1
	s := NewSession("participant-1", WithConversationID("conversation-1"), WithGateway(gateway), WithCheckpointInterval(0))
	s.Start(context.Background())

	waitForCondition(t, time.Second, "failed initial write", func() bool {
		return gateway.attemptCount() > 0
	})

	mustRecord(t, s.RecordDirectMessage("Hi"))
	mustRecord(t, s.RecordUserUtterance("hello"))

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("expected final write to succeed, got %v", err)
	}

	document, err := gateway.GetConversation(context.Background(), "conversation-1")
	if err != nil {
		t.Fatalf("failed to read final document: %v", err)
	}
	if len(document.ConversationData.RawChronological) != 2 {
		t.Fatalf("expected full state in the final document, got %+v", document.ConversationData.RawChronological)
	}
}

func TestSessionCloseReturnsFinalWriteError(t *testing.T) {
	gateway := newRecordingGateway()
	gateway.failures = -1
	s := NewSession("participant-1", WithGateway(gateway), WithCheckpointInterval(0))
	s.Start(context.Background())

	mustRecord(t, s.RecordUserUtterance("hello"))

	err := s.Close(context.Background())
	if !errors.Is(err, errStubWrite) {
		t.Fatalf("expected stub write error, got %v", err)
	}
	if second := s.Close(context.Background()); second != err {
		t.Fatalf("expected second close to return the first result, got %v", second)
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	gateway := newRecordingGateway()
	s := NewSession("participant-1", WithConversationID("conversation-1"), WithGateway(gateway), WithCheckpointInterval(0))
	s.Start(context.Background())
	mustRecord(t, s.RecordUserUtterance("hello"))

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("failed to close session: %v", err)
	}
	writes := gateway.Writes("conversation-1")

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("expected second close to succeed, got %v", err)
	}
	if gateway.Writes("conversation-1") != writes {
		t.Fatalf("expected second close not to write again")
	}
}

func TestSessionRejectsEventsAfterClose(t *testing.T) {
	s := NewSession("participant-1", WithCheckpointInterval(0))
	s.Start(context.Background())
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("failed to close session: %v", err)
	}

	if err := s.RecordUserUtterance("too late"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := s.RequestCheckpoint(); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if s.Start(context.Background()) {
		t.Fatalf("expected closed session not to start again")
	}
}

func TestSessionLogsEventsDroppedAfterClose(t *testing.T) {
	logs := capturePackageLogs(t)

	s := NewSession("participant-1", WithConversationID("conversation-dropped"), WithCheckpointInterval(0))
	s.Start(context.Background())
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("failed to close session: %v", err)
	}

	if err := s.RecordUserUtterance("too late"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if !logs.contains("dropped event for finalised session", "conversation-dropped", "user_input.utterance_committed") {
		t.Fatalf("expected dropped event to be logged")
	}
}

func TestSessionLogsExtractionFailure(t *testing.T) {
	logs := capturePackageLogs(t)

	s := NewSession("participant-1", WithConversationID("conversation-extraction"), WithCheckpointInterval(0))
	s.Start(context.Background())
	defer s.Close(context.Background())

	mustRecord(t, s.RecordAgentSpeechStarted())
	mustRecord(t, s.RecordAgentSpeechStopped(nil))

	waitForCondition(t, time.Second, "extraction failure log", func() bool {
		return logs.contains("rejected event", "conversation-extraction", ErrExtractionFailure.Error())
	})
}

func TestSessionCloseWithoutStart(t *testing.T) {
	gateway := newRecordingGateway()
	s := NewSession("participant-1", WithConversationID("conversation-1"), WithGateway(gateway))
	mustRecord(t, s.RecordUserUtterance("hello"))

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("failed to close session: %v", err)
	}

	document, err := gateway.GetConversation(context.Background(), "conversation-1")
	if err != nil {
		t.Fatalf("failed to read final document: %v", err)
	}
	if len(document.ConversationData.Exchanges) != 1 || !document.ConversationData.Metadata.Finalized {
		t.Fatalf("expected finalized document with one pair, got %+v", document.ConversationData)
	}
	if document.ConversationData.Metadata.StartTime == nil {
		t.Fatalf("expected start time to be set")
	}
}

func TestSessionViewAfterClose(t *testing.T) {
	s := NewSession("participant-1", WithCheckpointInterval(0), WithClock(newStepClock().now))
	s.Start(context.Background())
	mustRecord(t, s.RecordDirectMessage("Hi"))
	mustRecord(t, s.RecordUserUtterance("bye"))
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("failed to close session: %v", err)
	}

	view, err := s.View(context.Background())
	if err != nil {
		t.Fatalf("failed to read view: %v", err)
	}
	if len(view.Chronological) != 2 || len(view.CleanPairs) != 2 {
		t.Fatalf("expected view of the closed session, got %+v", view)
	}
}

func TestSessionClosesWhenStartContextIsCancelled(t *testing.T) {
	gateway := newRecordingGateway()
	s := NewSession("participant-1", WithConversationID("conversation-1"), WithGateway(gateway), WithCheckpointInterval(0))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	mustRecord(t, s.RecordUserUtterance("hello"))
	cancel()

	waitForCondition(t, time.Second, "final document", func() bool {
		document, err := gateway.GetConversation(context.Background(), "conversation-1")
		return err == nil && document.ConversationData.Metadata.Finalized
	})

	if err := s.RecordUserUtterance("too late"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSessionConcurrentProducers(t *testing.T) {
	gateway := newRecordingGateway()
	s := NewSession("participant-1", WithConversationID("conversation-1"), WithGateway(gateway), WithCheckpointInterval(time.Millisecond))
	s.Start(context.Background())

	var wg sync.WaitGroup
	for producer := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 25 {
				if err := s.RecordUserUtterance(fmt.Sprintf("producer %d message %d", producer, i)); err != nil {
					t.Errorf("failed to record: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("failed to close session: %v", err)
	}

	document, err := gateway.GetConversation(context.Background(), "conversation-1")
	if err != nil {
		t.Fatalf("failed to read final document: %v", err)
	}
	if got := len(document.ConversationData.RawChronological); got != 200 {
		t.Fatalf("expected 200 recorded exchanges, got %d", got)
	}
}

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession("participant-1", WithGateway(nil), WithConversationID(""), WithClock(nil))

	if s.ConversationID() == "" {
		t.Fatalf("expected generated conversation id")
	}
	if s.ParticipantID() != "participant-1" {
		t.Fatalf("expected participant id to be kept, got %q", s.ParticipantID())
	}
	if _, ok := s.gateway.(*persistence.MemoryGateway); !ok {
		t.Fatalf("expected in-memory gateway by default, got %T", s.gateway)
	}
	if s.checkpointInterval != DefaultCheckpointInterval || s.writeTimeout != DefaultWriteTimeout {
		t.Fatalf("expected default intervals, got %v and %v", s.checkpointInterval, s.writeTimeout)
	}
	if s.now == nil {
		t.Fatalf("expected clock to be set")
	}

	other := NewSession("participant-1")
	if other.ConversationID() == s.ConversationID() {
		t.Fatalf("expected unique conversation ids")
	}
}

func mustRecord(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("failed to record: %v", err)
	}
}

func text(s string) *string { return &s }

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

// stepClock advances by a second on every reading, so events recorded one
// after another get distinct timestamps.
type stepClock struct {
	mu   sync.Mutex
	next time.Time
}

func newStepClock() *stepClock {
	return &stepClock{next: baseTime}
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.next.Add(time.Second)
	return c.next
}

var errStubWrite = errors.New("stub write failed")

// recordingGateway keeps every written document. The first failures writes
// fail, a negative value fails every write.
type recordingGateway struct {
	*persistence.MemoryGateway

	mu        sync.Mutex
	failures  int
	attempts  int
	documents []conversations.Document
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{MemoryGateway: persistence.NewMemoryGateway()}
}

func (g *recordingGateway) UpsertConversation(ctx context.Context, conversationID string, participantID string, document conversations.Document) error {
	g.mu.Lock()
	g.attempts++
	if g.failures != 0 {
		if g.failures > 0 {
			g.failures--
		}
		g.mu.Unlock()
		return errStubWrite
	}
	g.documents = append(g.documents, document)
	g.mu.Unlock()

	return g.MemoryGateway.UpsertConversation(ctx, conversationID, participantID, document)
}

func (g *recordingGateway) written() []conversations.Document {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]conversations.Document(nil), g.documents...)
}

func (g *recordingGateway) attemptCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}
