package transcript

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/koscakluka/ema-transcript/core/conversations"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type documentKind string

const (
	documentKindInitial    documentKind = "initial"
	documentKindCheckpoint documentKind = "checkpoint"
	documentKindFinal      documentKind = "final"
)

type checkpointRequest struct {
	kind     documentKind
	reason   string
	snapshot conversations.Snapshot
}

// checkpointWriter writes checkpoints one at a time, off the event loop.
// Requests are coalesced, only the newest pending snapshot is written, so an
// older snapshot can never overwrite a newer one.
type checkpointWriter struct {
	mu      sync.Mutex
	pending *checkpointRequest

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	stopOnce sync.Once
	write    func(context.Context, checkpointRequest) error
}

func newCheckpointWriter(write func(context.Context, checkpointRequest) error) *checkpointWriter {
	return &checkpointWriter{
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		write: write,
	}
}

func (w *checkpointWriter) submit(request checkpointRequest) {
	w.mu.Lock()
	w.pending = &request
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *checkpointWriter) take() *checkpointRequest {
	w.mu.Lock()
	defer w.mu.Unlock()

	request := w.pending
	w.pending = nil
	return request
}

func (w *checkpointWriter) run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			return
		case <-w.wake:
			if request := w.take(); request != nil {
				// Failures are reported by write, the next checkpoint retries
				// with the then current state.
				_ = w.write(ctx, *request)
			}
		}
	}
}

// shutdown waits for an in-flight write to finish. Pending requests are
// dropped, the final write supersedes them.
func (w *checkpointWriter) shutdown(started bool) {
	w.stopOnce.Do(func() { close(w.stop) })
	if started {
		<-w.done
	}
}

// checkpoint snapshots the store and hands it to the writer. It must only be
// called from the event loop.
func (s *Session) checkpoint(ctx context.Context, reason string) {
	if s.store.len() == 0 {
		return
	}

	snapshot, err := s.snapshot()
	if err != nil {
		logger.ErrorContext(ctx, "failed to snapshot conversation", "conversation_id", s.conversationID, "error", err)
		return
	}
	s.writer.submit(checkpointRequest{kind: documentKindCheckpoint, reason: reason, snapshot: snapshot})
}

func (s *Session) snapshot() (conversations.Snapshot, error) {
	exchanges, err := s.store.all()
	if err != nil {
		return conversations.Snapshot{}, err
	}

	return conversations.Snapshot{
		ConversationID: s.conversationID,
		ParticipantID:  s.participantID,
		StartTime:      s.startTime,
		EndTime:        s.now(),
		Exchanges:      exchanges,
	}, nil
}

// writeDocument reconciles the snapshot and writes it through the gateway.
// Writes are never cancelled with the session, only bounded by the write
// timeout.
func (s *Session) writeDocument(ctx context.Context, request checkpointRequest) error {
	ctx = context.WithoutCancel(ctx)
	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "write conversation document", trace.WithAttributes(
		attribute.String("conversation.id", s.conversationID),
		attribute.String("document.kind", string(request.kind)),
		attribute.String("document.reason", request.reason),
		attribute.Int("document.exchanges", len(request.snapshot.Exchanges)),
	))
	defer span.End()

	var document conversations.Document
	switch request.kind {
	case documentKindInitial:
		document = conversations.NewInitialDocument(request.snapshot)
	case documentKindFinal:
		document = conversations.NewFinalDocument(request.snapshot)
	default:
		document = conversations.NewCheckpointDocument(request.snapshot)
	}

	kindAttribute := metric.WithAttributes(attribute.String("kind", string(request.kind)))
	startedAt := time.Now()
	err := s.gateway.UpsertConversation(ctx, s.conversationID, s.participantID, document)
	s.metrics.checkpointDuration.Record(ctx, time.Since(startedAt).Seconds(), kindAttribute)
	if err != nil {
		err = fmt.Errorf("failed to write %s document for conversation %s: %w", request.kind, s.conversationID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.checkpointFailures.Add(ctx, 1, kindAttribute)
		logger.ErrorContext(ctx, "failed to write conversation document",
			"conversation_id", s.conversationID,
			"kind", string(request.kind),
			"reason", request.reason,
			"error", err)
		return err
	}

	s.metrics.checkpointWrites.Add(ctx, 1, kindAttribute)
	logger.InfoContext(ctx, "wrote conversation document",
		"conversation_id", s.conversationID,
		"kind", string(request.kind),
		"reason", request.reason,
		"exchanges", len(document.ConversationData.Exchanges))
	return nil
}
