package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/koscakluka/ema-transcript/core/conversations"
	"github.com/koscakluka/ema-transcript/core/events"
	"github.com/koscakluka/ema-transcript/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const logTextLength = 50

// handleEvent applies a single event to the session state. It must only be
// called from the event loop.
func (s *Session) handleEvent(ctx context.Context, event events.Event) {
	switch e := event.(type) {
	case events.UserUtteranceCommitted:
		s.record(ctx, conversations.RoleUser, e.Text, e.Timestamp(), false)

	case events.AgentUtteranceCommitted:
		s.record(ctx, conversations.RoleAgent, e.Text, e.Timestamp(), false)

	case events.DirectMessage:
		if s.record(ctx, conversations.RoleAgent, e.Text, e.Timestamp(), false) {
			s.checkpoint(ctx, "direct message")
		}

	case events.AgentSpeechStarted:
		s.interruptions.agentStarted()

	case events.AgentSpeechInterrupted:
		if !s.interruptions.agentInterrupted() {
			logger.DebugContext(ctx, "ignored interruption while agent was not speaking",
				"conversation_id", s.conversationID,
				"state", string(s.interruptions.state))
		}

	case events.AgentSpeechStopped:
		wasInterrupted := s.interruptions.agentStopped()
		if e.FinalText == nil || strings.TrimSpace(*e.FinalText) == "" {
			s.reject(ctx, string(event.Kind()), ErrExtractionFailure)
			return
		}
		s.record(ctx, conversations.RoleAgent, *e.FinalText, e.Timestamp(), wasInterrupted)

	default:
		logger.WarnContext(ctx, "skipped event of unknown kind",
			"conversation_id", s.conversationID,
			"kind", string(event.Kind()))
	}
}

// normalise validates an utterance and turns it into an exchange. Text is
// kept as given, trimming only decides whether it is empty.
func (s *Session) normalise(role conversations.Role, text string, observedTime time.Time) (conversations.Exchange, error) {
	if !role.Valid() {
		return conversations.Exchange{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if strings.TrimSpace(text) == "" {
		return conversations.Exchange{}, ErrEmptyText
	}
	if observedTime.IsZero() {
		observedTime = s.now()
	}

	return conversations.Exchange{Role: role, Text: text, Timestamp: observedTime}, nil
}

// record ingests an utterance and reports whether it was appended. An
// interrupted duplicate tags the exchange already stored for the same text.
func (s *Session) record(ctx context.Context, role conversations.Role, text string, observedTime time.Time, wasInterrupted bool) bool {
	exchange, err := s.normalise(role, text, observedTime)
	if err != nil {
		s.reject(ctx, string(role), err)
		return false
	}
	exchange.WasInterrupted = wasInterrupted && role == conversations.RoleAgent

	if !s.deduplicator.accept(exchange) {
		if exchange.WasInterrupted && s.store.markInterrupted(exchange.Text) {
			logger.InfoContext(ctx, "marked recorded agent exchange as interrupted",
				"conversation_id", s.conversationID,
				"text", utils.Truncate(exchange.Text, logTextLength))
		}
		s.metrics.suppressedDuplicates.Add(ctx, 1)
		logger.InfoContext(ctx, "skipped duplicate agent exchange",
			"conversation_id", s.conversationID,
			"text", utils.Truncate(exchange.Text, logTextLength))
		return false
	}

	s.store.append(exchange)
	s.metrics.recordedExchanges.Add(ctx, 1, metric.WithAttributes(attribute.String("role", string(exchange.Role))))
	logger.InfoContext(ctx, "recorded exchange",
		"conversation_id", s.conversationID,
		"role", string(exchange.Role),
		"interrupted", exchange.WasInterrupted,
		"text", utils.Truncate(exchange.Text, logTextLength))
	return true
}

func (s *Session) reject(ctx context.Context, source string, err error) {
	s.metrics.rejectedEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	logger.WarnContext(ctx, "rejected event",
		"conversation_id", s.conversationID,
		"source", source,
		"error", err)
}
