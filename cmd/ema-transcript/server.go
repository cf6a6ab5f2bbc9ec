package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	transcript "github.com/koscakluka/ema-transcript/core"
	"github.com/koscakluka/ema-transcript/core/conversations"
	"github.com/koscakluka/ema-transcript/core/persistence"
	"github.com/koscakluka/ema-transcript/core/transport/websocket"
	"github.com/koscakluka/ema-transcript/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type server struct {
	gateway persistence.Gateway
	session config.SessionConfig

	// Cancelled on shutdown to end every open session
	sessionsCtx    context.Context
	cancelSessions context.CancelFunc
	sessions       sync.WaitGroup
}

func newServer(gateway persistence.Gateway, session config.SessionConfig) *server {
	ctx, cancel := context.WithCancel(context.Background())
	return &server{
		gateway:        gateway,
		session:        session,
		sessionsCtx:    ctx,
		cancelSessions: cancel,
	}
}

func (s *server) handler(serviceName string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /v1/sessions/ws", s.handleSession)
	mux.HandleFunc("GET /v1/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("GET /v1/schema", s.handleSchema)

	return otelhttp.NewHandler(mux, serviceName)
}

// handleSession records one conversation from the events streamed over a
// websocket. The conversation is finalised when the socket closes.
func (s *server) handleSession(w http.ResponseWriter, r *http.Request) {
	participantID := r.URL.Query().Get("participant_id")
	if participantID == "" {
		writeError(w, http.StatusBadRequest, "participant_id is required")
		return
	}

	conn, err := websocket.Upgrade(w, r)
	if err != nil {
		slog.WarnContext(r.Context(), "failed to upgrade session connection", "error", err)
		return
	}

	s.sessions.Add(1)
	defer s.sessions.Done()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.sessionsCtx, cancel)
	defer stop()

	session := transcript.NewSession(participantID,
		transcript.WithConversationID(r.URL.Query().Get("conversation_id")),
		transcript.WithGateway(s.gateway),
		transcript.WithCheckpointInterval(s.session.CheckpointInterval),
		transcript.WithWriteTimeout(s.session.WriteTimeout),
	)
	session.Start(context.WithoutCancel(ctx))
	slog.InfoContext(ctx, "session opened",
		"conversation_id", session.ConversationID(),
		"participant_id", participantID)

	if err := websocket.NewSource(conn).Run(ctx, session); err != nil {
		slog.WarnContext(ctx, "session stream ended with error",
			"conversation_id", session.ConversationID(),
			"error", err)
	}

	if err := session.Close(context.WithoutCancel(ctx)); err != nil {
		slog.ErrorContext(ctx, "failed to finalise conversation",
			"conversation_id", session.ConversationID(),
			"error", err)
		return
	}
	slog.InfoContext(ctx, "session closed", "conversation_id", session.ConversationID())
}

func (s *server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	document, err := s.gateway.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to read conversation", "conversation_id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read conversation")
		return
	}

	writeJSON(w, http.StatusOK, document)
}

func (s *server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, conversations.DocumentSchema())
}

// shutdown ends every open session and waits for their final writes.
func (s *server) shutdown(ctx context.Context) error {
	s.cancelSessions()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
