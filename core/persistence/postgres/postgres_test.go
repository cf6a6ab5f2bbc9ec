package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-transcript/core/conversations"
	"github.com/koscakluka/ema-transcript/core/persistence"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gateway, err := New(ctx, Config{DSN: dsn, MaxConns: 2, MinConns: 1})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(gateway.Close)

	if err := gateway.EnsureSchema(ctx); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return gateway
}

func TestUpsertReplacesConversation(t *testing.T) {
	gateway := newTestGateway(t)
	ctx := context.Background()
	conversationID := uuid.NewString()

	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	snapshot := conversations.Snapshot{
		ConversationID: conversationID,
		ParticipantID:  "participant-1",
		StartTime:      start,
	}
	if err := gateway.UpsertConversation(ctx, conversationID, "participant-1", conversations.NewInitialDocument(snapshot)); err != nil {
		t.Fatalf("failed to write initial document: %v", err)
	}

	snapshot.Exchanges = []conversations.Exchange{
		{Role: conversations.RoleAgent, Text: "Hi", Timestamp: start.Add(time.Second)},
		{Role: conversations.RoleUser, Text: "hello", Timestamp: start.Add(2 * time.Second)},
	}
	if err := gateway.UpsertConversation(ctx, conversationID, "participant-1", conversations.NewFinalDocument(snapshot)); err != nil {
		t.Fatalf("failed to write final document: %v", err)
	}

	document, err := gateway.GetConversation(ctx, conversationID)
	if err != nil {
		t.Fatalf("failed to read conversation: %v", err)
	}
	if !document.ConversationData.Metadata.Finalized || len(document.ConversationData.Exchanges) != 2 {
		t.Fatalf("expected final document, got %+v", document.ConversationData)
	}
}

func TestGetMissingConversation(t *testing.T) {
	gateway := newTestGateway(t)

	_, err := gateway.GetConversation(context.Background(), uuid.NewString())
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
