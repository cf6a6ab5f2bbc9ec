package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-transcript/core/conversations"
)

var _ Gateway = (*MemoryGateway)(nil)

// MemoryGateway keeps encoded documents in memory. Documents are stored
// encoded so that callers never share state with the store.
type MemoryGateway struct {
	mu        sync.RWMutex
	documents map[string][]byte
	writes    map[string]int
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		documents: map[string][]byte{},
		writes:    map[string]int{},
	}
}

func (g *MemoryGateway) UpsertConversation(ctx context.Context, conversationID string, participantID string, document conversations.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	document.ConversationID = conversationID
	document.ParticipantID = participantID
	encoded, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", conversationID, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.documents[conversationID] = encoded
	g.writes[conversationID]++
	return nil
}

func (g *MemoryGateway) GetConversation(ctx context.Context, conversationID string) (conversations.Document, error) {
	if err := ctx.Err(); err != nil {
		return conversations.Document{}, err
	}

	g.mu.RLock()
	encoded, ok := g.documents[conversationID]
	g.mu.RUnlock()
	if !ok {
		return conversations.Document{}, ErrNotFound
	}

	var document conversations.Document
	if err := json.Unmarshal(encoded, &document); err != nil {
		return conversations.Document{}, fmt.Errorf("failed to decode conversation %s: %w", conversationID, err)
	}
	return document, nil
}

// Writes reports how many times the conversation was written.
func (g *MemoryGateway) Writes(conversationID string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.writes[conversationID]
}
