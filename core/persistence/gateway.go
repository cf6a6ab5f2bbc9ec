// Package persistence defines the narrow interface conversations are stored
// through. Concrete stores live in sub-packages.
package persistence

import (
	"context"
	"errors"

	"github.com/koscakluka/ema-transcript/core/conversations"
)

var ErrNotFound = errors.New("conversation not found")

// Gateway is a durable document store keyed by conversation ID.
type Gateway interface {
	// UpsertConversation creates or fully replaces the stored document.
	// Calling it repeatedly with the same document must be harmless.
	UpsertConversation(ctx context.Context, conversationID string, participantID string, document conversations.Document) error
	// GetConversation returns ErrNotFound when nothing is stored for the ID.
	GetConversation(ctx context.Context, conversationID string) (conversations.Document, error)
}
