// Package redis keeps conversation documents in Redis under a key per
// conversation, optionally expiring them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-transcript/core/conversations"
	"github.com/koscakluka/ema-transcript/core/persistence"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultKeyPrefix = "ema:conversation:"

var _ persistence.Gateway = (*Gateway)(nil)

type Gateway struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

type Option func(*Gateway)

func WithKeyPrefix(prefix string) Option {
	return func(g *Gateway) {
		if prefix != "" {
			g.keyPrefix = prefix
		}
	}
}

// WithTTL expires documents ttl after their last write. Zero keeps them
// forever.
func WithTTL(ttl time.Duration) Option {
	return func(g *Gateway) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

func New(client *redis.Client, opts ...Option) *Gateway {
	g := &Gateway{client: client, keyPrefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewFromURL connects to the server at redisURL and verifies the connection.
func NewFromURL(ctx context.Context, redisURL string, opts ...Option) (*Gateway, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return New(client, opts...), nil
}

func (g *Gateway) Close() error {
	return g.client.Close()
}

func (g *Gateway) key(conversationID string) string {
	return g.keyPrefix + conversationID
}

func (g *Gateway) UpsertConversation(ctx context.Context, conversationID string, participantID string, document conversations.Document) error {
	ctx, span := tracer.Start(ctx, "upsert conversation", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
	))
	defer span.End()

	document.ConversationID = conversationID
	document.ParticipantID = participantID
	encoded, err := json.Marshal(document)
	if err != nil {
		return recordError(ctx, span, conversationID, fmt.Errorf("encoding conversation %s: %w", conversationID, err))
	}

	if err := g.client.Set(ctx, g.key(conversationID), encoded, g.ttl).Err(); err != nil {
		return recordError(ctx, span, conversationID, fmt.Errorf("writing conversation %s: %w", conversationID, err))
	}
	return nil
}

func (g *Gateway) GetConversation(ctx context.Context, conversationID string) (conversations.Document, error) {
	ctx, span := tracer.Start(ctx, "get conversation", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
	))
	defer span.End()

	encoded, err := g.client.Get(ctx, g.key(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return conversations.Document{}, persistence.ErrNotFound
		}
		return conversations.Document{}, recordError(ctx, span, conversationID, fmt.Errorf("reading conversation %s: %w", conversationID, err))
	}

	var document conversations.Document
	if err := json.Unmarshal(encoded, &document); err != nil {
		return conversations.Document{}, recordError(ctx, span, conversationID, fmt.Errorf("decoding conversation %s: %w", conversationID, err))
	}
	return document, nil
}

func recordError(ctx context.Context, span trace.Span, conversationID string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.ErrorContext(ctx, "redis conversation request failed", "conversation_id", conversationID, "error", err)
	return err
}
