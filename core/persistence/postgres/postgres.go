// Package postgres stores conversations as jsonb rows in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koscakluka/ema-transcript/core/conversations"
	"github.com/koscakluka/ema-transcript/core/persistence"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/koscakluka/ema-transcript/core/persistence/postgres"

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

const (
	createTableQuery = `CREATE TABLE IF NOT EXISTS conversations (
	conversation_id   text PRIMARY KEY,
	participant_id    text NOT NULL,
	conversation_data jsonb NOT NULL,
	created_at        timestamptz NOT NULL DEFAULT now(),
	updated_at        timestamptz NOT NULL DEFAULT now()
)`

	upsertQuery = `INSERT INTO conversations (conversation_id, participant_id, conversation_data)
VALUES ($1, $2, $3)
ON CONFLICT (conversation_id) DO UPDATE
SET participant_id = EXCLUDED.participant_id,
    conversation_data = EXCLUDED.conversation_data,
    updated_at = now()`

	selectQuery = `SELECT conversation_id, participant_id, conversation_data
FROM conversations
WHERE conversation_id = $1`
)

var _ persistence.Gateway = (*Gateway)(nil)

type Config struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

type Gateway struct {
	pool *pgxpool.Pool
}

// New connects to the database and verifies the connection.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 2
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Gateway{pool: pool}, nil
}

func NewWithPool(pool *pgxpool.Pool) *Gateway {
	return &Gateway{pool: pool}
}

func (g *Gateway) Close() {
	g.pool.Close()
}

// EnsureSchema creates the conversations table if it does not exist yet.
func (g *Gateway) EnsureSchema(ctx context.Context) error {
	if _, err := g.pool.Exec(ctx, createTableQuery); err != nil {
		return fmt.Errorf("creating conversations table: %w", err)
	}
	return nil
}

func (g *Gateway) UpsertConversation(ctx context.Context, conversationID string, participantID string, document conversations.Document) error {
	ctx, span := tracer.Start(ctx, "upsert conversation", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
	))
	defer span.End()

	if _, err := g.pool.Exec(ctx, upsertQuery, conversationID, participantID, document.ConversationData); err != nil {
		err = fmt.Errorf("upserting conversation %s: %w", conversationID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "failed to upsert conversation", "conversation_id", conversationID, "error", err)
		return err
	}
	return nil
}

func (g *Gateway) GetConversation(ctx context.Context, conversationID string) (conversations.Document, error) {
	ctx, span := tracer.Start(ctx, "get conversation", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
	))
	defer span.End()

	var document conversations.Document
	err := g.pool.QueryRow(ctx, selectQuery, conversationID).Scan(
		&document.ConversationID,
		&document.ParticipantID,
		&document.ConversationData,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conversations.Document{}, persistence.ErrNotFound
		}
		err = fmt.Errorf("reading conversation %s: %w", conversationID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return conversations.Document{}, err
	}
	return document, nil
}
