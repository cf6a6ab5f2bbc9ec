// Package rest stores conversations in a table exposed through a PostgREST
// API, as served by Supabase.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/koscakluka/ema-transcript/core/conversations"
	"github.com/koscakluka/ema-transcript/core/persistence"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTable = "conversations"

var ErrUnexpectedStatus = errors.New("unexpected response status")

var _ persistence.Gateway = (*Gateway)(nil)

type Gateway struct {
	baseURL string
	apiKey  string
	table   string
	client  *http.Client
}

type Option func(*Gateway)

func WithTable(table string) Option {
	return func(g *Gateway) {
		if table != "" {
			g.table = table
		}
	}
}

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		if client != nil {
			g.client = client
		}
	}
}

// NewGateway creates a gateway for the project at baseURL, e.g.
// https://<project>.supabase.co, authenticated with apiKey.
func NewGateway(baseURL string, apiKey string, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		table:   DefaultTable,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) UpsertConversation(ctx context.Context, conversationID string, participantID string, document conversations.Document) error {
	ctx, span := tracer.Start(ctx, "upsert conversation", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("db.table", g.table),
	))
	defer span.End()

	document.ConversationID = conversationID
	document.ParticipantID = participantID
	body, err := json.Marshal(document)
	if err != nil {
		return recordError(span, fmt.Errorf("failed to encode conversation %s: %w", conversationID, err))
	}

	query := url.Values{}
	query.Set("on_conflict", "conversation_id")
	req, err := g.newRequest(ctx, http.MethodPost, query, bytes.NewReader(body))
	if err != nil {
		return recordError(span, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := g.client.Do(req)
	if err != nil {
		return recordError(span, fmt.Errorf("failed to send upsert request: %w", err))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return recordError(span, statusError(resp))
	}

	return nil
}

func (g *Gateway) GetConversation(ctx context.Context, conversationID string) (conversations.Document, error) {
	ctx, span := tracer.Start(ctx, "get conversation", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("db.table", g.table),
	))
	defer span.End()

	query := url.Values{}
	query.Set("conversation_id", "eq."+conversationID)
	query.Set("select", "conversation_id,participant_id,conversation_data")
	query.Set("limit", "1")
	req, err := g.newRequest(ctx, http.MethodGet, query, nil)
	if err != nil {
		return conversations.Document{}, recordError(span, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return conversations.Document{}, recordError(span, fmt.Errorf("failed to send lookup request: %w", err))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return conversations.Document{}, recordError(span, statusError(resp))
	}

	var documents []conversations.Document
	if err := json.NewDecoder(resp.Body).Decode(&documents); err != nil {
		return conversations.Document{}, recordError(span, fmt.Errorf("failed to decode conversation %s: %w", conversationID, err))
	}
	if len(documents) == 0 {
		return conversations.Document{}, persistence.ErrNotFound
	}
	return documents[0], nil
}

func (g *Gateway) newRequest(ctx context.Context, method string, query url.Values, body io.Reader) (*http.Request, error) {
	endpoint := g.baseURL + "/rest/v1/" + url.PathEscape(g.table) + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", g.apiKey)
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	return req, nil
}

func statusError(resp *http.Response) error {
	errorBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(errorBody) == 0 {
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	return fmt.Errorf("%w: %s: %s", ErrUnexpectedStatus, resp.Status, strings.TrimSpace(string(errorBody)))
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Error("conversation store request failed", "error", err)
	return err
}
