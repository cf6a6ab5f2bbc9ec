package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-transcript/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// EventHandler receives decoded events in the order they arrived.
type EventHandler interface {
	Handle(event events.Event) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Upgrade turns an HTTP request into a websocket connection events can be
// read from.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	return conn, nil
}

// Source reads speech events from a websocket connection.
type Source struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func NewSource(conn *websocket.Conn) *Source {
	return &Source{conn: conn}
}

// Run reads frames until the peer closes the connection, ctx is cancelled
// or handler rejects an event, and closes the connection before returning.
// Malformed frames are logged and skipped. A normal close returns nil.
func (s *Source) Run(ctx context.Context, handler EventHandler) error {
	ctx, span := tracer.Start(ctx, "read speech events")
	defer span.End()
	defer s.close()

	stop := context.AfterFunc(ctx, s.close)
	defer stop()

	received := 0
	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			span.SetAttributes(attribute.Int("events.received", received))
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			err = fmt.Errorf("failed to read websocket message: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if msgType != websocket.TextMessage {
			logger.DebugContext(ctx, "skipped non-text websocket message", "type", msgType)
			continue
		}

		event, err := decode(msg)
		if err != nil {
			logger.WarnContext(ctx, "skipped malformed frame", "error", err)
			continue
		}

		received++
		if err := handler.Handle(event); err != nil {
			err = fmt.Errorf("handler rejected %s event: %w", event.Kind(), err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
			return err
		}
	}
}

func (s *Source) close() {
	s.closeOnce.Do(func() { _ = s.conn.Close() })
}

func decode(msg []byte) (events.Event, error) {
	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	if frame.Type == "" {
		return nil, errors.New("frame has no type")
	}
	return frame.Event()
}
