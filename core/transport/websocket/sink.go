package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-transcript/core/events"
)

// Sink writes speech events to a websocket connection, it is the producing
// side of a Source.
type Sink struct {
	connMu sync.Mutex
	conn   *websocket.Conn
}

// Dial connects to a websocket endpoint that reads events with a Source.
func Dial(ctx context.Context, url string, header http.Header) (*Sink, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection: %w", err)
	}
	return &Sink{conn: conn}, nil
}

func (s *Sink) Send(event events.Event) error {
	frame, err := NewFrame(event)
	if err != nil {
		return err
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if err := s.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Close performs a normal close handshake and closes the connection.
func (s *Sink) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	err := s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if closeErr := s.conn.Close(); err == nil {
		err = closeErr
	}
	return err
}
