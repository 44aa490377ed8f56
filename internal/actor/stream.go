package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
)

// wsStream adapts a websocket dataset connection to domain.RecordStream. The
// platform sends one JSON record per text message and closes the connection
// normally once the run's dataset is exhausted.
type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Next(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, message, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read record: %w", err)
	}
	return json.RawMessage(message), nil
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
