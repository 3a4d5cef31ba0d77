package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
)

// tokenFrame is the wire format for streamed output. Type is "token" for
// incremental chunks and "done" for the final complete text.
type tokenFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// WebSocketSink streams generation output over an established websocket
// connection as JSON frames. The caller owns the connection lifecycle; the
// sink only writes to it.
type WebSocketSink struct {
	conn *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
}

// NewWebSocketSink wraps an established websocket connection.
func NewWebSocketSink(conn *websocket.Conn) *WebSocketSink {
	return &WebSocketSink{conn: conn}
}

// WriteToken sends one incremental chunk as a "token" frame.
func (s *WebSocketSink) WriteToken(ctx context.Context, token string) error {
	return s.write(ctx, tokenFrame{Type: "token", Text: token})
}

// Done sends the final complete text as a "done" frame.
func (s *WebSocketSink) Done(ctx context.Context, full string) error {
	return s.write(ctx, tokenFrame{Type: "done", Text: full})
}

func (s *WebSocketSink) write(ctx context.Context, frame tokenFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("stream: failed to encode frame: %w", err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("stream: failed to write frame: %w", err)
	}
	return nil
}

var _ Sink = (*WebSocketSink)(nil)
