// Package server exposes conversations over a websocket chat endpoint. Each
// connection is one client; turns stream back as token/done frames followed
// by a result frame with the turn metadata.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/souvenir-ai/souvenir/internal/conversation"
	"github.com/souvenir-ai/souvenir/internal/stream"
	"github.com/souvenir-ai/souvenir/pkg/types"
)

// turnFrame is one inbound chat turn from a websocket client.
type turnFrame struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Mode           string `json:"mode,omitempty"` // "chat" (default) or "voice"
}

// resultFrame closes out one turn on the wire. It follows the streamed
// token/done frames so clients can reconcile the final text.
type resultFrame struct {
	Type           string `json:"type"` // always "result"
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	Error          string `json:"error,omitempty"`
}

// Server serves the chat websocket endpoint on top of a conversation manager.
type Server struct {
	manager *conversation.Manager
}

// New creates a Server around the conversation manager.
func New(manager *conversation.Manager) *Server {
	return &Server{manager: manager}
}

// Start begins serving on addr and returns the bound address (useful when
// addr requests an ephemeral port). The listener closes when ctx is done.
func (s *Server) Start(ctx context.Context, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws/chat", s.handleChat)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server: serve failed: %v", err)
		}
	}()

	return ln.Addr().String(), nil
}

// handleChat upgrades the connection and processes turn frames until the
// client goes away. Turns on one connection are handled sequentially so the
// streamed frames of consecutive turns never interleave.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		InsecureSkipVerify: true, // origin enforcement is the reverse proxy's job
	})
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	ctx := r.Context()
	sink := stream.NewWebSocketSink(conn)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				log.Printf("server: websocket read failed: %v", err)
			}
			return
		}

		var turn turnFrame
		if err := json.Unmarshal(data, &turn); err != nil {
			s.writeResult(ctx, conn, resultFrame{Type: "result", Error: "invalid turn frame"})
			continue
		}
		if turn.Text == "" {
			s.writeResult(ctx, conn, resultFrame{Type: "result", Error: "empty text"})
			continue
		}

		mode := types.ModeChat
		if turn.Mode == string(types.ModeVoice) {
			mode = types.ModeVoice
		}

		result := s.manager.HandleTurn(ctx, conversation.TurnRequest{
			Text:           turn.Text,
			ConversationID: turn.ConversationID,
			UserID:         turn.UserID,
			MessageID:      turn.MessageID,
			Mode:           mode,
			Sink:           sink,
		})

		s.writeResult(ctx, conn, resultFrame{
			Type:           "result",
			Response:       result.Response,
			ConversationID: result.ConversationID,
			Error:          result.Error,
		})
	}
}

func (s *Server) writeResult(ctx context.Context, conn *websocket.Conn, frame resultFrame) { //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("server: failed to encode result frame: %v", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil { //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		log.Printf("server: failed to write result frame: %v", err)
	}
}
