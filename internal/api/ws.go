package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/agentdesk/internal/identity"
	"github.com/ashureev/agentdesk/internal/observability"
	"github.com/ashureev/agentdesk/internal/orchestrator"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	frameChat   = "chat"
	frameCancel = "cancel"
)

// clientFrame is a message from the websocket client.
type clientFrame struct {
	Type string `json:"type"`
	chatRequest
}

// serverFrame mirrors one SSE event: Type is the event name, Data its payload.
type serverFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// chatSocket tracks the single turn a connection may run at a time.
type chatSocket struct {
	h      *Handler
	ws     *websocket.Conn
	r      *http.Request
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// HandleChatSocket handles GET /ws/chat.
func (h *Handler) HandleChatSocket(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &chatSocket{h: h, ws: ws, r: r}
	defer s.wg.Wait()
	defer s.cancelTurn()

	for {
		var frame clientFrame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		switch frame.Type {
		case frameCancel:
			s.cancelTurn()
		case frameChat:
			s.startTurn(ctx, frame.chatRequest)
		default:
			s.writeError(ctx, "unknown_frame", "unsupported frame type")
		}
	}
}

func (s *chatSocket) startTurn(ctx context.Context, body chatRequest) {
	s.mu.Lock()
	busy := s.cancel != nil
	s.mu.Unlock()
	if busy {
		s.writeError(ctx, "busy", "a response is already streaming")
		return
	}
	if !s.h.limiter.Allow(limitKey(s.r)) {
		observability.RecordRateLimited()
		s.writeError(ctx, "rate_limited", "rate limit exceeded")
		return
	}

	turnCtx, cancel := context.WithCancel(ctx)
	req := s.h.turnRequest(ctx, body)
	stream, err := s.h.chat.Start(turnCtx, req)
	if err != nil {
		cancel()
		_, code, msg := classifyStartError(err)
		s.writeError(ctx, code, msg)
		return
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.cancel = nil
			s.mu.Unlock()
			cancel()
		}()
		s.pump(ctx, stream, cancel)
	}()
}

// pump forwards turn events to the socket until the stream closes.
func (s *chatSocket) pump(ctx context.Context, stream *orchestrator.Stream, cancel context.CancelFunc) {
	broken := false
	for ev := range stream.Events() {
		if broken {
			continue
		}
		if err := wsjson.Write(ctx, s.ws, serverFrame{Type: string(ev.Type), Data: ev.Payload()}); err != nil {
			slog.Debug("WebSocket write failed", "event", ev.Type, "error", err)
			broken = true
			cancel()
		}
	}
	outcome := stream.Wait()
	if outcome.State == orchestrator.StateAborted && !broken {
		_ = wsjson.Write(ctx, s.ws, serverFrame{Type: "aborted", Data: map[string]int{"steps": outcome.Steps}})
	}
}

func (s *chatSocket) cancelTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *chatSocket) writeError(ctx context.Context, code, message string) {
	frame := serverFrame{Type: string(orchestrator.EventError), Data: orchestrator.ErrorPayload{Code: code, Message: message}}
	if err := wsjson.Write(ctx, s.ws, frame); err != nil {
		slog.Debug("WebSocket error frame not sent", "code", code, "error", err)
	}
}
