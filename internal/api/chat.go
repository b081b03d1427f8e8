package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/observability"
	"github.com/ashureev/agentdesk/internal/orchestrator"
)

// HandleChat handles POST /api/chat and streams the turn as server-sent events.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(limitKey(r)) {
		observability.RecordRateLimited()
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	req := h.turnRequest(ctx, body)
	stream, err := h.chat.Start(ctx, req)
	if err != nil {
		writeStartError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		cancel()
		drain(stream)
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	broken := false
	for ev := range stream.Events() {
		if broken {
			continue
		}
		data, err := json.Marshal(ev.Payload())
		if err != nil {
			slog.Warn("failed to marshal chat event", "event", ev.Type, "error", err)
			continue
		}
		if err := writeSSE(w, string(ev.Type), string(data)); err != nil {
			slog.Warn("failed to write SSE event", "event", ev.Type, "error", err)
			broken = true
			cancel()
			continue
		}
		flusher.Flush()
	}

	outcome := stream.Wait()
	slog.Info("Chat stream closed",
		"request_id", req.RequestID,
		"agent_id", outcome.AgentID,
		"state", outcome.State.String(),
		"steps", outcome.Steps,
	)
}

// classifyStartError maps a pre-stream failure to a status, an error code and a client message.
func classifyStartError(err error) (int, string, string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation_error", verr.Error()
	case domain.IsConfigError(err):
		slog.Error("Chat configuration error", "error", err)
		return http.StatusInternalServerError, "configuration_error", "configuration error"
	default:
		slog.Error("Chat start failed", "error", err)
		return http.StatusInternalServerError, "internal_error", "internal error"
	}
}

func writeStartError(w http.ResponseWriter, err error) {
	status, _, msg := classifyStartError(err)
	Error(w, status, msg)
}

func drain(s *orchestrator.Stream) {
	for range s.Events() {
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
