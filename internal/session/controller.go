// Package session is the client side of a conversation: it keeps the
// displayed message list, sends turns and reloads history on agent switch.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Event is one server-sent event of a chat stream.
type Event struct {
	Type string
	Data json.RawMessage
}

// Event types sent by the server.
const (
	EventContentDelta = "content-delta"
	EventToolCall     = "tool-call"
	EventToolResult   = "tool-result"
	EventDone         = "done"
	EventError        = "error"
)

// ChatRequest is the body of a chat call.
type ChatRequest struct {
	Messages        []domain.Message `json:"messages"`
	IsAuthenticated bool             `json:"isAuthenticated"`
	AgentID         string           `json:"agentId"`
}

// Transport carries chat and history calls to the server.
type Transport interface {
	Chat(ctx context.Context, req ChatRequest) iter.Seq2[Event, error]
	History(ctx context.Context, agentID string, limit int) ([]domain.Turn, error)
}

// Done is the payload of the closing event of a completed turn.
type Done struct {
	AgentID      string `json:"agentId"`
	Steps        int    `json:"steps"`
	FinishReason string `json:"finishReason"`
}

// Reply is the outcome of Send.
type Reply struct {
	Content string
	Done    Done
}

// StreamError is an error event received mid-stream.
type StreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var errStreamIncomplete = errors.New("stream ended without a done event")

// Controller owns one conversation view. Sends and agent switches are
// serialized by an input gate, so a reload always completes before new input.
type Controller struct {
	transport    Transport
	gate         chan struct{}
	historyLimit int
	onEvent      func(Event)
	logger       *slog.Logger

	mu            sync.Mutex
	agentID       string
	authenticated bool
	messages      []domain.Message
}

// Option customizes a Controller.
type Option func(*Controller)

// WithHistoryLimit sets how many turns a reload fetches.
func WithHistoryLimit(n int) Option {
	return func(c *Controller) { c.historyLimit = n }
}

// WithEventHandler observes every stream event as it arrives.
func WithEventHandler(fn func(Event)) Option {
	return func(c *Controller) { c.onEvent = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a controller for agentID. It does not load history; call SwitchAgent for that.
func NewController(t Transport, agentID string, authenticated bool, opts ...Option) *Controller {
	c := &Controller{
		transport:     t,
		gate:          make(chan struct{}, 1),
		historyLimit:  50,
		logger:        slog.Default(),
		agentID:       agentID,
		authenticated: authenticated,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) acquire(ctx context.Context) error {
	select {
	case c.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) release() { <-c.gate }

// AgentID returns the active agent.
func (c *Controller) AgentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentID
}

// Messages returns a snapshot of the displayed messages.
func (c *Controller) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Message(nil), c.messages...)
}

// SwitchAgent selects agentID and replaces the displayed messages with its
// history. Anonymous sessions start empty. On a failed fetch the view is
// cleared and the error returned.
func (c *Controller) SwitchAgent(ctx context.Context, agentID string) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	c.mu.Lock()
	c.agentID = agentID
	c.messages = nil
	auth := c.authenticated
	c.mu.Unlock()

	if !auth {
		return nil
	}

	turns, err := c.transport.History(ctx, agentID, c.historyLimit)
	if err != nil {
		c.logger.Warn("History reload failed", "agent_id", agentID, "error", err)
		return fmt.Errorf("load history: %w", err)
	}

	msgs := make([]domain.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, t.AsMessage())
	}

	c.mu.Lock()
	c.messages = msgs
	c.mu.Unlock()
	return nil
}

// Send appends a user message and streams the reply into the displayed list.
// extractedText travels with the message for storage; callers inline it in
// text when the model should see it.
func (c *Controller) Send(ctx context.Context, text, extractedText string) (Reply, error) {
	if err := c.acquire(ctx); err != nil {
		return Reply{}, err
	}
	defer c.release()

	c.mu.Lock()
	c.messages = append(c.messages, domain.Message{Role: domain.RoleUser, Content: text, ExtractedText: extractedText})
	req := ChatRequest{
		Messages:        append([]domain.Message(nil), c.messages...),
		IsAuthenticated: c.authenticated,
		AgentID:         c.agentID,
	}
	c.messages = append(c.messages, domain.Message{Role: domain.RoleAssistant})
	idx := len(c.messages) - 1
	c.mu.Unlock()

	reply, err := c.stream(ctx, req, idx)
	if err != nil && reply.Content == "" {
		c.dropPlaceholder(idx)
	}
	return reply, err
}

// SendDocument sends an uploaded document's text for analysis.
func (c *Controller) SendDocument(ctx context.Context, fileName, extractedText string) (Reply, error) {
	text := fmt.Sprintf("Document uploaded: %q\n\nExtracted content:\n\n%s\n\nPlease analyze this document.", fileName, extractedText)
	return c.Send(ctx, text, extractedText)
}

func (c *Controller) stream(ctx context.Context, req ChatRequest, idx int) (Reply, error) {
	var reply Reply
	for ev, err := range c.transport.Chat(ctx, req) {
		if err != nil {
			return reply, err
		}
		if c.onEvent != nil {
			c.onEvent(ev)
		}

		switch ev.Type {
		case EventContentDelta:
			var d struct {
				Delta string `json:"delta"`
			}
			if err := json.Unmarshal(ev.Data, &d); err != nil {
				return reply, fmt.Errorf("decode delta: %w", err)
			}
			reply.Content += d.Delta
			c.mu.Lock()
			if idx < len(c.messages) {
				c.messages[idx].Content = reply.Content
			}
			c.mu.Unlock()
		case EventDone:
			if err := json.Unmarshal(ev.Data, &reply.Done); err != nil {
				return reply, fmt.Errorf("decode done: %w", err)
			}
			return reply, nil
		case EventError:
			serr := &StreamError{}
			if err := json.Unmarshal(ev.Data, serr); err != nil {
				return reply, fmt.Errorf("decode error event: %w", err)
			}
			return reply, serr
		}
	}
	if err := ctx.Err(); err != nil {
		return reply, err
	}
	return reply, errStreamIncomplete
}

func (c *Controller) dropPlaceholder(idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx == len(c.messages)-1 && c.messages[idx].Role == domain.RoleAssistant && c.messages[idx].Content == "" {
		c.messages = c.messages[:idx]
	}
}
