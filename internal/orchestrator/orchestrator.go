// Package orchestrator drives one chat turn from request to completion:
// agent resolution, gated tool use, streaming and the history hand-off.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/observability"
	"github.com/ashureev/agentdesk/internal/policy"
	"github.com/ashureev/agentdesk/internal/provider"
	"github.com/ashureev/agentdesk/internal/tools"
	"github.com/google/uuid"
)

// Agents resolves agent and tool definitions.
type Agents interface {
	Resolve(id string) domain.AgentDefinition
	Default() domain.AgentDefinition
	Tool(id string) (domain.ToolDefinition, bool)
}

// Models resolves a model id to a streaming client.
type Models interface {
	Resolve(modelID string) (provider.Client, error)
}

// ToolInvoker validates and runs tool calls.
type ToolInvoker interface {
	Invoke(ctx context.Context, id string, args map[string]any) (tools.Result, error)
}

// HistorySink accepts completed turns for asynchronous persistence.
type HistorySink interface {
	Enqueue(turns ...domain.Turn) bool
}

// Request is one chat turn.
type Request struct {
	Messages      []domain.Message
	AgentID       string
	Authenticated bool
	OwnerID       string
	RequestID     string
}

// Outcome is the terminal result of a stream.
type Outcome struct {
	State   State
	AgentID string
	Content string
	Steps   int
	Err     error
}

// Orchestrator starts chat streams. It holds no per-request state.
type Orchestrator struct {
	agents    Agents
	models    Models
	tools     ToolInvoker
	history   HistorySink
	logger    *slog.Logger
	maxTokens int
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMaxTokens caps output tokens per model call.
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) { o.maxTokens = n }
}

// New creates an orchestrator.
func New(agents Agents, models Models, invoker ToolInvoker, history HistorySink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		agents:  agents,
		models:  models,
		tools:   invoker,
		history: history,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stream is a running chat turn. Events must be drained until closed,
// or the request context cancelled.
type Stream struct {
	events  chan Event
	done    chan struct{}
	outcome Outcome
}

// Events returns the ordered event channel. It is closed when the turn ends.
func (s *Stream) Events() <-chan Event { return s.events }

// Wait blocks until the turn reaches a terminal state.
func (s *Stream) Wait() Outcome {
	<-s.done
	return s.outcome
}

// run carries the state for one turn. It is owned by a single goroutine.
type run struct {
	o       *Orchestrator
	req     Request
	agent   domain.AgentDefinition
	client  provider.Client
	system  string
	gated   policy.ToolSet
	specs   []provider.ToolSpec
	stream  *Stream
	logger  *slog.Logger
	state   State
	content strings.Builder
	steps   int
}

// Start validates the request, resolves agent and model, and begins streaming.
// Validation and configuration errors are returned before any event is sent.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*Stream, error) {
	if err := validateMessages(req.Messages); err != nil {
		return nil, err
	}

	agent := o.agents.Resolve(req.AgentID)
	if !agent.VisibleTo(req.Authenticated) {
		o.logger.Info("Agent requires authentication, using default",
			"agent_id", agent.ID, "request_id", req.RequestID)
		agent = o.agents.Default()
		if !agent.VisibleTo(req.Authenticated) {
			return nil, &domain.ConfigError{
				Op:  "resolve agent",
				Err: fmt.Errorf("%w: %q requires authentication", domain.ErrDefaultAgent, agent.ID),
			}
		}
	}

	client, err := o.models.Resolve(agent.ModelID)
	if err != nil {
		o.logger.Error("Model resolution failed", "agent_id", agent.ID, "model", agent.ModelID, "error", err)
		return nil, err
	}

	gated := policy.FilterTools(o.agents, agent, req.Authenticated)
	specs := make([]provider.ToolSpec, len(gated))
	for i, def := range gated {
		specs[i] = provider.ToolSpec{Name: def.ID, Description: def.Description, Schema: def.JSONSchema()}
	}

	s := &Stream{
		events: make(chan Event),
		done:   make(chan struct{}),
	}
	r := &run{
		o:      o,
		req:    req,
		agent:  agent,
		client: client,
		system: policy.ComposePrompt(agent, req.Authenticated),
		gated:  policy.NewToolSet(gated),
		specs:  specs,
		stream: s,
		logger: o.logger.With("agent_id", agent.ID, "request_id", req.RequestID),
		state:  StateInit,
	}

	observability.StreamStarted()
	go r.drive(ctx)
	return s, nil
}

func validateMessages(msgs []domain.Message) error {
	if len(msgs) == 0 {
		return &domain.ValidationError{Field: "messages", Reason: "cannot be empty"}
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return &domain.ValidationError{Field: fmt.Sprintf("messages[%d].role", i), Reason: fmt.Sprintf("unsupported role %q", m.Role)}
		}
	}
	if msgs[len(msgs)-1].Role != domain.RoleUser {
		return &domain.ValidationError{Field: "messages", Reason: "last message must come from the user"}
	}
	return nil
}

func (r *run) drive(ctx context.Context) {
	start := time.Now()
	var runErr error

	defer func() {
		if !r.state.Terminal() {
			r.state = StateAborted
		}
		close(r.stream.events)
		r.stream.outcome = Outcome{
			State:   r.state,
			AgentID: r.agent.ID,
			Content: r.content.String(),
			Steps:   r.steps,
			Err:     runErr,
		}
		observability.RecordChat(r.agent.ID, r.state.String(), r.steps, time.Since(start))
		close(r.stream.done)
	}()

	messages := toProviderMessages(r.req.Messages)
	r.state = StateDispatched
	r.logger.Debug("Dispatching chat", "model", r.client.Model(), "tools", len(r.specs), "max_steps", r.agent.MaxSteps)

	for {
		r.steps++
		var stepText strings.Builder
		calls, err := r.streamStep(ctx, messages, &stepText)
		if ctx.Err() != nil {
			r.abort()
			return
		}
		if err != nil {
			runErr = err
			r.fail(ctx, err)
			return
		}

		allowed := r.gateCalls(calls)
		if len(allowed) == 0 {
			r.complete(ctx, FinishStop)
			return
		}

		r.state = StateToolPending
		messages = append(messages, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   stepText.String(),
			ToolCalls: allowed,
		})
		for _, call := range allowed {
			toolMsg, ok := r.runTool(ctx, call)
			if !ok {
				r.abort()
				return
			}
			messages = append(messages, toolMsg)
		}

		if r.steps >= r.agent.MaxSteps {
			r.logger.Info("Step budget exhausted", "steps", r.steps)
			r.complete(ctx, FinishBudget)
			return
		}
	}
}

// streamStep performs one model call, forwarding text deltas as they arrive.
func (r *run) streamStep(ctx context.Context, messages []provider.Message, stepText *strings.Builder) ([]provider.ToolCall, error) {
	r.state = StateStreaming
	req := provider.Request{
		System:      r.system,
		Messages:    messages,
		Tools:       r.specs,
		Temperature: r.agent.Temperature,
		MaxTokens:   r.o.maxTokens,
	}

	var calls []provider.ToolCall
	for chunk, err := range r.client.Stream(ctx, req) {
		if err != nil {
			return nil, err
		}
		if chunk.Text != "" {
			stepText.WriteString(chunk.Text)
			r.content.WriteString(chunk.Text)
			if !r.send(ctx, Event{Type: EventContentDelta, Delta: chunk.Text}) {
				return nil, ctx.Err()
			}
		}
		calls = append(calls, chunk.ToolCalls...)
	}
	return calls, nil
}

// gateCalls drops tool requests outside the gated set.
func (r *run) gateCalls(calls []provider.ToolCall) []provider.ToolCall {
	allowed := calls[:0:0]
	for _, c := range calls {
		if !r.gated.Allows(c.Name) {
			r.logger.Warn("Dropping ungated tool request", "tool", c.Name, "authenticated", r.req.Authenticated)
			observability.RecordToolRejected(c.Name, "not_gated")
			continue
		}
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		if c.Arguments == nil {
			c.Arguments = map[string]any{}
		}
		allowed = append(allowed, c)
	}
	return allowed
}

// runTool emits tool-call, invokes the tool, emits tool-result and returns
// the message feeding the result back to the model.
func (r *run) runTool(ctx context.Context, call provider.ToolCall) (provider.Message, bool) {
	c := call
	if !r.send(ctx, Event{Type: EventToolCall, ToolCall: &c}) {
		return provider.Message{}, false
	}

	result := &ToolResult{ToolCallID: call.ID, Name: call.Name}
	res, err := r.o.tools.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		r.logger.Info("Tool call failed", "tool", call.Name, "error", err)
		result.Error = err.Error()
	} else {
		result.Result = &res
	}

	if !r.send(ctx, Event{Type: EventToolResult, ToolResult: result}) {
		return provider.Message{}, false
	}

	body, mErr := json.Marshal(result)
	if mErr != nil {
		body = []byte(fmt.Sprintf(`{"error":%q}`, mErr.Error()))
	}
	return provider.Message{
		Role:       provider.RoleTool,
		Content:    string(body),
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}, true
}

func (r *run) send(ctx context.Context, ev Event) bool {
	select {
	case r.stream.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *run) abort() {
	r.state = StateAborted
	r.logger.Info("Chat aborted", "steps", r.steps)
}

func (r *run) fail(ctx context.Context, err error) {
	r.state = StateFailed
	observability.RecordProviderError(r.client.Family().String())
	r.logger.Error("Chat failed", "model", r.client.Model(), "steps", r.steps, "error", err)

	r.send(ctx, Event{Type: EventError, Error: &ErrorPayload{
		Code:    errorCode(err),
		Message: "the model provider failed to complete the response",
	}})
}

func (r *run) complete(ctx context.Context, reason string) {
	done := &Done{AgentID: r.agent.ID, Steps: r.steps, FinishReason: reason}
	if !r.send(ctx, Event{Type: EventDone, Done: done}) {
		r.abort()
		return
	}
	r.state = StateCompleted
	r.logger.Info("Chat completed", "steps", r.steps, "finish_reason", reason)

	if !r.req.Authenticated || r.req.OwnerID == "" || r.o.history == nil {
		return
	}
	last := r.req.Messages[len(r.req.Messages)-1]
	r.o.history.Enqueue(
		domain.Turn{
			Role:          domain.RoleUser,
			Content:       last.Content,
			OwnerID:       r.req.OwnerID,
			AgentID:       r.agent.ID,
			ExtractedText: last.ExtractedText,
		},
		domain.Turn{
			Role:    domain.RoleAssistant,
			Content: r.content.String(),
			OwnerID: r.req.OwnerID,
			AgentID: r.agent.ID,
		},
	)
}

func errorCode(err error) string {
	switch {
	case domain.IsConfigError(err):
		return "configuration_error"
	case domain.IsValidationError(err):
		return "validation_error"
	default:
		return "provider_error"
	}
}

func toProviderMessages(msgs []domain.Message) []provider.Message {
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		role := provider.RoleUser
		if m.Role == domain.RoleAssistant {
			role = provider.RoleAssistant
		}
		out = append(out, provider.Message{Role: role, Content: m.Content})
	}
	return out
}
