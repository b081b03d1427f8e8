package provider

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ollama/ollama/api"
)

var errStopStream = errors.New("stream stopped by consumer")

type ollamaClient struct {
	client    *api.Client
	model     string
	maxTokens int
}

func (r *Router) newOllama(model string) (Client, error) {
	parsedURL, err := url.Parse(r.cfg.OllamaHost)
	if err != nil || parsedURL.Host == "" {
		return nil, &domain.ConfigError{Op: "ollama", Err: fmt.Errorf("invalid OLLAMA_HOST %q", r.cfg.OllamaHost)}
	}
	return &ollamaClient{
		client:    api.NewClient(parsedURL, http.DefaultClient),
		model:     model,
		maxTokens: r.cfg.MaxTokens,
	}, nil
}

func (c *ollamaClient) Family() Family { return FamilyOllama }
func (c *ollamaClient) Model() string  { return c.model }

func (c *ollamaClient) Stream(ctx context.Context, req Request) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		maxTokens := req.MaxTokens
		if maxTokens <= 0 {
			maxTokens = c.maxTokens
		}

		stream := true
		chatReq := &api.ChatRequest{
			Model:    c.model,
			Messages: toOllamaMessages(req.System, req.Messages),
			Tools:    toOllamaTools(req.Tools),
			Stream:   &stream,
			Options: map[string]any{
				"temperature": req.Temperature,
				"num_predict": maxTokens,
			},
		}

		// Ollama does not identify tool calls; the orchestrator assigns ids.
		var calls []ToolCall
		err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			for _, call := range resp.Message.ToolCalls {
				calls = append(calls, ToolCall{
					Name:      call.Function.Name,
					Arguments: map[string]any(call.Function.Arguments),
				})
			}
			if resp.Message.Content != "" {
				if !yield(Chunk{Text: resp.Message.Content}, nil) {
					return errStopStream
				}
			}
			return nil
		})
		if errors.Is(err, errStopStream) {
			return
		}
		if err != nil {
			yield(Chunk{}, &domain.TransportError{Op: "ollama chat", Err: err})
			return
		}

		if len(calls) > 0 {
			yield(Chunk{ToolCalls: calls}, nil)
		}
	}
}

func toOllamaMessages(system string, messages []Message) []api.Message {
	out := make([]api.Message, 0, len(messages)+1)
	if system != "" {
		out = append(out, api.Message{Role: "system", Content: system})
	}
	for _, m := range messages {
		msg := api.Message{Role: string(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOllamaTools(specs []ToolSpec) []api.Tool {
	if len(specs) == 0 {
		return nil
	}
	out := make([]api.Tool, 0, len(specs))
	for _, spec := range specs {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Required:   schemaRequired(spec.Schema),
			Properties: make(map[string]api.ToolProperty),
		}
		for name, raw := range schemaProperties(spec.Schema) {
			prop := api.ToolProperty{}
			if pm, ok := raw.(map[string]any); ok {
				if t, ok := pm["type"].(string); ok {
					prop.Type = api.PropertyType{t}
				}
				if d, ok := pm["description"].(string); ok {
					prop.Description = d
				}
				if e, ok := pm["enum"].([]any); ok {
					prop.Enum = e
				}
			}
			params.Properties[name] = prop
		}
		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
