package provider

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ashureev/agentdesk/internal/domain"
)

type anthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func (r *Router) newAnthropic(model string) (Client, error) {
	if r.cfg.AnthropicAPIKey == "" {
		return nil, missingCredential(FamilyAnthropic, "ANTHROPIC_API_KEY")
	}
	opts := []option.RequestOption{option.WithAPIKey(r.cfg.AnthropicAPIKey)}
	if r.cfg.AnthropicBaseURL != "" {
		opts = append(opts, option.WithBaseURL(r.cfg.AnthropicBaseURL))
	}
	return &anthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: r.cfg.MaxTokens,
	}, nil
}

func (c *anthropicClient) Family() Family { return FamilyAnthropic }
func (c *anthropicClient) Model() string  { return c.model }

func (c *anthropicClient) Stream(ctx context.Context, req Request) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		maxTokens := req.MaxTokens
		if maxTokens <= 0 {
			maxTokens = c.maxTokens
		}

		params := anthropic.MessageNewParams{
			Model:       anthropic.Model(c.model),
			Messages:    toAnthropicMessages(req.Messages),
			MaxTokens:   int64(maxTokens),
			Temperature: anthropic.Float(req.Temperature),
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.System}}
		}
		if len(req.Tools) > 0 {
			params.Tools = toAnthropicTools(req.Tools)
		}

		stream := c.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		msg := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				yield(Chunk{}, &domain.TransportError{Op: "anthropic accumulate", Err: err})
				return
			}

			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
					if !yield(Chunk{Text: text.Text}, nil) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(Chunk{}, &domain.TransportError{Op: "anthropic stream", Err: err})
			return
		}

		if calls := anthropicToolCalls(msg.Content); len(calls) > 0 {
			yield(Chunk{ToolCalls: calls}, nil)
		}
	}
}

func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		case RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func toAnthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(specs))
	for i, spec := range specs {
		schema := anthropic.ToolInputSchemaParam{
			Properties: schemaProperties(spec.Schema),
		}
		if req := schemaRequired(spec.Schema); len(req) > 0 {
			schema.Required = req
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if spec.Description != "" {
			out[i].OfTool.Description = anthropic.String(spec.Description)
		}
	}
	return out
}

func anthropicToolCalls(content []anthropic.ContentBlockUnion) []ToolCall {
	var calls []ToolCall
	for _, block := range content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		args := map[string]any{}
		if len(toolUse.Input) > 0 {
			if err := json.Unmarshal(toolUse.Input, &args); err != nil {
				args = map[string]any{"_raw": string(toolUse.Input)}
			}
		}
		calls = append(calls, ToolCall{ID: toolUse.ID, Name: toolUse.Name, Arguments: args})
	}
	return calls
}
