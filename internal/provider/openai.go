package provider

import (
	"context"
	"iter"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type openAIClient struct {
	client    openai.Client
	model     string
	maxTokens int
}

func (r *Router) newOpenAI(model string) (Client, error) {
	if r.cfg.OpenAIAPIKey == "" {
		return nil, missingCredential(FamilyOpenAI, "OPENAI_API_KEY")
	}
	opts := []option.RequestOption{option.WithAPIKey(r.cfg.OpenAIAPIKey)}
	if r.cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(r.cfg.OpenAIBaseURL))
	}
	return &openAIClient{
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: r.cfg.MaxTokens,
	}, nil
}

func (c *openAIClient) Family() Family { return FamilyOpenAI }
func (c *openAIClient) Model() string  { return c.model }

func (c *openAIClient) Stream(ctx context.Context, req Request) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		maxTokens := req.MaxTokens
		if maxTokens <= 0 {
			maxTokens = c.maxTokens
		}

		params := openai.ChatCompletionNewParams{
			Messages:            toOpenAIMessages(req.System, req.Messages),
			Model:               openai.ChatModel(c.model),
			Temperature:         openai.Float(req.Temperature),
			MaxCompletionTokens: openai.Int(int64(maxTokens)),
		}
		if len(req.Tools) > 0 {
			params.Tools = toOpenAITools(req.Tools)
		}

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		acc := openai.ChatCompletionAccumulator{}
		var calls []ToolCall
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if tool, ok := acc.JustFinishedToolCall(); ok {
				calls = append(calls, ToolCall{
					ID:        tool.ID,
					Name:      tool.Name,
					Arguments: parseArguments(tool.Arguments),
				})
			}

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				if !yield(Chunk{Text: chunk.Choices[0].Delta.Content}, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(Chunk{}, &domain.TransportError{Op: "openai stream", Err: err})
			return
		}

		if len(calls) > 0 {
			yield(Chunk{ToolCalls: calls}, nil)
		}
	}
}

func toOpenAIMessages(system string, messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range messages {
		switch m.Role {
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: encodeArguments(tc.Arguments),
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAITools(specs []ToolSpec) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, len(specs))
	for i, spec := range specs {
		out[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        spec.Name,
			Description: openai.String(spec.Description),
			Parameters:  openai.FunctionParameters(spec.Schema),
		})
	}
	return out
}
