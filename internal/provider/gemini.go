package provider

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/ashureev/agentdesk/internal/domain"
	"google.golang.org/genai"
)

type geminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int
}

func (r *Router) newGemini(model string) (Client, error) {
	if r.cfg.GoogleAPIKey == "" {
		return nil, missingCredential(FamilyGemini, "GOOGLE_GENERATIVE_AI_API_KEY")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      r.cfg.GoogleAPIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: r.cfg.GoogleBaseURL},
	})
	if err != nil {
		return nil, err
	}
	return &geminiClient{client: client, model: model, maxTokens: r.cfg.MaxTokens}, nil
}

func (c *geminiClient) Family() Family { return FamilyGemini }
func (c *geminiClient) Model() string  { return c.model }

func (c *geminiClient) Stream(ctx context.Context, req Request) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		maxTokens := req.MaxTokens
		if maxTokens <= 0 {
			maxTokens = c.maxTokens
		}

		cfg := &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(float32(req.Temperature)),
			MaxOutputTokens: int32(maxTokens),
		}
		if req.System != "" {
			cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
		}
		if len(req.Tools) > 0 {
			decls := make([]*genai.FunctionDeclaration, len(req.Tools))
			for i, spec := range req.Tools {
				decls[i] = &genai.FunctionDeclaration{
					Name:                 spec.Name,
					Description:          spec.Description,
					ParametersJsonSchema: spec.Schema,
				}
			}
			cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		}

		var calls []ToolCall
		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, toGeminiContents(req.Messages), cfg) {
			if err != nil {
				yield(Chunk{}, &domain.TransportError{Op: "gemini stream", Err: err})
				return
			}
			for _, fc := range resp.FunctionCalls() {
				calls = append(calls, ToolCall{ID: fc.ID, Name: fc.Name, Arguments: fc.Args})
			}
			if text := resp.Text(); text != "" {
				if !yield(Chunk{Text: text}, nil) {
					return
				}
			}
		}

		if len(calls) > 0 {
			yield(Chunk{ToolCalls: calls}, nil)
		}
	}
}

func toGeminiContents(messages []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleTool:
			part := genai.NewPartFromFunctionResponse(m.ToolName, toolResponseMap(m.Content))
			part.FunctionResponse.ID = m.ToolCallID
			// consecutive tool results share one user turn
			if n := len(out); n > 0 && out[n-1].Role == genai.RoleUser && isFunctionResponses(out[n-1]) {
				out[n-1].Parts = append(out[n-1].Parts, part)
				continue
			}
			out = append(out, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})
		case RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if m.Content != "" {
				content.Parts = append(content.Parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Arguments,
				}})
			}
			if len(content.Parts) > 0 {
				out = append(out, content)
			}
		default:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return out
}

func isFunctionResponses(c *genai.Content) bool {
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return len(c.Parts) > 0
}

func toolResponseMap(content string) map[string]any {
	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return map[string]any{"output": content}
	}
	if m, ok := decoded.(map[string]any); ok {
		return m
	}
	return map[string]any{"output": decoded}
}
