// Package provider routes model ids to streaming clients for each model family.
package provider

import (
	"context"
	"encoding/json"
	"iter"
	"strings"
)

// Family is the provider family a model id belongs to.
type Family int

const (
	FamilyGemini Family = iota
	FamilyOpenAI
	FamilyAnthropic
	FamilyOllama
)

func (f Family) String() string {
	switch f {
	case FamilyGemini:
		return "gemini"
	case FamilyOpenAI:
		return "openai"
	case FamilyAnthropic:
		return "anthropic"
	case FamilyOllama:
		return "ollama"
	default:
		return "unknown"
	}
}

// ParseFamily maps a configuration name to a Family.
func ParseFamily(name string) (Family, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gemini", "google":
		return FamilyGemini, true
	case "openai":
		return FamilyOpenAI, true
	case "anthropic", "claude":
		return FamilyAnthropic, true
	case "ollama":
		return FamilyOllama, true
	default:
		return 0, false
	}
}

// Role of a provider message. Tool carries a tool result back to the model.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the provider-neutral conversation.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // assistant only
	ToolCallID string     // tool only
	ToolName   string     // tool only
}

// ToolCall is a model request to invoke a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolSpec advertises a tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Request is one model call.
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float64
	MaxTokens   int
}

// Chunk is one unit of model output: a text delta, or the tool calls
// the model requested at the end of the call.
type Chunk struct {
	Text      string
	ToolCalls []ToolCall
}

// Client streams a single model call. Breaking out of the iterator
// releases the underlying connection.
type Client interface {
	Family() Family
	Model() string
	Stream(ctx context.Context, req Request) iter.Seq2[Chunk, error]
}

func parseArguments(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}

func encodeArguments(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func schemaProperties(schema map[string]any) map[string]any {
	props, _ := schema["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	return props
}

func schemaRequired(schema map[string]any) []string {
	switch r := schema["required"].(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, v := range r {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
