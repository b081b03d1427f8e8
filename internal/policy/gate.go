// Package policy decides what a caller may use: which tools and which system prompt.
package policy

import "github.com/ashureev/agentdesk/internal/domain"

// ToolSource looks up tool definitions by id.
type ToolSource interface {
	Tool(id string) (domain.ToolDefinition, bool)
}

// FilterTools returns the tools the model may call for this agent and caller.
// Unauthenticated callers never receive tools, whatever the agent declares.
func FilterTools(src ToolSource, agent domain.AgentDefinition, isAuthenticated bool) []domain.ToolDefinition {
	if !isAuthenticated {
		return nil
	}
	out := make([]domain.ToolDefinition, 0, len(agent.ToolIDs))
	for _, id := range agent.ToolIDs {
		if def, ok := src.Tool(id); ok {
			out = append(out, def)
		}
	}
	return out
}

// ToolSet indexes a gated tool list by id.
type ToolSet map[string]domain.ToolDefinition

// NewToolSet builds a lookup over tools.
func NewToolSet(tools []domain.ToolDefinition) ToolSet {
	set := make(ToolSet, len(tools))
	for _, t := range tools {
		set[t.ID] = t
	}
	return set
}

// Allows reports whether id is in the gated set.
func (s ToolSet) Allows(id string) bool {
	_, ok := s[id]
	return ok
}
