// Package registry holds the immutable set of agent and tool definitions.
package registry

import (
	"fmt"

	"github.com/ashureev/agentdesk/internal/config"
	"github.com/ashureev/agentdesk/internal/domain"
)

// Registry resolves agents and tools by id. It is safe for concurrent use
// because nothing mutates it after New returns.
type Registry struct {
	agents       []domain.AgentDefinition
	byID         map[string]int
	tools        []domain.ToolDefinition
	toolByID     map[string]int
	defaultAgent string
}

// New validates the catalog and builds a registry.
// Any inconsistency is a *domain.ConfigError and should abort startup.
func New(cat *config.Catalog) (*Registry, error) {
	if cat == nil {
		return nil, &domain.ConfigError{Op: "registry", Err: fmt.Errorf("nil catalog")}
	}

	r := &Registry{
		byID:         make(map[string]int, len(cat.Agents)),
		toolByID:     make(map[string]int, len(cat.Tools)),
		defaultAgent: cat.DefaultAgent,
	}

	for _, t := range cat.Tools {
		if t.ID == "" {
			return nil, &domain.ConfigError{Op: "registry", Err: fmt.Errorf("tool with empty id")}
		}
		if _, dup := r.toolByID[t.ID]; dup {
			return nil, &domain.ConfigError{Op: "registry", Err: fmt.Errorf("duplicate tool id %q", t.ID)}
		}
		r.toolByID[t.ID] = len(r.tools)
		r.tools = append(r.tools, t)
	}

	for _, a := range cat.Agents {
		if err := r.checkAgent(a); err != nil {
			return nil, &domain.ConfigError{Op: "registry", Err: err}
		}
		r.byID[a.ID] = len(r.agents)
		r.agents = append(r.agents, a)
	}

	i, ok := r.byID[r.defaultAgent]
	if !ok {
		return nil, &domain.ConfigError{
			Op:  "registry",
			Err: fmt.Errorf("%w: %q", domain.ErrDefaultAgent, r.defaultAgent),
		}
	}
	// Anonymous callers fall back to the default, so it must be public.
	if r.agents[i].RequiresAuth {
		return nil, &domain.ConfigError{
			Op:  "registry",
			Err: fmt.Errorf("%w: %q requires authentication", domain.ErrDefaultAgent, r.defaultAgent),
		}
	}

	return r, nil
}

func (r *Registry) checkAgent(a domain.AgentDefinition) error {
	if a.ID == "" {
		return fmt.Errorf("agent with empty id")
	}
	if _, dup := r.byID[a.ID]; dup {
		return fmt.Errorf("duplicate agent id %q", a.ID)
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		return fmt.Errorf("agent %q: temperature %v outside [0,2]", a.ID, a.Temperature)
	}
	if a.MaxSteps < 1 {
		return fmt.Errorf("agent %q: maxSteps must be >= 1", a.ID)
	}
	if a.SystemPrompt == "" {
		return fmt.Errorf("agent %q: systemPrompt is required", a.ID)
	}
	for _, id := range a.ToolIDs {
		if _, ok := r.toolByID[id]; !ok {
			return fmt.Errorf("agent %q: %w %q", a.ID, domain.ErrUnknownTool, id)
		}
	}
	return nil
}

// Agent returns the definition for id.
func (r *Registry) Agent(id string) (domain.AgentDefinition, bool) {
	i, ok := r.byID[id]
	if !ok {
		return domain.AgentDefinition{}, false
	}
	return r.agents[i], true
}

// Default returns the configured default agent.
func (r *Registry) Default() domain.AgentDefinition {
	return r.agents[r.byID[r.defaultAgent]]
}

// Resolve returns the agent for id, or the default agent when id is unknown.
func (r *Registry) Resolve(id string) domain.AgentDefinition {
	if a, ok := r.Agent(id); ok {
		return a
	}
	return r.Default()
}

// Available lists the agents visible to a caller, in configuration order.
func (r *Registry) Available(isAuthenticated bool) []domain.AgentDefinition {
	out := make([]domain.AgentDefinition, 0, len(r.agents))
	for _, a := range r.agents {
		if a.VisibleTo(isAuthenticated) {
			out = append(out, a)
		}
	}
	return out
}

// All lists every configured agent.
func (r *Registry) All() []domain.AgentDefinition {
	return append([]domain.AgentDefinition(nil), r.agents...)
}

// Tool returns the tool definition for id.
func (r *Registry) Tool(id string) (domain.ToolDefinition, bool) {
	i, ok := r.toolByID[id]
	if !ok {
		return domain.ToolDefinition{}, false
	}
	return r.tools[i], true
}

// Tools lists every configured tool.
func (r *Registry) Tools() []domain.ToolDefinition {
	return append([]domain.ToolDefinition(nil), r.tools...)
}
