package policy

import "github.com/ashureev/agentdesk/internal/domain"

// ComposePrompt picks the system prompt for an agent and caller.
func ComposePrompt(agent domain.AgentDefinition, isAuthenticated bool) string {
	if isAuthenticated && agent.AuthenticatedSystemPrompt != "" {
		return agent.AuthenticatedSystemPrompt
	}
	return agent.SystemPrompt
}
