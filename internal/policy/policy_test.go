package policy

import (
	"testing"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/stretchr/testify/assert"
)

type toolMap map[string]domain.ToolDefinition

func (m toolMap) Tool(id string) (domain.ToolDefinition, bool) {
	d, ok := m[id]
	return d, ok
}

var tools = toolMap{
	"analyzeFile":      {ID: "analyzeFile"},
	"generateInsights": {ID: "generateInsights"},
}

func TestFilterToolsUnauthenticatedIsEmpty(t *testing.T) {
	agent := domain.AgentDefinition{ID: "a", ToolIDs: []string{"analyzeFile", "generateInsights"}}

	assert.Empty(t, FilterTools(tools, agent, false))
}

func TestFilterToolsKeepsAgentOrder(t *testing.T) {
	agent := domain.AgentDefinition{ID: "a", ToolIDs: []string{"generateInsights", "analyzeFile"}}

	got := FilterTools(tools, agent, true)
	if assert.Len(t, got, 2) {
		assert.Equal(t, "generateInsights", got[0].ID)
		assert.Equal(t, "analyzeFile", got[1].ID)
	}

	set := NewToolSet(got)
	assert.True(t, set.Allows("analyzeFile"))
	assert.False(t, set.Allows("deleteEverything"))
}

func TestComposePrompt(t *testing.T) {
	tests := []struct {
		name  string
		agent domain.AgentDefinition
		auth  bool
		want  string
	}{
		{"anon uses base", domain.AgentDefinition{SystemPrompt: "P", AuthenticatedSystemPrompt: "Q"}, false, "P"},
		{"auth uses authenticated", domain.AgentDefinition{SystemPrompt: "P", AuthenticatedSystemPrompt: "Q"}, true, "Q"},
		{"auth without variant", domain.AgentDefinition{SystemPrompt: "P"}, true, "P"},
		{"anon without variant", domain.AgentDefinition{SystemPrompt: "P"}, false, "P"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComposePrompt(tt.agent, tt.auth))
		})
	}
}
