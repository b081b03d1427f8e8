package domain

// AgentDefinition is a named bundle selecting model, prompts, tools and auth requirement.
// Definitions are loaded once at startup and never mutated.
type AgentDefinition struct {
	ID                        string   `json:"id" mapstructure:"id"`
	DisplayName               string   `json:"name" mapstructure:"name"`
	Description               string   `json:"description,omitempty" mapstructure:"description"`
	ModelID                   string   `json:"model" mapstructure:"model"`
	Temperature               float64  `json:"temperature" mapstructure:"temperature"`
	MaxSteps                  int      `json:"maxSteps" mapstructure:"maxsteps"`
	SystemPrompt              string   `json:"-" mapstructure:"systemprompt"`
	AuthenticatedSystemPrompt string   `json:"-" mapstructure:"authenticatedsystemprompt"`
	ToolIDs                   []string `json:"tools" mapstructure:"tools"`
	RequiresAuth              bool     `json:"requiresAuth" mapstructure:"requiresauth"`
}

// VisibleTo reports whether a caller with the given auth state may see or use the agent.
func (a AgentDefinition) VisibleTo(isAuthenticated bool) bool {
	return !a.RequiresAuth || isAuthenticated
}

// ToolParameter is one field of a tool's input contract.
type ToolParameter struct {
	Name        string   `json:"name" mapstructure:"name"`
	Type        string   `json:"type" mapstructure:"type"`
	Description string   `json:"description,omitempty" mapstructure:"description"`
	Required    bool     `json:"required,omitempty" mapstructure:"required"`
	Enum        []string `json:"enum,omitempty" mapstructure:"enum"`
}

// ToolDefinition describes a contract-bound callable the model may invoke mid-generation.
type ToolDefinition struct {
	ID          string          `json:"id" mapstructure:"id"`
	Description string          `json:"description" mapstructure:"description"`
	Parameters  []ToolParameter `json:"parameters" mapstructure:"parameters"`
}

// JSONSchema renders the input contract as a JSON Schema object.
func (t ToolDefinition) JSONSchema() map[string]any {
	properties := make(map[string]any, len(t.Parameters))
	required := []string{}

	for _, p := range t.Parameters {
		prop := map[string]any{
			"type": p.Type,
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			enum := make([]any, len(p.Enum))
			for i, v := range p.Enum {
				enum[i] = v
			}
			prop["enum"] = enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// RequiredNames returns the names of required parameters in contract order.
func (t ToolDefinition) RequiredNames() []string {
	var names []string
	for _, p := range t.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}
