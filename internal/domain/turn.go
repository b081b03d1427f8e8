package domain

import "time"

// Role identifies the author of a conversation entry.
type Role string

const (
	// RoleUser marks a message written by the caller.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the model.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the conversational roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one entry of the conversation sent with a chat request.
type Message struct {
	Role          Role   `json:"role"`
	Content       string `json:"content"`
	ExtractedText string `json:"extractedText,omitempty"`
}

// Turn is a persisted conversation message. Turns are append-only.
// AgentID is a soft reference: the agent may later disappear from configuration.
type Turn struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	OwnerID       string    `json:"ownerId"`
	AgentID       string    `json:"agentId"`
	ExtractedText string    `json:"extractedText,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AsMessage converts a stored turn back into a request message.
func (t Turn) AsMessage() Message {
	return Message{Role: t.Role, Content: t.Content, ExtractedText: t.ExtractedText}
}
