package orchestrator

import (
	"github.com/ashureev/agentdesk/internal/provider"
	"github.com/ashureev/agentdesk/internal/tools"
)

// EventType names an event on the chat stream. The values double as SSE event names.
type EventType string

const (
	EventContentDelta EventType = "content-delta"
	EventToolCall     EventType = "tool-call"
	EventToolResult   EventType = "tool-result"
	EventDone         EventType = "done"
	EventError        EventType = "error"
)

// Event is one incremental update sent to the caller. Exactly one of the
// payload fields is set, matching Type.
type Event struct {
	Type       EventType
	Delta      string
	ToolCall   *provider.ToolCall
	ToolResult *ToolResult
	Done       *Done
	Error      *ErrorPayload
}

// ToolResult reports the outcome of one tool invocation.
type ToolResult struct {
	ToolCallID string        `json:"toolCallId"`
	Name       string        `json:"name"`
	Result     *tools.Result `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Done closes a completed turn.
type Done struct {
	AgentID      string `json:"agentId"`
	Steps        int    `json:"steps"`
	FinishReason string `json:"finishReason"`
}

// ErrorPayload is the structured body of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Payload returns the JSON-serializable body for the event.
func (e Event) Payload() any {
	switch e.Type {
	case EventContentDelta:
		return map[string]string{"delta": e.Delta}
	case EventToolCall:
		return e.ToolCall
	case EventToolResult:
		return e.ToolResult
	case EventDone:
		return e.Done
	case EventError:
		return e.Error
	default:
		return nil
	}
}

// Finish reasons carried by Done.
const (
	FinishStop   = "stop"
	FinishBudget = "max-steps"
)
