package domain

import "encoding/json"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"

	// RoleUnknown marks a turn that could not be decoded. It is never
	// persisted or sent to a model.
	RoleUnknown Role = "unknown"
)

// Valid reports whether r is one of the four persisted roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is a single turn in a conversation.
type Message struct {
	Role       Role                       `json:"role"`
	Content    string                     `json:"content"`
	ToolCallID string                     `json:"toolCallId,omitempty"`
	Metadata   map[string]json.RawMessage `json:"metadata,omitempty"`
}

// MetadataToolCalls is the metadata key holding the raw tool calls an
// assistant turn requested.
const MetadataToolCalls = "tool_calls"

// ToolCall represents an LLM tool invocation requested by an assistant turn.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// SystemMessage returns a system turn with the given prompt.
func SystemMessage(prompt string) Message {
	return Message{Role: RoleSystem, Content: prompt}
}

// UserMessage returns a user turn.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage returns an assistant turn.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ToolResultMessage returns a tool-result turn correlated to a tool call.
func ToolResultMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// ToolCalls returns the tool calls attached to an assistant turn, if any.
func (m Message) ToolCalls() []ToolCall {
	raw, ok := m.Metadata[MetadataToolCalls]
	if !ok {
		return nil
	}
	var calls []ToolCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil
	}
	return calls
}

// WithToolCalls returns a copy of m carrying the given tool calls in metadata.
func (m Message) WithToolCalls(calls []ToolCall) Message {
	if len(calls) == 0 {
		return m
	}
	data, err := json.Marshal(calls)
	if err != nil {
		return m
	}
	md := make(map[string]json.RawMessage, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		md[k] = v
	}
	md[MetadataToolCalls] = data
	m.Metadata = md
	return m
}
