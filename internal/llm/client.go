// Package llm defines the chat completion client used by the agent and its
// OpenAI-compatible implementation.
//
// Every supported backend (OpenAI, OpenRouter, Ollama, LM Studio and any
// other OpenAI-compatible endpoint) speaks the chat completions API, so one
// client with a provider-specific base URL covers them all.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Role constants for messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message is a single turn sent to the model.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"toolCallId,omitempty"` // set on tool results
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`  // set on assistant turns that requested tools
}

// ToolDefinition describes a tool the LLM can invoke.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema string `json:"inputSchema"` // JSON Schema string
}

// CompletionRequest is the input to a Complete call.
type CompletionRequest struct {
	Model       string           `json:"model,omitempty"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   int              `json:"maxTokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

// CompletionResponse is the result of a completion.
type CompletionResponse struct {
	Content    string        `json:"content"`
	StopReason string        `json:"stopReason,omitempty"`
	ToolCalls  []ToolCall    `json:"toolCalls,omitempty"`
	Usage      Usage         `json:"usage"`
	Model      string        `json:"model,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// ToolCall is an LLM request to invoke a tool.
type ToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"` // JSON string
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	CacheRead    int `json:"cacheReadInputTokens,omitempty"`
}

// Client is the interface all LLM providers must implement.
type Client interface {
	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name (e.g., "openrouter", "ollama").
	Name() string
}

// ProviderError is returned when an LLM provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status code (401, 429, 500, etc.)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Retryable reports whether the failure is likely transient.
func (e *ProviderError) Retryable() bool {
	return e.Code == 429 || e.Code >= 500
}
