package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/zueira/internal/config"
	"github.com/soyeahso/zueira/internal/logging"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// --- ProviderError tests ---

func TestProviderError(t *testing.T) {
	err := &ProviderError{Provider: "openrouter", Message: "rate limited", Code: 429}
	assert.Equal(t, "openrouter: 429 rate limited", err.Error())
	assert.True(t, err.Retryable())

	err = &ProviderError{Provider: "ollama", Message: "connection refused"}
	assert.Equal(t, "ollama: connection refused", err.Error())
	assert.False(t, err.Retryable())

	assert.False(t, (&ProviderError{Code: 401}).Retryable())
	assert.True(t, (&ProviderError{Code: 503}).Retryable())
}

// --- MockClient tests ---

func TestMockClient(t *testing.T) {
	m := &MockClient{ProviderName: "mock"}
	resp, err := m.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "oi"}}})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Content)
	assert.Equal(t, "mock", m.Name())
	require.Len(t, m.Requests(), 1)
	assert.Equal(t, "oi", m.Requests()[0].Messages[0].Content)
}

func TestMockClient_CustomFunc(t *testing.T) {
	m := &MockClient{CompleteFunc: func(_ context.Context, _ CompletionRequest) (*CompletionResponse, error) {
		return nil, errors.New("boom")
	}}
	_, err := m.Complete(context.Background(), CompletionRequest{})
	assert.EqualError(t, err, "boom")
}

// --- OpenAIClient tests ---

type capturedRequest struct {
	Path    string
	Headers http.Header
	Body    map[string]any
}

func fakeCompletions(t *testing.T, status int, response string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Path = r.URL.Path
		got.Headers = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &got.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

const okResponse = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "openai/gpt-4.1-nano",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Por que o pato atravessou a rua?"}}],
  "usage": {"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20}
}`

func TestOpenAIClient_Complete(t *testing.T) {
	srv, got := fakeCompletions(t, http.StatusOK, okResponse)
	temp := 0.7
	c := NewOpenAIClient(config.LLMConfig{
		Provider:    "generic",
		Model:       "openai/gpt-4.1-nano",
		APIKey:      "sk-test",
		BaseURL:     srv.URL + "/",
		Temperature: &temp,
		MaxTokens:   256,
	}, silentLog())

	resp, err := c.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "Você é o ZueiraBOT"},
			{Role: RoleUser, Content: "me conta uma piada"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Por que o pato atravessou a rua?", resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 8, resp.Usage.OutputTokens)

	assert.Equal(t, "/chat/completions", got.Path)
	assert.Equal(t, "Bearer sk-test", got.Headers.Get("Authorization"))
	assert.Equal(t, "openai/gpt-4.1-nano", got.Body["model"])
	assert.EqualValues(t, 256, got.Body["max_tokens"])
	msgs, ok := got.Body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestOpenAIClient_ToolCalls(t *testing.T) {
	srv, got := fakeCompletions(t, http.StatusOK, `{
  "choices": [{"finish_reason": "tool_calls", "message": {"role": "assistant", "content": "",
    "tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "get_joke", "arguments": "{\"topic\":\"futebol\"}"}}]}}]
}`)
	c := NewOpenAIClient(config.LLMConfig{Provider: "generic", Model: "m", BaseURL: srv.URL}, silentLog())

	resp, err := c.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleUser, Content: "piada de futebol"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_0", Name: "list_topics", Input: "{}"}}},
			{Role: RoleTool, ToolCallID: "call_0", Content: `["futebol"]`},
		},
		Tools: []ToolDefinition{{Name: "get_joke", Description: "Busca uma piada", InputSchema: `{"type":"object","properties":{"topic":{"type":"string"}}}`}},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, ToolCall{ID: "call_1", Name: "get_joke", Input: `{"topic":"futebol"}`}, resp.ToolCalls[0])

	tools, ok := got.Body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "get_joke", fn["name"])

	msgs := got.Body["messages"].([]any)
	toolMsg := msgs[2].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_0", toolMsg["tool_call_id"])
}

func TestOpenAIClient_APIError(t *testing.T) {
	srv, _ := fakeCompletions(t, http.StatusUnauthorized, `{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`)
	c := NewOpenAIClient(config.LLMConfig{Provider: "generic", Model: "m", BaseURL: srv.URL}, silentLog())

	_, err := c.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "oi"}}})
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 401, pe.Code)
	assert.Equal(t, "generic", pe.Provider)
	assert.Contains(t, pe.Message, "invalid api key")
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv, _ := fakeCompletions(t, http.StatusOK, `{"choices": []}`)
	c := NewOpenAIClient(config.LLMConfig{Provider: "generic", Model: "m", BaseURL: srv.URL}, silentLog())

	_, err := c.Complete(context.Background(), CompletionRequest{})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "empty response", pe.Message)
}

func TestOpenAIClient_OpenRouterHeaders(t *testing.T) {
	srv, got := fakeCompletions(t, http.StatusOK, okResponse)
	c := NewOpenAIClient(config.LLMConfig{
		Provider: "openrouter",
		Model:    "m",
		BaseURL:  srv.URL,
		Headers:  map[string]string{"X-Title": "Zueira Staging"},
	}, silentLog())

	_, err := c.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "oi"}}})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/soyeahso/zueira", got.Headers.Get("HTTP-Referer"))
	assert.Equal(t, "Zueira Staging", got.Headers.Get("X-Title"))
	assert.Equal(t, "openrouter", c.Name())
}

func TestSchemaOrEmpty(t *testing.T) {
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(schemaOrEmpty("")))
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(schemaOrEmpty("{broken")))
	assert.JSONEq(t, `{"type":"string"}`, string(schemaOrEmpty(`{"type":"string"}`)))
}
