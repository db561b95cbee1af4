package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/soyeahso/zueira/internal/config"
	"github.com/soyeahso/zueira/internal/httpx"
	"github.com/soyeahso/zueira/internal/logging"
)

// Default base URLs per provider. "openai" uses the SDK default.
var defaultBaseURLs = map[string]string{
	"openrouter": "https://openrouter.ai/api/v1",
	"ollama":     "http://localhost:11434/v1",
	"lmstudio":   "http://localhost:1234/v1",
}

// openRouterHeaders identify the app on openrouter.ai leaderboards.
var openRouterHeaders = map[string]string{
	"HTTP-Referer": "https://github.com/soyeahso/zueira",
	"X-Title":      "ZueiraBOT",
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client      *openai.Client
	provider    string
	model       string
	maxTokens   int
	temperature *float64
	timeout     time.Duration
	log         *logging.Logger
}

// NewOpenAIClient creates a client for the configured provider.
func NewOpenAIClient(cfg config.LLMConfig, log *logging.Logger) *OpenAIClient {
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}

	headers := map[string]string{}
	if provider == "openrouter" {
		for k, v := range openRouterHeaders {
			headers[k] = v
		}
	}
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	} else if u, ok := defaultBaseURLs[provider]; ok {
		clientConfig.BaseURL = u
	}
	clientConfig.HTTPClient = httpx.Standard(httpx.Options{
		Timeout:  timeout,
		RetryMax: 2,
		Headers:  headers,
	}, log.Sub("llm.http"))

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		provider:    provider,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
		log:         log.Sub("llm"),
	}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string { return c.provider }

// Model returns the default model id.
func (c *OpenAIClient) Model() string { return c.model }

// Complete sends a chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	oreq := c.buildRequest(req)

	c.log.Debug().
		Str("model", oreq.Model).
		Int("messages", len(oreq.Messages)).
		Int("tools", len(oreq.Tools)).
		Msg("chat completion request")

	resp, err := c.client.CreateChatCompletion(ctx, oreq)
	if err != nil {
		return nil, c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: c.provider, Message: "empty response"}
	}

	choice := resp.Choices[0]
	out := &CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Model:      resp.Model,
		Duration:   time.Since(start),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if resp.Usage.PromptTokensDetails != nil {
		out.Usage.CacheRead = resp.Usage.PromptTokensDetails.CachedTokens
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: tc.Function.Arguments,
		})
	}

	c.log.Debug().
		Str("model", out.Model).
		Int("inputTokens", out.Usage.InputTokens).
		Int("outputTokens", out.Usage.OutputTokens).
		Int("toolCalls", len(out.ToolCalls)).
		Dur("duration", out.Duration).
		Msg("chat completion response")
	return out, nil
}

func (c *OpenAIClient) buildRequest(req CompletionRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	temperature := req.Temperature
	if temperature == nil {
		temperature = c.temperature
	}

	oreq := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  convertMessages(req.Messages),
	}
	if temperature != nil {
		oreq.Temperature = float32(*temperature)
	}
	for _, t := range req.Tools {
		oreq.Tools = append(oreq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaOrEmpty(t.InputSchema),
			},
		})
	}
	return oreq
}

func convertMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Input,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

// schemaOrEmpty returns the schema as raw JSON, or an empty object schema
// when it is missing or invalid.
func schemaOrEmpty(schema string) json.RawMessage {
	if schema == "" || !json.Valid([]byte(schema)) {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return json.RawMessage(schema)
}

func (c *OpenAIClient) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: c.provider, Message: apiErr.Message, Code: apiErr.HTTPStatusCode}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: c.provider, Message: reqErr.Error(), Code: reqErr.HTTPStatusCode}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Provider: c.provider, Message: "request timed out"}
	}
	return fmt.Errorf("%s: %w", c.provider, err)
}
