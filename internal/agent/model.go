package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/llm"
	"github.com/soyeahso/zueira/internal/logging"
)

// ErrNoReply is returned when the model produced no response at all.
var ErrNoReply = errors.New("no response from model")

// Model produces the turns answering a conversation window. The last
// assistant turn of the result is the reply; tool agents also return the
// intermediate tool-call and tool-result turns in order.
type Model interface {
	Invoke(ctx context.Context, window []domain.Message) ([]domain.Message, error)
}

// ModelOptions are the completion parameters shared by both models.
type ModelOptions struct {
	Model       string
	MaxTokens   int
	Temperature *float64
}

// PlainModel answers with a single completion and no tools.
type PlainModel struct {
	client llm.Client
	opts   ModelOptions
}

// NewPlainModel creates a plain completion model.
func NewPlainModel(client llm.Client, opts ModelOptions) *PlainModel {
	return &PlainModel{client: client, opts: opts}
}

// Invoke sends the window and returns the single assistant turn.
func (m *PlainModel) Invoke(ctx context.Context, window []domain.Message) ([]domain.Message, error) {
	resp, err := m.client.Complete(ctx, llm.CompletionRequest{
		Model:       m.opts.Model,
		Messages:    toLLMMessages(window),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: m.opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM completion: %w", err)
	}
	if resp == nil {
		return nil, ErrNoReply
	}
	return []domain.Message{domain.AssistantMessage(resp.Content)}, nil
}

// ToolAgent runs a tool-calling loop: the model may request tools, whose
// results are fed back until it answers without tool calls or the round
// limit is hit.
type ToolAgent struct {
	client    llm.Client
	tools     ToolSource
	opts      ModelOptions
	maxRounds int
	log       *logging.Logger
}

// NewToolAgent creates a tool-calling agent.
func NewToolAgent(client llm.Client, tools ToolSource, opts ModelOptions, maxRounds int, log *logging.Logger) *ToolAgent {
	if maxRounds <= 0 {
		maxRounds = 5
	}
	return &ToolAgent{
		client:    client,
		tools:     tools,
		opts:      opts,
		maxRounds: maxRounds,
		log:       log.Sub("agent.tools"),
	}
}

// Invoke runs the loop and returns every turn it produced.
func (a *ToolAgent) Invoke(ctx context.Context, window []domain.Message) ([]domain.Message, error) {
	registry, err := a.tools.Tools(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tools: %w", err)
	}
	defs := registry.Definitions()

	var produced []domain.Message
	for round := 0; round < a.maxRounds; round++ {
		resp, err := a.complete(ctx, window, produced, defs)
		if err != nil {
			return produced, err
		}

		if len(resp.ToolCalls) == 0 {
			return append(produced, domain.AssistantMessage(resp.Content)), nil
		}

		a.log.Info().Int("round", round+1).Int("toolCalls", len(resp.ToolCalls)).Msg("executing tool calls")

		calls := make([]domain.ToolCall, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			calls = append(calls, domain.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Input})
		}
		produced = append(produced, domain.AssistantMessage(resp.Content).WithToolCalls(calls))

		for _, tc := range calls {
			produced = append(produced, domain.ToolResultMessage(tc.ID, a.execute(ctx, registry, tc)))
		}
	}

	// Round limit reached: ask for a final answer without tools.
	a.log.Warn().Int("rounds", a.maxRounds).Msg("tool round limit reached")
	resp, err := a.complete(ctx, window, produced, nil)
	if err != nil {
		return produced, err
	}
	return append(produced, domain.AssistantMessage(resp.Content)), nil
}

func (a *ToolAgent) complete(ctx context.Context, window, produced []domain.Message, defs []llm.ToolDefinition) (*llm.CompletionResponse, error) {
	msgs := make([]domain.Message, 0, len(window)+len(produced))
	msgs = append(msgs, window...)
	msgs = append(msgs, produced...)

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		Model:       a.opts.Model,
		Messages:    toLLMMessages(msgs),
		Tools:       defs,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM completion: %w", err)
	}
	if resp == nil {
		return nil, ErrNoReply
	}
	return resp, nil
}

// execute runs one tool call. Failures are reported to the model as the
// tool result instead of aborting the turn.
func (a *ToolAgent) execute(ctx context.Context, registry *ToolRegistry, tc domain.ToolCall) string {
	tool, ok := registry.Get(tc.Name)
	if !ok {
		a.log.Warn().Str("tool", tc.Name).Msg("model requested unknown tool")
		return fmt.Sprintf("Error: unknown tool: %s", tc.Name)
	}

	a.log.Debug().Str("tool", tc.Name).Str("id", tc.ID).Msg("executing tool")
	out, err := tool.Execute(ctx, tc.Arguments)
	if err != nil {
		a.log.Warn().Err(err).Str("tool", tc.Name).Msg("tool failed")
		return fmt.Sprintf("Error: %s", err)
	}
	return out
}

// toLLMMessages converts turns for the completion API. Tool results whose
// call was not announced by an earlier assistant turn in the same window are
// dropped, and tool calls left without any result are stripped, since the
// API rejects both.
func toLLMMessages(msgs []domain.Message) []llm.Message {
	answered := make(map[string]bool)
	for _, m := range msgs {
		if m.Role == domain.RoleTool && m.ToolCallID != "" {
			answered[m.ToolCallID] = true
		}
	}

	announced := make(map[string]bool)
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleTool:
			if !announced[m.ToolCallID] {
				continue
			}
			out = append(out, llm.Message{Role: llm.RoleTool, Content: m.Content, ToolCallID: m.ToolCallID})

		case domain.RoleAssistant:
			lm := llm.Message{Role: llm.RoleAssistant, Content: m.Content}
			calls := m.ToolCalls()
			complete := len(calls) > 0
			for _, c := range calls {
				if !answered[c.ID] {
					complete = false
				}
			}
			if complete {
				for _, c := range calls {
					announced[c.ID] = true
					lm.ToolCalls = append(lm.ToolCalls, llm.ToolCall{ID: c.ID, Name: c.Name, Input: c.Arguments})
				}
			} else if lm.Content == "" {
				continue
			}
			out = append(out, lm)

		case domain.RoleSystem, domain.RoleUser:
			out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
		}
	}
	return out
}
