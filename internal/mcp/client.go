// Package mcp exposes the tools of a remote MCP server to the agent.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/soyeahso/zueira/internal/agent"
	"github.com/soyeahso/zueira/internal/logging"
	"github.com/soyeahso/zueira/internal/version"
)

// ErrCoolingDown is returned while a failed connection is waiting out its
// retry delay.
var ErrCoolingDown = errors.New("mcp: waiting before reconnecting")

// caller is the subset of the mcp-go client used to run tools.
type caller interface {
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Source connects lazily to an MCP server over SSE and serves its tools.
// A failed connection is retried on the first call after RetryAfter has
// elapsed; until then Tools returns ErrCoolingDown.
type Source struct {
	url        string
	retryAfter time.Duration
	log        *logging.Logger
	now        func() time.Time

	mu       sync.Mutex
	client   *client.Client
	registry *agent.ToolRegistry
	failedAt time.Time
	lastErr  error
}

// NewSource creates a tool source for the SSE endpoint at url.
func NewSource(url string, retryAfter time.Duration, log *logging.Logger) *Source {
	if retryAfter <= 0 {
		retryAfter = 5 * time.Second
	}
	return &Source{
		url:        url,
		retryAfter: retryAfter,
		log:        log.Sub("mcp"),
		now:        time.Now,
	}
}

// Tools returns the server's tools, connecting first if needed.
func (s *Source) Tools(ctx context.Context) (*agent.ToolRegistry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry != nil {
		return s.registry, nil
	}
	if !s.failedAt.IsZero() && s.now().Sub(s.failedAt) < s.retryAfter {
		return nil, fmt.Errorf("%w: %v", ErrCoolingDown, s.lastErr)
	}

	reg, err := s.connect(ctx)
	if err != nil {
		s.failedAt = s.now()
		s.lastErr = err
		s.log.Warn().Err(err).Str("url", s.url).Dur("retryAfter", s.retryAfter).Msg("MCP connection failed")
		return nil, err
	}
	s.failedAt = time.Time{}
	s.lastErr = nil
	s.registry = reg
	return reg, nil
}

func (s *Source) connect(ctx context.Context) (*agent.ToolRegistry, error) {
	c, err := client.NewSSEMCPClient(s.url)
	if err != nil {
		return nil, fmt.Errorf("create MCP client: %w", err)
	}
	// The event stream outlives the turn that opened it; Close ends it.
	if err := c.Start(context.WithoutCancel(ctx)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("start MCP client: %w", err)
	}

	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "zueira", Version: version.Version}
	if _, err := c.Initialize(ctx, init); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize MCP session: %w", err)
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("list MCP tools: %w", err)
	}

	reg := agent.NewToolRegistry()
	for _, t := range listed.Tools {
		reg.Register(newTool(c, t, s.Reset))
	}
	s.client = c

	s.log.Info().Str("url", s.url).Strs("tools", reg.Names()).Msg("MCP tools loaded")
	return reg, nil
}

// Reset drops the current connection so the next call reconnects. Tools
// call it when a request fails at the transport level.
func (s *Source) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Source) resetLocked() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.log.Debug().Err(err).Msg("closing MCP client")
		}
	}
	s.client = nil
	s.registry = nil
}

// Close releases the connection.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	return nil
}

// Tool adapts one remote MCP tool to agent.Tool.
type Tool struct {
	caller  caller
	def     mcp.Tool
	onError func()
}

func newTool(c caller, def mcp.Tool, onError func()) *Tool {
	return &Tool{caller: c, def: def, onError: onError}
}

func (t *Tool) Name() string        { return t.def.Name }
func (t *Tool) Description() string { return t.def.Description }

// InputSchema returns the tool's JSON Schema.
func (t *Tool) InputSchema() string {
	if len(t.def.RawInputSchema) > 0 {
		return string(t.def.RawInputSchema)
	}
	data, err := json.Marshal(t.def.InputSchema)
	if err != nil {
		return `{"type":"object"}`
	}
	return string(data)
}

// Execute calls the remote tool and returns its text content joined by
// newlines. A result flagged as an error is returned as an error.
func (t *Tool) Execute(ctx context.Context, input string) (string, error) {
	args := map[string]any{}
	if s := strings.TrimSpace(input); s != "" {
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", t.def.Name, err)
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.def.Name
	req.Params.Arguments = args

	res, err := t.caller.CallTool(ctx, req)
	if err != nil {
		if t.onError != nil {
			t.onError()
		}
		return "", fmt.Errorf("call %s: %w", t.def.Name, err)
	}

	text := joinText(res.Content)
	if res.IsError {
		return "", fmt.Errorf("%s: %s", t.def.Name, text)
	}
	return text, nil
}

func joinText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		if tc, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
