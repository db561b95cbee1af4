package agent

import (
	"context"
	"sort"
	"sync"

	"github.com/soyeahso/zueira/internal/llm"
)

// Tool is a capability the agent can invoke during a conversation.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string

	// Description returns a human-readable description for the LLM.
	Description() string

	// InputSchema returns the JSON Schema for the tool's input.
	InputSchema() string

	// Execute runs the tool with the given JSON input and returns its output.
	Execute(ctx context.Context, input string) (string, error)
}

// ToolRegistry holds available tools.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates a registry holding the given tools.
func NewToolRegistry(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Register adds a tool.
func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names returns the registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Definitions returns LLM-ready tool definitions sorted by name.
func (r *ToolRegistry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ToolSource supplies the tools for a turn. Implementations backed by a
// remote server may fail, in which case the agent falls back to plain
// completions.
type ToolSource interface {
	Tools(ctx context.Context) (*ToolRegistry, error)
}

// StaticTools is a ToolSource over a fixed registry.
type StaticTools struct {
	Registry *ToolRegistry
}

// Tools returns the fixed registry.
func (s StaticTools) Tools(context.Context) (*ToolRegistry, error) {
	return s.Registry, nil
}
