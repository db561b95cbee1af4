package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/logging"
	"github.com/soyeahso/zueira/internal/version"
)

// Tool names served by the joke server.
const (
	ToolGetJoke        = "get_joke"
	ToolListTopics     = "list_topics"
	ToolRecordFeedback = "record_feedback"
	ToolJokeStats      = "joke_stats"
)

// NewJokeServer builds an MCP server exposing the catalog as tools.
func NewJokeServer(catalog *Catalog, log *logging.Logger) *server.MCPServer {
	h := &jokeHandlers{catalog: catalog, log: log.Sub("mcp.jokes")}

	s := server.NewMCPServer("zueira-jokes", version.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool(ToolGetJoke,
		mcp.WithDescription("Returns a random joke as JSON {id, topic, setup, punchline}. Optionally filtered by topic."),
		mcp.WithString("topic", mcp.Description("Joke topic, see list_topics. Empty for any topic.")),
	), h.getJoke)

	s.AddTool(mcp.NewTool(ToolListTopics,
		mcp.WithDescription("Lists the available joke topics."),
	), h.listTopics)

	s.AddTool(mcp.NewTool(ToolRecordFeedback,
		mcp.WithDescription("Records whether the user liked a joke."),
		mcp.WithString("jokeId", mcp.Required(), mcp.Description("The id returned by get_joke.")),
		mcp.WithString("polarity", mcp.Required(), mcp.Enum("positive", "negative")),
	), h.recordFeedback)

	s.AddTool(mcp.NewTool(ToolJokeStats,
		mcp.WithDescription("Returns how often each joke was served and rated."),
	), h.stats)

	return s
}

type jokeHandlers struct {
	catalog *Catalog
	log     *logging.Logger
}

func (h *jokeHandlers) getJoke(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	j := h.catalog.Random(req.GetString("topic", ""))
	h.log.Debug().Str("jokeId", j.ID).Str("topic", j.Topic).Msg("joke served")
	return jsonResult(j)
}

func (h *jokeHandlers) listTopics(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"topics": h.catalog.Topics()})
}

func (h *jokeHandlers) recordFeedback(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("jokeId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	polarity, err := req.RequireString("polarity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.catalog.RecordFeedback(id, domain.Polarity(polarity)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	h.log.Info().Str("jokeId", id).Str("polarity", polarity).Msg("joke feedback recorded")
	return jsonResult(map[string]any{"jokeId": id, "recorded": true})
}

func (h *jokeHandlers) stats(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tally, served := h.catalog.Stats()
	return jsonResult(map[string]any{"ratings": tally, "served": served})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
