package config

import "time"

// Config is the root configuration for zueira.
type Config struct {
	Gateway     GatewayConfig     `yaml:"gateway,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	History     HistoryConfig     `yaml:"history,omitempty"`
	Correlation CorrelationConfig `yaml:"correlation,omitempty"`
	LLM         LLMConfig         `yaml:"llm,omitempty"`
	Agent       AgentConfig       `yaml:"agent,omitempty"`
	MCP         MCPConfig         `yaml:"mcp,omitempty"`
	Tracing     TracingConfig     `yaml:"tracing,omitempty"`
	WhatsApp    WhatsAppConfig    `yaml:"whatsapp,omitempty"`
	Store       StoreConfig       `yaml:"store,omitempty"`
}

// GatewayConfig controls the ops HTTP server.
type GatewayConfig struct {
	Enabled bool        `yaml:"enabled,omitempty"`
	Port    int         `yaml:"port,omitempty"`
	Bind    string      `yaml:"bind,omitempty"` // "loopback" | "lan"
	Auth    GatewayAuth `yaml:"auth,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Token string `yaml:"token,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// HistoryConfig selects where conversation documents live.
type HistoryConfig struct {
	Backend string `yaml:"backend,omitempty"` // "file" | "sqlite"
	Dir     string `yaml:"dir,omitempty"`     // file backend directory; defaults to <base>/data
	Limit   int    `yaml:"limit,omitempty"`
}

// CorrelationConfig bounds the run correlator.
type CorrelationConfig struct {
	MaxEntries int           `yaml:"maxEntries,omitempty"`
	TTL        time.Duration `yaml:"ttl,omitempty"`
}

// LLMConfig selects the OpenAI-compatible model backend.
type LLMConfig struct {
	Provider       string            `yaml:"provider,omitempty"` // "openai" | "openrouter" | "ollama" | "lmstudio" | "generic"
	Model          string            `yaml:"model,omitempty"`
	APIKey         string            `yaml:"apiKey,omitempty"`
	BaseURL        string            `yaml:"baseUrl,omitempty"`
	Temperature    *float64          `yaml:"temperature,omitempty"`
	MaxTokens      int               `yaml:"maxTokens,omitempty"`
	TimeoutSeconds int               `yaml:"timeoutSeconds,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
}

// AgentConfig controls the response orchestrator.
type AgentConfig struct {
	SystemPrompt    string `yaml:"systemPrompt,omitempty"`
	ExtraPrompt     string `yaml:"extraPrompt,omitempty"`
	MaxToolRounds   int    `yaml:"maxToolRounds,omitempty"`
	DisableFallback bool   `yaml:"disableFallback,omitempty"` // do not retry with the plain model when the tool agent fails
}

// MCPConfig points at the tool server.
type MCPConfig struct {
	ServerURL  string        `yaml:"serverUrl,omitempty"`
	RetryAfter time.Duration `yaml:"retryAfter,omitempty"`
}

// TracingConfig configures LangSmith run and feedback recording.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	Project  string `yaml:"project,omitempty"`
	APIKey   string `yaml:"apiKey,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// WhatsAppConfig points at the WhatsApp Web bridge.
type WhatsAppConfig struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	BridgeURL string `yaml:"bridgeUrl,omitempty"`
	APIKey    string `yaml:"apiKey,omitempty"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"` // defaults to <base>/zueira.db
}
