package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultHistoryLimit      = 20
	DefaultCorrelationSize   = 10000
	DefaultCorrelationTTL    = 24 * time.Hour
	DefaultLangSmithEndpoint = "https://api.smith.langchain.com"
	DefaultMaxToolRounds     = 5
	DefaultMCPRetry          = 5 * time.Second
	DefaultBridgeURL         = "http://127.0.0.1:3001"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 18790,
			Bind: "loopback",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
		History: HistoryConfig{
			Backend: "file",
			Limit:   DefaultHistoryLimit,
		},
		Correlation: CorrelationConfig{
			MaxEntries: DefaultCorrelationSize,
			TTL:        DefaultCorrelationTTL,
		},
		LLM: LLMConfig{
			Provider:       "openrouter",
			Model:          "openai/gpt-4.1-nano",
			TimeoutSeconds: 60,
		},
		Agent: AgentConfig{
			MaxToolRounds: DefaultMaxToolRounds,
		},
		MCP: MCPConfig{
			RetryAfter: DefaultMCPRetry,
		},
		Tracing: TracingConfig{
			Project:  "default",
			Endpoint: DefaultLangSmithEndpoint,
		},
		WhatsApp: WhatsAppConfig{
			Enabled:   true,
			BridgeURL: DefaultBridgeURL,
		},
	}
}
