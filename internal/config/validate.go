package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Providers lists the supported LLM provider names.
var Providers = []string{"openai", "openrouter", "ollama", "lmstudio", "generic"}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"loopback", "lan"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	// History validation
	validBackends := []string{"file", "sqlite"}
	if cfg.History.Backend != "" && !slices.Contains(validBackends, cfg.History.Backend) {
		issues = append(issues, ValidationIssue{
			Path:    "history.backend",
			Message: fmt.Sprintf("must be one of %v, got %q", validBackends, cfg.History.Backend),
		})
	}
	if cfg.History.Limit < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "history.limit",
			Message: fmt.Sprintf("must be positive, got %d", cfg.History.Limit),
		})
	}

	if cfg.Correlation.MaxEntries < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "correlation.maxEntries",
			Message: fmt.Sprintf("must be positive, got %d", cfg.Correlation.MaxEntries),
		})
	}

	// LLM validation
	if cfg.LLM.Provider != "" && !slices.Contains(Providers, cfg.LLM.Provider) {
		issues = append(issues, ValidationIssue{
			Path:    "llm.provider",
			Message: fmt.Sprintf("must be one of %v, got %q", Providers, cfg.LLM.Provider),
		})
	}
	if cfg.LLM.Model == "" {
		issues = append(issues, ValidationIssue{
			Path:    "llm.model",
			Message: "model is required",
		})
	}
	keyless := cfg.LLM.Provider == "ollama" || cfg.LLM.Provider == "lmstudio"
	if !keyless && cfg.LLM.APIKey == "" {
		issues = append(issues, ValidationIssue{
			Path:    "llm.apiKey",
			Message: "required for provider " + cfg.LLM.Provider,
		})
	}
	if cfg.LLM.Provider == "generic" && cfg.LLM.BaseURL == "" {
		issues = append(issues, ValidationIssue{
			Path:    "llm.baseUrl",
			Message: "required for provider generic",
		})
	}

	// URLs
	issues = appendURLIssue(issues, "llm.baseUrl", cfg.LLM.BaseURL)
	issues = appendURLIssue(issues, "mcp.serverUrl", cfg.MCP.ServerURL)
	issues = appendURLIssue(issues, "whatsapp.bridgeUrl", cfg.WhatsApp.BridgeURL)

	// Tracing validation (only if enabled)
	if cfg.Tracing.Enabled {
		if cfg.Tracing.APIKey == "" {
			issues = append(issues, ValidationIssue{
				Path:    "tracing.apiKey",
				Message: "required when tracing is enabled",
			})
		}
		issues = appendURLIssue(issues, "tracing.endpoint", cfg.Tracing.Endpoint)
	}

	if cfg.WhatsApp.Enabled && cfg.WhatsApp.BridgeURL == "" {
		issues = append(issues, ValidationIssue{
			Path:    "whatsapp.bridgeUrl",
			Message: "bridge URL is required when the WhatsApp channel is enabled",
		})
	}

	return issues
}

func appendURLIssue(issues []ValidationIssue, path, raw string) []ValidationIssue {
	if raw == "" {
		return issues
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return append(issues, ValidationIssue{
			Path:    path,
			Message: fmt.Sprintf("must be an absolute URL, got %q", raw),
		})
	}
	return issues
}
