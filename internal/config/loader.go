package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so keys and tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	cfg.Tracing.APIKey = expandEnvVars(cfg.Tracing.APIKey)
	cfg.WhatsApp.APIKey = expandEnvVars(cfg.WhatsApp.APIKey)
	for k, v := range cfg.LLM.Headers {
		cfg.LLM.Headers[k] = expandEnvVars(v)
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the
// process environment. Variables already set are not overridden and missing
// files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return &ConfigError{Message: "failed to load " + f + ": " + err.Error()}
		}
	}
	return nil
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			expandSensitiveFields(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = d.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = d.Gateway.Bind
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = d.Logging.ConsoleStyle
	}
	if cfg.History.Backend == "" {
		cfg.History.Backend = d.History.Backend
	}
	if cfg.History.Limit == 0 {
		cfg.History.Limit = d.History.Limit
	}
	if cfg.Correlation.MaxEntries == 0 {
		cfg.Correlation.MaxEntries = d.Correlation.MaxEntries
	}
	if cfg.Correlation.TTL == 0 {
		cfg.Correlation.TTL = d.Correlation.TTL
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = d.LLM.Provider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = d.LLM.Model
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = d.LLM.TimeoutSeconds
	}
	if cfg.Agent.MaxToolRounds == 0 {
		cfg.Agent.MaxToolRounds = d.Agent.MaxToolRounds
	}
	if cfg.MCP.RetryAfter == 0 {
		cfg.MCP.RetryAfter = d.MCP.RetryAfter
	}
	if cfg.Tracing.Project == "" {
		cfg.Tracing.Project = d.Tracing.Project
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = d.Tracing.Endpoint
	}
}

// applyEnvOverrides reads the bot's environment variables and overrides
// config values. The unprefixed names match the bot's historical .env files.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZUEIRA_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("ZUEIRA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("CHAT_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.History.Limit = n
		}
	}
	if v := os.Getenv("SYSTEM_PROMPT"); v != "" {
		cfg.Agent.SystemPrompt = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_API_BASE"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("MCP_SERVER_URL"); v != "" {
		cfg.MCP.ServerURL = v
	}
	if v, ok := os.LookupEnv("LANGCHAIN_TRACING_V2"); ok {
		cfg.Tracing.Enabled = v == "true"
	}
	if v := os.Getenv("LANGCHAIN_PROJECT"); v != "" {
		cfg.Tracing.Project = v
	}
	if v := os.Getenv("LANGCHAIN_API_KEY"); v != "" {
		cfg.Tracing.APIKey = v
	}
	if v := os.Getenv("LANGCHAIN_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("WHATSAPP_BRIDGE_URL"); v != "" {
		cfg.WhatsApp.BridgeURL = v
	}
	if v := os.Getenv("WHATSAPP_BRIDGE_API_KEY"); v != "" {
		cfg.WhatsApp.APIKey = v
	}
}
