package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/logging"
	"github.com/soyeahso/zueira/internal/store"
)

// fakeLLM answers chat completions with a canned joke and records prompts.
type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
}

func (f *fakeLLM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	if n := len(req.Messages); n > 0 {
		f.prompts = append(f.prompts, req.Messages[n-1].Content)
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": "Por que o livro de matemática está triste? Porque tem muitos problemas."},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 12, "total_tokens": 22},
	})
}

// setupHome points the CLI at a fresh base directory and a fake LLM.
func setupHome(t *testing.T) (string, *fakeLLM) {
	t.Helper()
	home := t.TempDir()
	llm := &fakeLLM{}
	ts := httptest.NewServer(llm)
	t.Cleanup(ts.Close)

	t.Setenv("ZUEIRA_HOME", home)
	for _, k := range []string{
		"ZUEIRA_LOG_LEVEL", "ZUEIRA_GATEWAY_TOKEN", "LLM_PROVIDER", "LLM_MODEL", "LLM_API_KEY",
		"LLM_API_BASE", "MCP_SERVER_URL", "LANGCHAIN_PROJECT", "LANGCHAIN_API_KEY", "SYSTEM_PROMPT",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("LANGCHAIN_TRACING_V2", "false")

	conf := `llm:
  provider: generic
  model: test-model
  apiKey: test-key
  baseUrl: ` + ts.URL + `/v1
whatsapp:
  enabled: false
`
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(conf), 0o600))
	return home, llm
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	setupHome(t)

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "zueira "))
}

func TestConfigPath(t *testing.T) {
	home, _ := setupHome(t)

	out, err := execute(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.yaml"), strings.TrimSpace(out))

	out, err = execute(t, "--config", "/tmp/other.yaml", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.yaml", strings.TrimSpace(out))
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	setupHome(t)

	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "model: test-model")
	assert.Contains(t, out, redacted)
	assert.NotContains(t, out, "test-key")

	out, err = execute(t, "config", "show", "--reveal")
	require.NoError(t, err)
	assert.Contains(t, out, "apiKey: test-key")
}

func TestConfigValidate(t *testing.T) {
	home, _ := setupHome(t)

	out, err := execute(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")

	bad := "llm:\n  provider: nope\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(bad), 0o600))
	out, err = execute(t, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, out, "llm.provider")
}

func TestRedact(t *testing.T) {
	c := cfg
	c.LLM.APIKey = "sk-1"
	c.LLM.Headers = map[string]string{"X-Title": "zueira"}
	c.Gateway.Auth.Token = ""

	r := redact(c)
	assert.Equal(t, redacted, r.LLM.APIKey)
	assert.Equal(t, redacted, r.LLM.Headers["X-Title"])
	assert.Empty(t, r.Gateway.Auth.Token)
	assert.Equal(t, "zueira", c.LLM.Headers["X-Title"], "original headers must not change")
}

func TestMessageSend_PersistsHistory(t *testing.T) {
	_, llm := setupHome(t)

	out, err := execute(t, "message", "send", "--conversation", "5511999@c.us", "me", "conta", "uma", "piada")
	require.NoError(t, err)
	assert.Contains(t, out, "Porque tem muitos problemas.")
	assert.Equal(t, []string{"me conta uma piada"}, llm.prompts)

	out, err = execute(t, "history", "list")
	require.NoError(t, err)
	assert.Equal(t, "5511999@c.us", strings.TrimSpace(out))

	out, err = execute(t, "history", "show", "5511999@c.us")
	require.NoError(t, err)
	assert.Contains(t, out, "user")
	assert.Contains(t, out, "me conta uma piada")
	assert.Contains(t, out, "assistant")

	out, err = execute(t, "history", "clear", "5511999@c.us")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")

	out, err = execute(t, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no conversations")
}

func TestMessageSend_FailsValidation(t *testing.T) {
	setupHome(t)
	t.Setenv("LLM_PROVIDER", "nope")

	_, err := execute(t, "message", "send", "oi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestMessagePush_RequiresWhatsApp(t *testing.T) {
	setupHome(t)

	_, err := execute(t, "message", "push", "5511999@c.us", "oi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestFeedback(t *testing.T) {
	home, _ := setupHome(t)

	out, err := execute(t, "feedback", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no feedback recorded")

	db, err := store.Open(filepath.Join(home, "zueira.db"), logging.New(nil, "silent"))
	require.NoError(t, err)
	ledger := store.NewFeedbackLog(db)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, ledger.RecordFeedback(ctx, domain.Feedback{RunID: "r1", ConversationID: "c1", Polarity: domain.PolarityPositive, Comment: "kkkk", CreatedAt: now}))
	require.NoError(t, ledger.RecordFeedback(ctx, domain.Feedback{RunID: "r2", ConversationID: "c2", Polarity: domain.PolarityPositive, Comment: "boa", CreatedAt: now}))
	require.NoError(t, ledger.RecordFeedback(ctx, domain.Feedback{RunID: "r3", ConversationID: "c1", Polarity: domain.PolarityNegative, Comment: "sem graça", CreatedAt: now}))
	require.NoError(t, db.Close())

	out, err = execute(t, "feedback", "list", "--conversation", "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "kkkk")
	assert.Contains(t, out, "sem graça")
	assert.NotContains(t, out, "boa")

	out, err = execute(t, "feedback", "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "positive: 2")
	assert.Contains(t, out, "negative: 1")
	assert.Contains(t, out, "approval: 67%")
}

func TestStatus(t *testing.T) {
	setupHome(t)

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "provider=generic model=test-model")
	assert.Contains(t, out, "WhatsApp: (disabled)")
	assert.Contains(t, out, "Tools:    (none, plain model only)")
	assert.NotContains(t, out, "Validation issues")
}
