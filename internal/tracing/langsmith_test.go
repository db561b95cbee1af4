package tracing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/logging"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

type call struct {
	Method string
	Path   string
	APIKey string
	Body   map[string]any
}

type fakeLangSmith struct {
	mu     sync.Mutex
	calls  []call
	status int
}

func (f *fakeLangSmith) handler(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)

	f.mu.Lock()
	f.calls = append(f.calls, call{Method: r.Method, Path: r.URL.Path, APIKey: r.Header.Get("x-api-key"), Body: body})
	status := f.status
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{}`))
}

func newFake(t *testing.T, status int) (*fakeLangSmith, *LangSmith) {
	t.Helper()
	f := &fakeLangSmith{status: status}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)
	ls := NewLangSmith(LangSmithConfig{Endpoint: srv.URL + "/", APIKey: "ls-key", Project: "zueira", Timeout: time.Second}, silentLog())
	ls.client.RetryMax = 0
	return f, ls
}

func TestLangSmith_StartAndEndRun(t *testing.T) {
	f, ls := newFake(t, 0)
	ctx := context.Background()

	require.NoError(t, ls.StartRun(ctx, Run{
		ID:             "run-1",
		Name:           "generate_reply",
		ConversationID: "c1",
		Inputs:         map[string]any{"message": "oi"},
		Tags:           []string{"whatsapp"},
	}))
	require.NoError(t, ls.EndRun(ctx, "run-1", map[string]any{"reply": "R"}, nil))

	require.Len(t, f.calls, 2)

	start := f.calls[0]
	assert.Equal(t, http.MethodPost, start.Method)
	assert.Equal(t, "/runs", start.Path)
	assert.Equal(t, "ls-key", start.APIKey)
	assert.Equal(t, "run-1", start.Body["id"])
	assert.Equal(t, "chain", start.Body["run_type"])
	assert.Equal(t, "zueira", start.Body["session_name"])
	extra := start.Body["extra"].(map[string]any)
	assert.Equal(t, "c1", extra["metadata"].(map[string]any)["conversation_id"])

	end := f.calls[1]
	assert.Equal(t, http.MethodPatch, end.Method)
	assert.Equal(t, "/runs/run-1", end.Path)
	assert.Equal(t, "R", end.Body["outputs"].(map[string]any)["reply"])
	assert.NotContains(t, end.Body, "error")
}

func TestLangSmith_EndRunWithError(t *testing.T) {
	f, ls := newFake(t, 0)
	require.NoError(t, ls.EndRun(context.Background(), "run-2", nil, errors.New("model down")))
	require.Len(t, f.calls, 1)
	assert.Equal(t, "model down", f.calls[0].Body["error"])
}

func TestLangSmith_RecordFeedback(t *testing.T) {
	tests := []struct {
		polarity domain.Polarity
		score    float64
	}{
		{domain.PolarityPositive, 1},
		{domain.PolarityNegative, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.polarity), func(t *testing.T) {
			f, ls := newFake(t, 0)
			err := ls.RecordFeedback(context.Background(), domain.Feedback{
				RunID:          "run-1",
				ConversationID: "5511@c.us",
				ItemID:         "joke-7",
				Polarity:       tt.polarity,
				Comment:        "adorei",
			})
			require.NoError(t, err)
			require.Len(t, f.calls, 1)

			c := f.calls[0]
			assert.Equal(t, "/feedback", c.Path)
			assert.Equal(t, "run-1", c.Body["run_id"])
			assert.Equal(t, FeedbackKey, c.Body["key"])
			assert.Equal(t, tt.score, c.Body["score"])
			assert.Equal(t, "adorei", c.Body["comment"])

			src := c.Body["feedback_source"].(map[string]any)
			md := src["metadata"].(map[string]any)
			assert.Equal(t, "whatsapp", md["source_type"])
			assert.Equal(t, "5511@c.us", md["chat_id"])
			assert.Equal(t, "joke-7", md["item_id"])
		})
	}
}

func TestLangSmith_DefaultComment(t *testing.T) {
	f, ls := newFake(t, 0)
	require.NoError(t, ls.RecordFeedback(context.Background(), domain.Feedback{RunID: "r", ConversationID: "c9", Polarity: domain.PolarityPositive}))
	assert.Equal(t, "Feedback from chat c9", f.calls[0].Body["comment"])
}

func TestLangSmith_HTTPError(t *testing.T) {
	_, ls := newFake(t, http.StatusForbidden)
	err := ls.StartRun(context.Background(), Run{ID: "run-1", Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestNoop(t *testing.T) {
	var s Sink = Noop{}
	ctx := context.Background()
	assert.NoError(t, s.StartRun(ctx, Run{ID: "r"}))
	assert.NoError(t, s.EndRun(ctx, "r", nil, nil))
	assert.NoError(t, s.RecordFeedback(ctx, domain.Feedback{}))
}
