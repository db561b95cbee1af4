package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/httpx"
	"github.com/soyeahso/zueira/internal/logging"
)

// FeedbackKey is the LangSmith feedback key used for user ratings.
const FeedbackKey = "user_rating"

// LangSmithConfig configures the LangSmith REST client.
type LangSmithConfig struct {
	Endpoint string
	APIKey   string
	Project  string
	Timeout  time.Duration
}

// LangSmith records runs and feedback through the LangSmith REST API.
type LangSmith struct {
	endpoint string
	apiKey   string
	project  string
	client   *retryablehttp.Client
	log      *logging.Logger
}

// NewLangSmith creates a LangSmith sink.
func NewLangSmith(cfg LangSmithConfig, log *logging.Logger) *LangSmith {
	l := log.Sub("tracing")
	if cfg.APIKey == "" {
		l.Warn().Msg("LangSmith API key is not set, runs will likely be rejected")
	}
	return &LangSmith{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		project:  cfg.Project,
		client:   httpx.New(httpx.Options{Timeout: cfg.Timeout, RetryMax: 1}, l),
		log:      l,
	}
}

type runCreate struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	RunType     string         `json:"run_type"`
	Inputs      map[string]any `json:"inputs"`
	StartTime   string         `json:"start_time"`
	SessionName string         `json:"session_name,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

type runUpdate struct {
	Outputs map[string]any `json:"outputs,omitempty"`
	EndTime string         `json:"end_time"`
	Error   string         `json:"error,omitempty"`
}

type feedbackCreate struct {
	RunID          string         `json:"run_id"`
	Key            string         `json:"key"`
	Score          int            `json:"score"`
	Value          int            `json:"value"`
	Comment        string         `json:"comment,omitempty"`
	FeedbackSource feedbackSource `json:"feedback_source"`
}

type feedbackSource struct {
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// StartRun creates a chain run in the configured project.
func (l *LangSmith) StartRun(ctx context.Context, run Run) error {
	start := run.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	metadata := map[string]any{"conversation_id": run.ConversationID}
	for k, v := range run.Metadata {
		metadata[k] = v
	}
	body := runCreate{
		ID:          run.ID,
		Name:        run.Name,
		RunType:     "chain",
		Inputs:      run.Inputs,
		StartTime:   start.UTC().Format(time.RFC3339Nano),
		SessionName: l.project,
		Tags:        run.Tags,
		Extra:       map[string]any{"metadata": metadata},
	}
	if err := l.do(ctx, http.MethodPost, "/runs", body); err != nil {
		return fmt.Errorf("start run %s: %w", run.ID, err)
	}
	l.log.Debug().Str("run", run.ID).Str("name", run.Name).Msg("run started")
	return nil
}

// EndRun closes a run with its outputs or error.
func (l *LangSmith) EndRun(ctx context.Context, runID string, outputs map[string]any, runErr error) error {
	body := runUpdate{
		Outputs: outputs,
		EndTime: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if runErr != nil {
		body.Error = runErr.Error()
	}
	if err := l.do(ctx, http.MethodPatch, "/runs/"+runID, body); err != nil {
		return fmt.Errorf("end run %s: %w", runID, err)
	}
	l.log.Debug().Str("run", runID).Bool("failed", runErr != nil).Msg("run ended")
	return nil
}

// RecordFeedback attaches a user rating to a run: score 1 for positive,
// 0 for negative.
func (l *LangSmith) RecordFeedback(ctx context.Context, fb domain.Feedback) error {
	comment := fb.Comment
	if comment == "" {
		comment = "Feedback from chat " + fb.ConversationID
	}
	metadata := map[string]any{
		"source_type": "whatsapp",
		"chat_id":     fb.ConversationID,
	}
	if fb.ItemID != "" {
		metadata["item_id"] = fb.ItemID
	}
	body := feedbackCreate{
		RunID:   fb.RunID,
		Key:     FeedbackKey,
		Score:   fb.Polarity.Score(),
		Value:   fb.Polarity.Score(),
		Comment: comment,
		FeedbackSource: feedbackSource{
			Type:     "api",
			Metadata: metadata,
		},
	}
	if err := l.do(ctx, http.MethodPost, "/feedback", body); err != nil {
		return fmt.Errorf("record feedback for run %s: %w", fb.RunID, err)
	}
	return nil
}

func (l *LangSmith) do(ctx context.Context, method, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, l.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.apiKey != "" {
		req.Header.Set("x-api-key", l.apiKey)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("langsmith %s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
