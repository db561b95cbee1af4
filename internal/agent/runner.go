package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/history"
	"github.com/soyeahso/zueira/internal/logging"
	"github.com/soyeahso/zueira/internal/tracing"
)

// Stage names a step of a single turn.
type Stage string

const (
	StageLoadingHistory  Stage = "LOADING_HISTORY"
	StagePreparingPrompt Stage = "PREPARING_PROMPT"
	StageInvokingModel   Stage = "INVOKING_MODEL"
	StageExtractingReply Stage = "EXTRACTING_REPLY"
	StagePersisting      Stage = "PERSISTING"
	StageDone            Stage = "DONE"
	StageFailed          Stage = "ERROR"
)

// StageError wraps a failure with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", strings.ToLower(string(e.Stage)), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ItemIDKeys are the JSON fields of a tool result holding the id of the
// item it produced, checked in order.
var ItemIDKeys = []string{"id", "jokeId", "joke_id", "itemId"}

const (
	// DefaultTraceTimeout bounds each tracer call made on the reply path.
	DefaultTraceTimeout = 3 * time.Second
	// failureSaveTimeout bounds the best-effort save after a failed turn.
	failureSaveTimeout = 5 * time.Second
)

// RunnerConfig configures the orchestrator.
type RunnerConfig struct {
	SystemPrompt    string
	ExtraPrompt     string
	HistoryLimit    int
	DisableFallback bool
	RunName         string
	// TraceTimeout bounds StartRun and EndRun; zero means DefaultTraceTimeout.
	TraceTimeout    time.Duration
}

// RunResult is the outcome of one turn.
type RunResult struct {
	Reply    string        `json:"reply"`
	RunID    string        `json:"runId"`
	ItemID   string        `json:"itemId,omitempty"`
	Fallback bool          `json:"fallback,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Correlator remembers the last run and item per conversation.
type Correlator interface {
	RecordRun(conversationID, runID string)
	RecordItem(conversationID, itemID string)
}

// Tracer receives run lifecycle events.
type Tracer interface {
	StartRun(ctx context.Context, run tracing.Run) error
	EndRun(ctx context.Context, runID string, outputs map[string]any, runErr error) error
}

// Runner produces replies for conversation turns. Turns of the same
// conversation are serialized; different conversations run concurrently.
type Runner struct {
	cfg        RunnerConfig
	store      history.Store
	correlator Correlator
	tracer     Tracer
	primary    Model
	fallback   Model
	locks      *keyLock
	log        *logging.Logger
	newID      func() string
}

// NewRunner creates an orchestrator. fallback may be nil; it is used when
// primary fails unless cfg.DisableFallback is set. A nil tracer disables
// tracing.
func NewRunner(
	cfg RunnerConfig,
	store history.Store,
	correlator Correlator,
	tracer Tracer,
	primary Model,
	fallback Model,
	log *logging.Logger,
) *Runner {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = history.DefaultLimit
	}
	if cfg.RunName == "" {
		cfg.RunName = "zueira-reply"
	}
	if cfg.TraceTimeout <= 0 {
		cfg.TraceTimeout = DefaultTraceTimeout
	}
	if tracer == nil {
		tracer = tracing.Noop{}
	}
	return &Runner{
		cfg:        cfg,
		store:      store,
		correlator: correlator,
		tracer:     tracer,
		primary:    primary,
		fallback:   fallback,
		locks:      newKeyLock(),
		log:        log.Sub("agent"),
		newID:      uuid.NewString,
	}
}

// Run processes one user message for a conversation and returns the reply.
func (r *Runner) Run(ctx context.Context, conversationID, text string) (*RunResult, error) {
	start := time.Now()

	unlock, err := r.locks.Lock(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}
	defer unlock()

	log := r.log.With("conversationId", conversationID)

	// LOADING_HISTORY
	msgs := r.ensureSystemTurn(r.store.Load(ctx, conversationID))
	log.Debug().Int("historyLen", len(msgs)).Str("stage", string(StageLoadingHistory)).Msg("history loaded")

	// PREPARING_PROMPT
	msgs = append(msgs, domain.UserMessage(text))
	window := r.window(msgs)

	// INVOKING_MODEL
	runID := r.newID()
	r.correlator.RecordRun(conversationID, runID)
	traceCtx, cancelTrace := r.traceContext(ctx)
	err = r.tracer.StartRun(traceCtx, tracing.Run{
		ID:             runID,
		Name:           r.cfg.RunName,
		ConversationID: conversationID,
		Inputs:         map[string]any{"input": text, "history_length": len(window) - 1},
		Tags:           []string{"whatsapp"},
		StartTime:      start,
	})
	cancelTrace()
	if err != nil {
		log.Warn().Err(err).Str("runId", runID).Msg("trace start failed")
	}

	produced, usedFallback, err := r.invoke(ctx, log, window)
	if err != nil {
		return nil, r.fail(ctx, log, conversationID, runID, msgs, &StageError{Stage: StageInvokingModel, Err: err})
	}

	// EXTRACTING_REPLY
	itemID := r.recordItems(log, conversationID, produced)
	reply := extractReply(produced)

	// PERSISTING
	msgs = append(msgs, domain.AssistantMessage(reply))
	r.store.Save(ctx, conversationID, msgs)

	traceCtx, cancelTrace = r.traceContext(ctx)
	err = r.tracer.EndRun(traceCtx, runID, map[string]any{"output": reply}, nil)
	cancelTrace()
	if err != nil {
		log.Warn().Err(err).Str("runId", runID).Msg("trace end failed")
	}

	res := &RunResult{
		Reply:    reply,
		RunID:    runID,
		ItemID:   itemID,
		Fallback: usedFallback,
		Duration: time.Since(start),
	}
	log.Info().
		Str("runId", runID).
		Str("stage", string(StageDone)).
		Bool("fallback", usedFallback).
		Dur("duration", res.Duration).
		Msg("reply generated")
	return res, nil
}

// ensureSystemTurn guarantees exactly one system turn, at index 0. An
// existing leading system turn is kept; later system turns are dropped.
func (r *Runner) ensureSystemTurn(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(msgs)+2)
	if len(msgs) > 0 && msgs[0].Role == domain.RoleSystem {
		out = append(out, msgs[0])
		msgs = msgs[1:]
	} else {
		out = append(out, domain.SystemMessage(BuildSystemPrompt(PromptConfig{
			Base:        r.cfg.SystemPrompt,
			ExtraPrompt: r.cfg.ExtraPrompt,
		})))
	}
	for _, m := range msgs {
		if m.Role != domain.RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// window returns the system turn followed by the most recent HistoryLimit-1
// other turns, never fewer than the new user turn.
func (r *Runner) window(msgs []domain.Message) []domain.Message {
	rest := history.Tail(msgs[1:], max(r.cfg.HistoryLimit-1, 1))
	w := make([]domain.Message, 0, len(rest)+1)
	w = append(w, msgs[0])
	return append(w, rest...)
}

func (r *Runner) invoke(ctx context.Context, log *logging.Logger, window []domain.Message) ([]domain.Message, bool, error) {
	produced, err := r.primary.Invoke(ctx, window)
	if err == nil {
		return produced, false, nil
	}
	if r.fallback == nil || r.cfg.DisableFallback || ctx.Err() != nil {
		return nil, false, err
	}

	log.Warn().Err(err).Msg("primary model failed, falling back to plain completion")
	produced, fbErr := r.fallback.Invoke(ctx, window)
	if fbErr != nil {
		return nil, true, errors.Join(err, fbErr)
	}
	return produced, true, nil
}

func (r *Runner) fail(ctx context.Context, log *logging.Logger, conversationID, runID string, msgs []domain.Message, err error) error {
	log.Error().Err(err).Str("runId", runID).Str("stage", string(StageFailed)).Msg("reply generation failed")

	// Keep the user turn so the next message still sees it, even when the
	// turn failed because ctx was cancelled.
	saveCtx, cancelSave := context.WithTimeout(context.WithoutCancel(ctx), failureSaveTimeout)
	r.store.Save(saveCtx, conversationID, msgs)
	cancelSave()

	traceCtx, cancelTrace := r.traceContext(ctx)
	defer cancelTrace()
	if endErr := r.tracer.EndRun(traceCtx, runID, nil, err); endErr != nil {
		log.Warn().Err(endErr).Str("runId", runID).Msg("trace end failed")
	}
	return fmt.Errorf("generate reply: %w", err)
}

// traceContext detaches tracer calls from the turn's cancellation and bounds
// them by TraceTimeout.
func (r *Runner) traceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.cfg.TraceTimeout)
}

// recordItems stores the item id of every tool result that carries one and
// returns the last.
func (r *Runner) recordItems(log *logging.Logger, conversationID string, produced []domain.Message) string {
	var last string
	for _, m := range produced {
		if m.Role != domain.RoleTool {
			continue
		}
		id, ok := ExtractItemID(m.Content)
		if !ok {
			continue
		}
		r.correlator.RecordItem(conversationID, id)
		log.Debug().Str("itemId", id).Msg("tool produced item")
		last = id
	}
	return last
}

// ExtractItemID returns the first of ItemIDKeys present in a JSON object,
// as a string or number. Non-JSON content yields false.
func ExtractItemID(content string) (string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &obj); err != nil {
		return "", false
	}
	for _, key := range ItemIDKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				return s, true
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if i, err := n.Int64(); err == nil {
				return strconv.FormatInt(i, 10), true
			}
			return n.String(), true
		}
	}
	return "", false
}

// extractReply returns the content of the last assistant turn, or of the
// last turn when there is no assistant turn.
func extractReply(produced []domain.Message) string {
	for i := len(produced) - 1; i >= 0; i-- {
		if produced[i].Role == domain.RoleAssistant {
			return strings.TrimSpace(produced[i].Content)
		}
	}
	if len(produced) == 0 {
		return ""
	}
	return strings.TrimSpace(produced[len(produced)-1].Content)
}
