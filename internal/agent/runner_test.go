package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/zueira/internal/correlate"
	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/history"
	"github.com/soyeahso/zueira/internal/logging"
	"github.com/soyeahso/zueira/internal/store"
	"github.com/soyeahso/zueira/internal/tracing"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// modelFunc adapts a function to Model.
type modelFunc func(ctx context.Context, window []domain.Message) ([]domain.Message, error)

func (f modelFunc) Invoke(ctx context.Context, window []domain.Message) ([]domain.Message, error) {
	return f(ctx, window)
}

func replyWith(text string) Model {
	return modelFunc(func(context.Context, []domain.Message) ([]domain.Message, error) {
		return []domain.Message{domain.AssistantMessage(text)}, nil
	})
}

type recordingTracer struct {
	mu      sync.Mutex
	started []tracing.Run
	ended   map[string]error
}

func (t *recordingTracer) StartRun(_ context.Context, run tracing.Run) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = append(t.started, run)
	return nil
}

func (t *recordingTracer) EndRun(_ context.Context, runID string, _ map[string]any, runErr error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended == nil {
		t.ended = make(map[string]error)
	}
	t.ended[runID] = runErr
	return nil
}

type runnerFixture struct {
	store      *history.FileStore
	correlator *correlate.Correlator
	tracer     *recordingTracer
}

func newFixture(t *testing.T) *runnerFixture {
	t.Helper()
	return &runnerFixture{
		store:      history.NewFileStore(t.TempDir(), 20, silentLog()),
		correlator: correlate.New(0, 0),
		tracer:     &recordingTracer{},
	}
}

func (f *runnerFixture) runner(cfg RunnerConfig, primary, fallback Model) *Runner {
	return NewRunner(cfg, f.store, f.correlator, f.tracer, primary, fallback, silentLog())
}

func TestRunner_FirstTurn(t *testing.T) {
	f := newFixture(t)
	r := f.runner(RunnerConfig{SystemPrompt: "be funny"}, replyWith("R"), nil)

	res, err := r.Run(context.Background(), "c1", "oi")
	require.NoError(t, err)
	assert.Equal(t, "R", res.Reply)
	assert.NotEmpty(t, res.RunID)

	got := f.store.Load(context.Background(), "c1")
	assert.Equal(t, []domain.Message{
		domain.SystemMessage("be funny"),
		domain.UserMessage("oi"),
		domain.AssistantMessage("R"),
	}, got)

	runID, ok := f.correlator.Run("c1")
	require.True(t, ok)
	assert.Equal(t, res.RunID, runID)

	require.Len(t, f.tracer.started, 1)
	assert.Equal(t, res.RunID, f.tracer.started[0].ID)
	assert.Equal(t, "c1", f.tracer.started[0].ConversationID)
	assert.Contains(t, f.tracer.ended, res.RunID)
	assert.NoError(t, f.tracer.ended[res.RunID])
}

func TestRunner_DefaultPersona(t *testing.T) {
	f := newFixture(t)
	r := f.runner(RunnerConfig{}, replyWith("R"), nil)

	_, err := r.Run(context.Background(), "c1", "oi")
	require.NoError(t, err)

	got := f.store.Load(context.Background(), "c1")
	require.NotEmpty(t, got)
	assert.Equal(t, domain.SystemMessage(DefaultSystemPrompt), got[0])
}

func TestRunner_RunIDOverwrittenEachTurn(t *testing.T) {
	f := newFixture(t)
	r := f.runner(RunnerConfig{}, replyWith("R"), nil)
	ids := []string{"r1", "r2"}
	var n int
	r.newID = func() string { id := ids[n]; n++; return id }

	_, err := r.Run(context.Background(), "c1", "oi")
	require.NoError(t, err)
	got, _ := f.correlator.Run("c1")
	assert.Equal(t, "r1", got)

	_, err = r.Run(context.Background(), "c1", "outra")
	require.NoError(t, err)
	got, _ = f.correlator.Run("c1")
	assert.Equal(t, "r2", got)
}

func TestRunner_ModelFailureKeepsUserTurn(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")
	r := f.runner(RunnerConfig{SystemPrompt: "sys"}, modelFunc(func(context.Context, []domain.Message) ([]domain.Message, error) {
		return nil, boom
	}), nil)

	res, err := r.Run(context.Background(), "c1", "oi")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "generate reply")

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageInvokingModel, se.Stage)
	assert.NotEqual(t, StageFailed, se.Stage)

	got := f.store.Load(context.Background(), "c1")
	assert.Equal(t, []domain.Message{domain.SystemMessage("sys"), domain.UserMessage("oi")}, got)

	runID, ok := f.correlator.Run("c1")
	require.True(t, ok)
	assert.ErrorIs(t, f.tracer.ended[runID], boom)
}

func TestRunner_CancelledTurnKeepsUserTurn(t *testing.T) {
	db, err := store.Open(store.MemoryPath, silentLog())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	hist := store.NewSQLiteHistory(db, 20, silentLog())
	tracer := &recordingTracer{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelling := modelFunc(func(ctx context.Context, _ []domain.Message) ([]domain.Message, error) {
		cancel()
		return nil, ctx.Err()
	})
	r := NewRunner(RunnerConfig{SystemPrompt: "sys"}, hist, correlate.New(0, 0), tracer, cancelling, nil, silentLog())

	_, err = r.Run(ctx, "c1", "oi")
	require.ErrorIs(t, err, context.Canceled)

	got := hist.Load(context.Background(), "c1")
	assert.Equal(t, []domain.Message{domain.SystemMessage("sys"), domain.UserMessage("oi")}, got)
	require.Len(t, tracer.ended, 1)
}

// stallingTracer blocks every call until its context is done.
type stallingTracer struct {
	calls atomic.Int32
}

func (t *stallingTracer) StartRun(ctx context.Context, _ tracing.Run) error {
	t.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (t *stallingTracer) EndRun(ctx context.Context, _ string, _ map[string]any, _ error) error {
	t.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestRunner_SlowTracerBoundedByTraceTimeout(t *testing.T) {
	tests := []struct {
		name  string
		model Model
		ok    bool
	}{
		{"success", replyWith("R"), true},
		{"failure", modelFunc(func(context.Context, []domain.Message) ([]domain.Message, error) {
			return nil, errors.New("boom")
		}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer := &stallingTracer{}
			hist := history.NewFileStore(t.TempDir(), 20, silentLog())
			r := NewRunner(RunnerConfig{TraceTimeout: 50 * time.Millisecond}, hist, correlate.New(0, 0), tracer, tt.model, nil, silentLog())

			start := time.Now()
			res, err := r.Run(context.Background(), "c1", "oi")
			elapsed := time.Since(start)

			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, "R", res.Reply)
			} else {
				require.Error(t, err)
			}
			assert.Less(t, elapsed, time.Second)
			assert.EqualValues(t, 2, tracer.calls.Load())
		})
	}
}

func TestNewRunner_DefaultTraceTimeout(t *testing.T) {
	f := newFixture(t)
	r := f.runner(RunnerConfig{}, replyWith("R"), nil)
	assert.Equal(t, DefaultTraceTimeout, r.cfg.TraceTimeout)
}

func TestRunner_FallbackOnPrimaryFailure(t *testing.T) {
	f := newFixture(t)
	failing := modelFunc(func(context.Context, []domain.Message) ([]domain.Message, error) {
		return nil, errors.New("tools unavailable")
	})
	r := f.runner(RunnerConfig{}, failing, replyWith("plain"))

	res, err := r.Run(context.Background(), "c1", "oi")
	require.NoError(t, err)
	assert.Equal(t, "plain", res.Reply)
	assert.True(t, res.Fallback)
}

func TestRunner_FallbackDisabled(t *testing.T) {
	f := newFixture(t)
	failing := modelFunc(func(context.Context, []domain.Message) ([]domain.Message, error) {
		return nil, errors.New("tools unavailable")
	})
	r := f.runner(RunnerConfig{DisableFallback: true}, failing, replyWith("plain"))

	_, err := r.Run(context.Background(), "c1", "oi")
	require.Error(t, err)
}

func TestRunner_ToolTurnsNotPersisted(t *testing.T) {
	f := newFixture(t)
	agentTurns := modelFunc(func(context.Context, []domain.Message) ([]domain.Message, error) {
		return []domain.Message{
			domain.AssistantMessage("").WithToolCalls([]domain.ToolCall{{ID: "call-1", Name: "get_joke"}}),
			domain.ToolResultMessage("call-1", `{"id":"joke-42","setup":"..."}`),
			domain.AssistantMessage("ha ha"),
		}, nil
	})
	r := f.runner(RunnerConfig{SystemPrompt: "sys"}, agentTurns, nil)

	res, err := r.Run(context.Background(), "c1", "piada")
	require.NoError(t, err)
	assert.Equal(t, "ha ha", res.Reply)
	assert.Equal(t, "joke-42", res.ItemID)

	item, ok := f.correlator.Item("c1")
	require.True(t, ok)
	assert.Equal(t, "joke-42", item)

	got := f.store.Load(context.Background(), "c1")
	assert.Equal(t, []domain.Message{
		domain.SystemMessage("sys"),
		domain.UserMessage("piada"),
		domain.AssistantMessage("ha ha"),
	}, got)
}

func TestRunner_LastItemWins(t *testing.T) {
	f := newFixture(t)
	agentTurns := modelFunc(func(context.Context, []domain.Message) ([]domain.Message, error) {
		return []domain.Message{
			domain.ToolResultMessage("a", `{"jokeId":7}`),
			domain.ToolResultMessage("b", `not json`),
			domain.ToolResultMessage("c", `{"joke_id":"j9"}`),
			domain.AssistantMessage("ok"),
		}, nil
	})
	r := f.runner(RunnerConfig{}, agentTurns, nil)

	res, err := r.Run(context.Background(), "c1", "piada")
	require.NoError(t, err)
	assert.Equal(t, "j9", res.ItemID)
}

func TestRunner_WindowCarriesSystemAndRecentTurns(t *testing.T) {
	f := newFixture(t)
	var seen []domain.Message
	capture := modelFunc(func(_ context.Context, window []domain.Message) ([]domain.Message, error) {
		seen = window
		return []domain.Message{domain.AssistantMessage("R")}, nil
	})
	r := f.runner(RunnerConfig{SystemPrompt: "sys", HistoryLimit: 3}, capture, nil)

	f.store.Save(context.Background(), "c1", []domain.Message{
		domain.SystemMessage("sys"),
		domain.UserMessage("u1"),
		domain.AssistantMessage("a1"),
	})

	_, err := r.Run(context.Background(), "c1", "u2")
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{
		domain.SystemMessage("sys"),
		domain.AssistantMessage("a1"),
		domain.UserMessage("u2"),
	}, seen)
}

func TestRunner_DropsExtraSystemTurns(t *testing.T) {
	f := newFixture(t)
	var seen []domain.Message
	capture := modelFunc(func(_ context.Context, window []domain.Message) ([]domain.Message, error) {
		seen = window
		return []domain.Message{domain.AssistantMessage("R")}, nil
	})
	r := f.runner(RunnerConfig{SystemPrompt: "new"}, capture, nil)

	f.store.Save(context.Background(), "c1", []domain.Message{
		domain.SystemMessage("old"),
		domain.UserMessage("u1"),
		domain.SystemMessage("stray"),
	})

	_, err := r.Run(context.Background(), "c1", "u2")
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{
		domain.SystemMessage("old"),
		domain.UserMessage("u1"),
		domain.UserMessage("u2"),
	}, seen)
}

func TestRunner_SerializesSameConversation(t *testing.T) {
	f := newFixture(t)
	var inFlight, maxInFlight atomic.Int32
	slow := modelFunc(func(context.Context, []domain.Message) ([]domain.Message, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return []domain.Message{domain.AssistantMessage("R")}, nil
	})
	r := f.runner(RunnerConfig{}, slow, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Run(context.Background(), "c1", "oi")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	// system + 5 user/assistant pairs, truncated to the limit of 20
	assert.Len(t, f.store.Load(context.Background(), "c1"), 11)
	assert.Equal(t, 0, r.locks.size())
}

func TestRunner_CancelledWhileWaiting(t *testing.T) {
	f := newFixture(t)
	r := f.runner(RunnerConfig{}, replyWith("R"), nil)

	release, err := r.locks.Lock(context.Background(), "c1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx, "c1", "oi")
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtractItemID(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		ok      bool
	}{
		{"string id", `{"id":"abc"}`, "abc", true},
		{"numeric jokeId", `{"jokeId":12}`, "12", true},
		{"snake case", `{"joke_id":"x"}`, "x", true},
		{"itemId", `{"itemId":"i1"}`, "i1", true},
		{"id preferred", `{"itemId":"i1","id":"first"}`, "first", true},
		{"empty id skipped", `{"id":"","jokeId":"j"}`, "j", true},
		{"no id", `{"setup":"..."}`, "", false},
		{"not json", `uma piada`, "", false},
		{"array", `[1,2]`, "", false},
		{"object id ignored", `{"id":{"x":1}}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractItemID(tt.content)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractReply(t *testing.T) {
	assert.Equal(t, "", extractReply(nil))
	assert.Equal(t, "last", extractReply([]domain.Message{domain.ToolResultMessage("a", " last ")}))
	assert.Equal(t, "final", extractReply([]domain.Message{
		domain.AssistantMessage("final"),
		domain.ToolResultMessage("a", "result"),
	}))
	assert.Equal(t, "vou buscar", extractReply([]domain.Message{
		domain.AssistantMessage(" vou buscar ").WithToolCalls([]domain.ToolCall{{ID: "call-1", Name: "get_joke"}}),
		domain.ToolResultMessage("call-1", `{"id":"joke-1"}`),
	}))
	assert.Equal(t, "ha ha", extractReply([]domain.Message{
		domain.AssistantMessage("vou buscar").WithToolCalls([]domain.ToolCall{{ID: "call-1", Name: "get_joke"}}),
		domain.ToolResultMessage("call-1", `{"id":"joke-1"}`),
		domain.AssistantMessage("ha ha"),
	}))
}
