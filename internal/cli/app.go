package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/zueira/internal/agent"
	"github.com/soyeahso/zueira/internal/channel"
	"github.com/soyeahso/zueira/internal/channel/whatsapp"
	"github.com/soyeahso/zueira/internal/config"
	"github.com/soyeahso/zueira/internal/correlate"
	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/feedback"
	"github.com/soyeahso/zueira/internal/gateway"
	"github.com/soyeahso/zueira/internal/history"
	"github.com/soyeahso/zueira/internal/llm"
	"github.com/soyeahso/zueira/internal/logging"
	"github.com/soyeahso/zueira/internal/mcp"
	"github.com/soyeahso/zueira/internal/metrics"
	"github.com/soyeahso/zueira/internal/routing"
	"github.com/soyeahso/zueira/internal/store"
	"github.com/soyeahso/zueira/internal/tracing"
)

// historyBackend is a history.Manager that reports swallowed errors.
type historyBackend interface {
	history.Manager
	OnError(h history.ErrorHook)
}

// app is the wired bot. Optional parts are nil when disabled.
type app struct {
	cfg      config.Config
	metrics  *metrics.Metrics
	db       *store.DB
	ledger   *store.FeedbackLog
	history  historyBackend
	tracer   tracing.Sink
	tools    *mcp.Source
	runner   *agent.Runner
	feedback *feedback.Processor
	channels *channel.Registry
	whatsapp *whatsapp.Channel
	router   *routing.Router
	gateway  *gateway.Server
	log      *logging.Logger
}

// appOptions selects which outer surfaces are built.
type appOptions struct {
	WhatsApp bool
	Gateway  bool
	// Client overrides the configured LLM client.
	Client llm.Client
}

// openStore opens the SQLite database and the history backend the config
// selects. The caller owns db.
func openStore(cfg config.Config, p config.Paths, log *logging.Logger) (*store.DB, historyBackend, error) {
	db, err := store.Open(p.DBPath(&cfg), log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	switch cfg.History.Backend {
	case "sqlite":
		return db, store.NewSQLiteHistory(db, cfg.History.Limit, log), nil
	default:
		return db, history.NewFileStore(p.HistoryDir(&cfg), cfg.History.Limit, log), nil
	}
}

// newApp wires every component from configuration.
func newApp(cfg config.Config, p config.Paths, opts appOptions, log *logging.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		metrics: metrics.New(),
		log:     log,
	}

	db, hist, err := openStore(cfg, p, log)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.ledger = store.NewFeedbackLog(db)
	a.history = hist
	a.history.OnError(a.metrics.HistoryError)

	a.tracer = tracing.Noop{}
	if cfg.Tracing.Enabled {
		a.tracer = tracing.NewLangSmith(tracing.LangSmithConfig{
			Endpoint: cfg.Tracing.Endpoint,
			APIKey:   cfg.Tracing.APIKey,
			Project:  cfg.Tracing.Project,
			Timeout:  5 * time.Second,
		}, log)
	}

	client := opts.Client
	if client == nil {
		client = llm.NewOpenAIClient(cfg.LLM, log)
	}
	modelOpts := agent.ModelOptions{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}
	plain := agent.NewPlainModel(client, modelOpts)

	var primary, fallback agent.Model = plain, nil
	if cfg.MCP.ServerURL != "" {
		a.tools = mcp.NewSource(cfg.MCP.ServerURL, cfg.MCP.RetryAfter, log)
		primary = agent.NewToolAgent(client, a.tools, modelOpts, cfg.Agent.MaxToolRounds, log)
		fallback = plain
	} else {
		log.Info().Msg("no MCP server configured, replies use the plain model")
	}

	correlator := correlate.New(cfg.Correlation.MaxEntries, cfg.Correlation.TTL)
	a.runner = agent.NewRunner(
		agent.RunnerConfig{
			SystemPrompt:    cfg.Agent.SystemPrompt,
			ExtraPrompt:     cfg.Agent.ExtraPrompt,
			HistoryLimit:    cfg.History.Limit,
			DisableFallback: cfg.Agent.DisableFallback,
		},
		a.history,
		correlator,
		a.tracer,
		primary,
		fallback,
		log,
	)

	a.feedback = feedback.NewProcessor(feedback.NewClassifier(), correlator, log, a.tracer, a.ledger)

	a.channels = channel.NewRegistry(log)
	if opts.WhatsApp && cfg.WhatsApp.Enabled {
		wa, err := whatsapp.New(whatsapp.Config{
			BridgeURL: cfg.WhatsApp.BridgeURL,
			APIKey:    cfg.WhatsApp.APIKey,
		}, log)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.whatsapp = wa
		if err := a.channels.Register(wa); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	a.router = routing.NewRouter(a.channels, a.runner, a.feedback, a.metrics, log)

	if opts.Gateway && cfg.Gateway.Enabled {
		a.gateway = gateway.New(cfg.Gateway, log,
			gateway.WithReplier(a.router),
			gateway.WithHistory(a.history),
			gateway.WithCorrelator(correlator),
			gateway.WithFeedback(a.ledger),
			gateway.WithChannels(a.channels),
			gateway.WithMetrics(a.metrics),
			gateway.WithDatabase(a.db),
		)
		a.router.SetPublisher(a.gateway)
	}

	a.feedback.OnRecorded(func(fb domain.Feedback) {
		a.metrics.Feedback(fb.Polarity)
		if a.gateway != nil {
			a.gateway.PublishFeedback(fb)
		}
	})

	return a, nil
}

// Close releases the tool session and the database.
func (a *app) Close() error {
	var errs []error
	if a.tools != nil {
		errs = append(errs, a.tools.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
