package feedback

import (
	"context"
	"time"

	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/logging"
)

// DefaultSinkTimeout bounds each sink call.
const DefaultSinkTimeout = 3 * time.Second

// RunLookup resolves the run and item last produced for a conversation.
type RunLookup interface {
	Run(conversationID string) (string, bool)
	Item(conversationID string) (string, bool)
}

// Sink stores attributed feedback.
type Sink interface {
	RecordFeedback(ctx context.Context, fb domain.Feedback) error
}

// Processor classifies inbound text and forwards feedback to its sinks.
type Processor struct {
	classifier *Classifier
	runs       RunLookup
	sinks      []Sink
	log        *logging.Logger
	onRecorded func(domain.Feedback)
	now        func() time.Time
	timeout    time.Duration
}

// NewProcessor creates a processor. Sinks are called in order.
func NewProcessor(classifier *Classifier, runs RunLookup, log *logging.Logger, sinks ...Sink) *Processor {
	return &Processor{
		classifier: classifier,
		runs:       runs,
		sinks:      sinks,
		log:        log.Sub("feedback"),
		now:        time.Now,
		timeout:    DefaultSinkTimeout,
	}
}

// SetSinkTimeout changes the per-sink deadline. Non-positive values are
// ignored.
func (p *Processor) SetSinkTimeout(d time.Duration) {
	if d > 0 {
		p.timeout = d
	}
}

// OnRecorded registers a hook called once per recorded feedback event.
func (p *Processor) OnRecorded(fn func(domain.Feedback)) {
	p.onRecorded = fn
}

// Process records text as feedback on the conversation's last run when the
// text reads as feedback and such a run exists. Sink failures are logged and
// never returned. It reports whether at least one sink accepted the event.
func (p *Processor) Process(ctx context.Context, conversationID, text string) bool {
	res := p.classifier.Classify(text)
	if !res.IsFeedback {
		return false
	}

	runID, ok := p.runs.Run(conversationID)
	if !ok {
		p.log.Debug().Str("conversation", conversationID).Msg("feedback without a prior run, skipping")
		return false
	}
	itemID, _ := p.runs.Item(conversationID)

	fb := domain.Feedback{
		RunID:          runID,
		ConversationID: conversationID,
		ItemID:         itemID,
		Polarity:       res.Polarity,
		Comment:        text,
		CreatedAt:      p.now().UTC(),
	}

	recorded := false
	for _, s := range p.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := s.RecordFeedback(sinkCtx, fb)
		cancel()
		if err != nil {
			p.log.Warn().Err(err).Str("conversation", conversationID).Str("run", runID).Msg("failed to record feedback")
			continue
		}
		recorded = true
	}

	if recorded {
		p.log.Info().
			Str("conversation", conversationID).
			Str("run", runID).
			Str("item", itemID).
			Str("polarity", string(res.Polarity)).
			Msg("feedback recorded")
		if p.onRecorded != nil {
			p.onRecorded(fb)
		}
	}
	return recorded
}
