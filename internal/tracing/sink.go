// Package tracing records model runs and user feedback to an external
// observability backend.
package tracing

import (
	"context"
	"time"

	"github.com/soyeahso/zueira/internal/domain"
)

// Run describes one model invocation.
type Run struct {
	ID             string
	Name           string
	ConversationID string
	Inputs         map[string]any
	Tags           []string
	Metadata       map[string]any
	StartTime      time.Time
}

// Sink receives runs and feedback. Implementations must be safe for
// concurrent use. Callers log returned errors and carry on.
type Sink interface {
	StartRun(ctx context.Context, run Run) error
	EndRun(ctx context.Context, runID string, outputs map[string]any, runErr error) error
	RecordFeedback(ctx context.Context, fb domain.Feedback) error
}

// Noop is the sink used when tracing is disabled.
type Noop struct{}

func (Noop) StartRun(context.Context, Run) error                         { return nil }
func (Noop) EndRun(context.Context, string, map[string]any, error) error { return nil }
func (Noop) RecordFeedback(context.Context, domain.Feedback) error       { return nil }
