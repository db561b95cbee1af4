// Package routing connects messaging channels to the response orchestrator.
package routing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/zueira/internal/agent"
	"github.com/soyeahso/zueira/internal/channel"
	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/logging"
	"github.com/soyeahso/zueira/internal/metrics"
)

// Fixed replies sent instead of a model answer.
const (
	TextOnlyReply = "I can only respond to text messages for now."
	ErrorReply    = "Sorry, I encountered an error. Please try again later."
)

// Event names published for every turn.
const (
	EventTurnCompleted = "turn.completed"
	EventTurnFailed    = "turn.failed"
)

// Ignore reasons reported to metrics.
const (
	ignoredFromMe   = "from_me"
	ignoredNonText  = "non_text"
	ignoredNoOutlet = "no_channel"
)

// Replier produces the bot's answer for one user turn.
type Replier interface {
	Run(ctx context.Context, conversationID, text string) (*agent.RunResult, error)
}

// FeedbackProcessor inspects a user turn for feedback on the previous reply.
type FeedbackProcessor interface {
	Process(ctx context.Context, conversationID, text string) bool
}

// Publisher receives turn events, e.g. the gateway's websocket broadcast.
type Publisher interface {
	Publish(event string, payload any)
}

// TurnEvent is the payload of turn.completed and turn.failed.
type TurnEvent struct {
	ConversationID string `json:"conversationId"`
	RunID          string `json:"runId,omitempty"`
	ItemID         string `json:"itemId,omitempty"`
	Fallback       bool   `json:"fallback,omitempty"`
	Feedback       bool   `json:"feedback,omitempty"`
	DurationMs     int64  `json:"durationMs"`
	Error          string `json:"error,omitempty"`
}

// Router routes inbound messages to the orchestrator and replies to channels.
type Router struct {
	channels *channel.Registry
	runner   Replier
	feedback FeedbackProcessor
	metrics  *metrics.Metrics
	events   Publisher
	inflight sync.WaitGroup
	log      *logging.Logger
}

// NewRouter creates a message router. feedback and m may be nil.
func NewRouter(
	channels *channel.Registry,
	runner Replier,
	feedback FeedbackProcessor,
	m *metrics.Metrics,
	log *logging.Logger,
) *Router {
	return &Router{
		channels: channels,
		runner:   runner,
		feedback: feedback,
		metrics:  m,
		log:      log.Sub("routing"),
	}
}

// SetPublisher installs the turn event publisher. Call before Wire.
func (r *Router) SetPublisher(p Publisher) {
	r.events = p
}

// Reply runs one text turn for a conversation: the feedback side channel
// first, then the orchestrator. It records metrics and publishes a turn event
// whatever the outcome.
func (r *Router) Reply(ctx context.Context, conversationID, text string) (*agent.RunResult, error) {
	start := time.Now()

	isFeedback := false
	if r.feedback != nil {
		isFeedback = r.feedback.Process(ctx, conversationID, text)
	}

	result, err := r.runner.Run(ctx, conversationID, text)
	elapsed := time.Since(start)
	if err != nil {
		r.metrics.Turn(metrics.StatusError, elapsed)
		r.publish(EventTurnFailed, TurnEvent{
			ConversationID: conversationID,
			Feedback:       isFeedback,
			DurationMs:     elapsed.Milliseconds(),
			Error:          err.Error(),
		})
		return nil, err
	}

	status := metrics.StatusOK
	if result.Fallback {
		status = metrics.StatusFallback
	}
	r.metrics.Turn(status, elapsed)
	if result.ItemID != "" {
		r.metrics.ToolItem()
	}

	r.publish(EventTurnCompleted, TurnEvent{
		ConversationID: conversationID,
		RunID:          result.RunID,
		ItemID:         result.ItemID,
		Fallback:       result.Fallback,
		Feedback:       isFeedback,
		DurationMs:     elapsed.Milliseconds(),
	})
	return result, nil
}

// HandleInbound processes an inbound message from any channel and answers
// through the originating channel.
func (r *Router) HandleInbound(ctx context.Context, msg domain.InboundMessage) {
	log := r.log.With("conversation", msg.ConversationID)

	if msg.FromMe {
		r.metrics.Ignored(ignoredFromMe)
		log.Debug().Str("id", msg.ID).Msg("ignoring own message")
		return
	}

	ch, ok := r.channels.Get(msg.ChannelID)
	if !ok {
		r.metrics.Ignored(ignoredNoOutlet)
		log.Error().Str("channel", msg.ChannelID).Msg("channel not found for reply")
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" || msg.HasAttachment {
		r.metrics.Ignored(ignoredNonText)
		r.send(ctx, ch, log, msg, TextOnlyReply)
		return
	}

	log.Info().
		Str("channel", msg.ChannelID).
		Str("from", msg.From).
		Msg("routing inbound message")

	if err := ch.SendTyping(ctx, msg.ConversationID); err != nil {
		log.Warn().Err(err).Msg("failed to send typing indicator")
	}

	result, err := r.Reply(ctx, msg.ConversationID, text)
	if err != nil {
		log.Error().Err(err).Msg("reply generation failed")
		r.send(ctx, ch, log, msg, ErrorReply)
		return
	}

	if r.send(ctx, ch, log, msg, result.Reply) {
		log.Info().
			Str("run", result.RunID).
			Bool("fallback", result.Fallback).
			Dur("duration", result.Duration).
			Msg("reply sent")
	}
}

func (r *Router) send(ctx context.Context, ch domain.Channel, log *logging.Logger, msg domain.InboundMessage, text string) bool {
	err := ch.Send(ctx, domain.OutboundMessage{
		ChannelID:      msg.ChannelID,
		ConversationID: msg.ConversationID,
		Text:           text,
		ReplyToID:      msg.ID,
	})
	if err != nil {
		r.metrics.SendError()
		log.Error().Err(err).Str("channel", msg.ChannelID).Msg("failed to send reply")
		return false
	}
	return true
}

func (r *Router) publish(event string, payload TurnEvent) {
	if r.events != nil {
		r.events.Publish(event, payload)
	}
}

// Wire registers HandleInbound as the message handler on all channels. Each
// message is handled on its own goroutine under ctx.
func (r *Router) Wire(ctx context.Context) {
	for _, id := range r.channels.List() {
		ch, ok := r.channels.Get(id)
		if !ok {
			continue
		}
		ch.OnMessage(func(msg domain.InboundMessage) {
			r.inflight.Add(1)
			go func() {
				defer r.inflight.Done()
				r.HandleInbound(ctx, msg)
			}()
		})
		r.log.Debug().Str("channel", id).Msg("wired message handler")
	}
}

// Drain blocks until every message handed out by Wire has been handled.
func (r *Router) Drain() {
	r.inflight.Wait()
}

// SendTo sends a message to a conversation on a specific channel.
func (r *Router) SendTo(ctx context.Context, channelID, conversationID, text string) error {
	ch, ok := r.channels.Get(channelID)
	if !ok {
		return fmt.Errorf("channel not found: %s", channelID)
	}
	return ch.Send(ctx, domain.OutboundMessage{
		ChannelID:      channelID,
		ConversationID: conversationID,
		Text:           text,
	})
}
