// Package metrics exports the bot's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soyeahso/zueira/internal/domain"
)

const namespace = "zueira"

// Turn outcomes.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusFallback = "fallback"
)

// Metrics holds the collectors. All methods are safe on a nil receiver so
// components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	turns        *prometheus.CounterVec
	turnDuration prometheus.Histogram
	ignored      *prometheus.CounterVec
	feedback     *prometheus.CounterVec
	toolItems    prometheus.Counter
	historyErrs  *prometheus.CounterVec
	sendErrors   prometheus.Counter
}

// New creates the collectors on a private registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns handled, by outcome.",
		}, []string{"status"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time to produce a reply.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ignored_total",
			Help:      "Inbound messages not sent to the model, by reason.",
		}, []string{"reason"}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "Feedback messages recorded, by polarity.",
		}, []string{"polarity"}),
		toolItems: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_items_total",
			Help:      "Turns whose tool results carried an item id.",
		}),
		historyErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_errors_total",
			Help:      "History store errors swallowed, by operation.",
		}, []string{"op"}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Outbound messages that could not be delivered.",
		}),
	}

	reg.MustRegister(
		m.turns, m.turnDuration, m.ignored, m.feedback, m.toolItems, m.historyErrs, m.sendErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Turn records one handled turn.
func (m *Metrics) Turn(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(status).Inc()
	m.turnDuration.Observe(d.Seconds())
}

// Ignored records a message that was not answered by the model.
func (m *Metrics) Ignored(reason string) {
	if m == nil {
		return
	}
	m.ignored.WithLabelValues(reason).Inc()
}

// Feedback records one feedback message.
func (m *Metrics) Feedback(p domain.Polarity) {
	if m == nil {
		return
	}
	m.feedback.WithLabelValues(string(p)).Inc()
}

// ToolItem records a turn that produced an item id.
func (m *Metrics) ToolItem() {
	if m == nil {
		return
	}
	m.toolItems.Inc()
}

// HistoryError records a swallowed history store error. It matches
// history.ErrorHook.
func (m *Metrics) HistoryError(op string) {
	if m == nil {
		return
	}
	m.historyErrs.WithLabelValues(op).Inc()
}

// SendError records a failed outbound message.
func (m *Metrics) SendError() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}
