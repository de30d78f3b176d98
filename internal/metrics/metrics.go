// Package metrics holds the Prometheus collectors for the agent loop, tool
// dispatch, the language-model client, and the ticket store.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Turn outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeModelError = "model_error"
	OutcomeLoopBound  = "loop_bound"
	OutcomeStoreError = "store_error"
	OutcomeCancelled  = "cancelled"
)

// Metrics groups every collector exported by the daemon.
type Metrics struct {
	turns          *prometheus.CounterVec
	iterations     prometheus.Histogram
	toolCalls      *prometheus.CounterVec
	modelLatency   *prometheus.HistogramVec
	modelTokens    *prometheus.CounterVec
	ticketsCreated *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardian_agent_turns_total",
				Help: "Conversation turns handled by the agent loop, by outcome",
			},
			[]string{"outcome"},
		),
		iterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "guardian_agent_iterations",
				Help:    "Model round-trips needed to produce one final answer",
				Buckets: []float64{1, 2, 3, 4, 5, 7, 10, 15, 20},
			},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardian_tool_calls_total",
				Help: "Tool calls dispatched, by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		modelLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guardian_model_call_duration_seconds",
				Help:    "Latency of language-model client calls",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
			},
			[]string{"provider", "outcome"},
		),
		modelTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardian_model_tokens_total",
				Help: "Tokens reported by the model API, by provider and direction",
			},
			[]string{"provider", "direction"},
		),
		ticketsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardian_tickets_created_total",
				Help: "Tickets persisted, by store backend",
			},
			[]string{"backend"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.turns, m.iterations, m.toolCalls, m.modelLatency, m.modelTokens, m.ticketsCreated)
	}
	return m
}

// ObserveTurn records one finished conversation turn.
func (m *Metrics) ObserveTurn(outcome string, iterations int) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	if iterations > 0 {
		m.iterations.Observe(float64(iterations))
	}
}

// ObserveToolCall records one dispatched tool call.
func (m *Metrics) ObserveToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// ObserveModelCall records the latency of one provider call.
func (m *Metrics) ObserveModelCall(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.modelLatency.WithLabelValues(provider, outcome).Observe(d.Seconds())
}

// ObserveTokens adds the token usage of one provider call.
func (m *Metrics) ObserveTokens(provider string, input, output int) {
	if m == nil {
		return
	}
	m.modelTokens.WithLabelValues(provider, "input").Add(float64(input))
	m.modelTokens.WithLabelValues(provider, "output").Add(float64(output))
}

// TicketCreated counts one persisted ticket.
func (m *Metrics) TicketCreated(backend string) {
	if m == nil {
		return
	}
	m.ticketsCreated.WithLabelValues(backend).Inc()
}
