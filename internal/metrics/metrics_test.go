package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTurn(OutcomeOK, 2)
	m.ObserveToolCall("check_ticket_status", "ok")
	m.ObserveModelCall("openai", OutcomeOK, time.Second)
	m.ObserveTokens("openai", 10, 5)
	m.TicketCreated("sqlite")
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTurn(OutcomeOK, 3)
	m.ObserveTurn(OutcomeLoopBound, 10)
	m.ObserveToolCall("create_ticket_issue", "ok")
	m.ObserveToolCall("create_ticket_issue", "ok")
	m.TicketCreated("bolt")

	if got := testutil.ToFloat64(m.turns.WithLabelValues(OutcomeOK)); got != 1 {
		t.Errorf("ok turns = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.toolCalls.WithLabelValues("create_ticket_issue", "ok")); got != 2 {
		t.Errorf("tool calls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ticketsCreated.WithLabelValues("bolt")); got != 1 {
		t.Errorf("tickets created = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.iterations); n != 1 {
		t.Errorf("iterations collectors = %d, want 1", n)
	}
}

func TestObserveTokens(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveTokens("anthropic", 120, 30)
	m.ObserveTokens("anthropic", 80, 20)

	if got := testutil.ToFloat64(m.modelTokens.WithLabelValues("anthropic", "input")); got != 200 {
		t.Errorf("input tokens = %v, want 200", got)
	}
	if got := testutil.ToFloat64(m.modelTokens.WithLabelValues("anthropic", "output")); got != 50 {
		t.Errorf("output tokens = %v, want 50", got)
	}
}
