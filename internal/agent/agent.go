// Package agent runs the bounded reason-act loop that turns one user
// message into a final answer, dispatching at most one tool per model
// round-trip.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/guardianbot/guardian/internal/memory"
	"github.com/guardianbot/guardian/internal/metrics"
	"github.com/guardianbot/guardian/internal/provider"
	"github.com/guardianbot/guardian/internal/tool"
	"github.com/guardianbot/guardian/pkg/protocol"
)

const (
	defaultMaxIterations = 10
	defaultCallTimeout   = 60 * time.Second
)

// ToolDispatcher executes one tool call and reports its observation.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, tc protocol.ToolCall) (tool.Observation, error)
}

// Agent holds everything needed to answer a message. It keeps no state
// between turns; history lives in the caller's memory.Conversation.
type Agent struct {
	Provider      provider.Provider
	Tools         ToolDispatcher
	Instructions  string
	Model         string
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	MaxIterations int
	CallTimeout   time.Duration
	Compactor     *memory.Compactor // optional
	Now           func() time.Time
}

// New creates an Agent with default limits.
func New(prov provider.Provider, tools ToolDispatcher, instructions string) *Agent {
	return &Agent{
		Provider:      prov,
		Tools:         tools,
		Instructions:  instructions,
		Logger:        slog.Default(),
		MaxIterations: defaultMaxIterations,
		CallTimeout:   defaultCallTimeout,
		Now:           time.Now,
	}
}
