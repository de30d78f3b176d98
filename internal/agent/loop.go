package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/guardianbot/guardian/internal/memory"
	"github.com/guardianbot/guardian/internal/metrics"
	"github.com/guardianbot/guardian/internal/tool"
	"github.com/guardianbot/guardian/pkg/protocol"
)

// Converse answers one user message within conv.
//
// The new user turn and every tool exchange are staged in a scratch
// transcript that is committed to conv only when a final answer is
// produced. On any error conv is left exactly as it was.
func (a *Agent) Converse(ctx context.Context, conv *memory.Conversation, input string) (string, error) {
	conv.Lock()
	defer conv.Unlock()

	logger := a.logger().With("session", conv.ID())
	history := conv.Turns()

	if a.Compactor.ShouldCompact(history) {
		compacted, err := a.Compactor.Compact(ctx, history)
		if err != nil {
			logger.Warn("history compaction failed", "error", err)
		} else {
			logger.Info("history compacted", "before", len(history), "after", len(compacted))
			history = compacted
		}
	}

	scratch := make([]protocol.Turn, 0, len(history)+4)
	scratch = append(scratch, history...)
	scratch = append(scratch, protocol.Turn{Role: protocol.TurnUser, Content: input})

	text, scratch, iterations, err := a.runLoop(ctx, scratch)
	if err != nil {
		a.Metrics.ObserveTurn(outcomeFor(err), iterations)
		return "", err
	}

	conv.Replace(scratch)
	a.Metrics.ObserveTurn(metrics.OutcomeOK, iterations)
	return text, nil
}

func (a *Agent) runLoop(ctx context.Context, scratch []protocol.Turn) (string, []protocol.Turn, int, error) {
	maxIter := a.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	logger := a.logger()
	toolDefs := tool.Catalog()

	for i := 1; i <= maxIter; i++ {
		if err := ctx.Err(); err != nil {
			return "", nil, i - 1, fmt.Errorf("agent: context cancelled: %w", err)
		}

		logger.Debug("agent chat request", "iteration", i, "turns", len(scratch))

		resp, err := a.chat(ctx, protocol.ChatRequest{
			Model:    a.Model,
			Messages: a.buildMessages(scratch),
			Tools:    toolDefs,
		}, i)
		if err != nil {
			return "", nil, i, err
		}

		tc, ok := resp.FirstToolCall()
		if !ok {
			logger.Debug("agent final response", "iteration", i, "content_len", len(resp.Content))
			scratch = append(scratch, protocol.Turn{Role: protocol.TurnAssistant, Content: resp.Content})
			return resp.Content, scratch, i, nil
		}
		if n := len(resp.ToolCalls); n > 1 {
			logger.Warn("model requested several tools, keeping the first", "count", n, "tool", tc.Name)
		}
		if tc.ID == "" {
			tc.ID = fmt.Sprintf("call_%d", i)
		}

		scratch = append(scratch, protocol.Turn{
			Role:     protocol.TurnAssistant,
			Content:  resp.Content,
			ToolCall: &tc,
		})

		obs, err := a.Tools.Dispatch(ctx, tc)
		if err != nil {
			return "", nil, i, fmt.Errorf("agent: dispatch %s: %w", tc.Name, err)
		}

		scratch = append(scratch, protocol.Turn{
			Role:       protocol.TurnTool,
			Content:    obs.JSON(),
			ToolCallID: tc.ID,
			Name:       tc.Name,
		})
	}

	logger.Error("agent exceeded max iterations", "max_iterations", maxIter)
	return "", nil, maxIter, fmt.Errorf("agent: %w (%d iterations)", ErrLoopBoundExceeded, maxIter)
}

// chat performs one provider call under the per-call timeout.
func (a *Agent) chat(ctx context.Context, req protocol.ChatRequest, iteration int) (*protocol.ChatResponse, error) {
	timeout := a.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name := a.Provider.Name()
	start := time.Now()
	resp, err := a.Provider.Chat(callCtx, req)
	elapsed := time.Since(start)

	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		a.Metrics.ObserveModelCall(name, "error", elapsed)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("agent: context cancelled: %w", ctx.Err())
		}
		a.logger().Error("model call failed", "provider", name, "iteration", iteration, "error", err)
		return nil, &ModelClientError{Provider: name, Iteration: iteration, Err: err}
	}
	a.Metrics.ObserveModelCall(name, "ok", elapsed)
	a.Metrics.ObserveTokens(name, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	if resp.Truncated() {
		a.logger().Warn("model reply hit the output token limit", "provider", name, "iteration", iteration)
	}
	return resp, nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrModelClient):
		return metrics.OutcomeModelError
	case errors.Is(err, ErrLoopBoundExceeded):
		return metrics.OutcomeLoopBound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeStoreError
	}
}

func (a *Agent) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

func (a *Agent) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}
