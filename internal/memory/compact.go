package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/guardianbot/guardian/internal/provider"
	"github.com/guardianbot/guardian/pkg/protocol"
)

// Compactor summarizes old turns to keep prompts within budget.
type Compactor struct {
	Provider  provider.Provider
	Model     string
	Threshold int // estimated token count that triggers compaction
	Keep      int // number of recent turns to preserve (default 4)
}

// EstimateTokens returns a rough token estimate for a string (words × 1.3).
func EstimateTokens(s string) int {
	words := len(strings.Fields(s))
	return int(float64(words) * 1.3)
}

func turnTokens(turns []protocol.Turn) int {
	total := 0
	for _, t := range turns {
		total += EstimateTokens(t.Content)
		if t.ToolCall != nil {
			for _, v := range t.ToolCall.Arguments {
				total += EstimateTokens(fmt.Sprint(v))
			}
		}
	}
	return total
}

// ShouldCompact reports whether the history exceeds the threshold.
func (c *Compactor) ShouldCompact(turns []protocol.Turn) bool {
	if c == nil || c.Threshold <= 0 {
		return false
	}
	return turnTokens(turns) > c.Threshold
}

// Compact returns a new history where everything but the most recent turns
// is replaced by one summary turn. A tool observation is never separated
// from the assistant turn that requested it.
func (c *Compactor) Compact(ctx context.Context, turns []protocol.Turn) ([]protocol.Turn, error) {
	keep := c.Keep
	if keep <= 0 {
		keep = 4
	}
	if len(turns) <= keep+1 {
		return turns, nil
	}

	cut := len(turns) - keep
	for cut > 0 && turns[cut].Role == protocol.TurnTool {
		cut--
	}
	if cut == 0 {
		return turns, nil
	}
	old, recent := turns[:cut], turns[cut:]

	var conv strings.Builder
	for _, t := range old {
		switch {
		case t.ToolCall != nil:
			fmt.Fprintf(&conv, "[assistant → %s]: %v\n", t.ToolCall.Name, t.ToolCall.Arguments)
		case t.Role == protocol.TurnTool:
			fmt.Fprintf(&conv, "[%s result]: %s\n", t.Name, t.Content)
		default:
			fmt.Fprintf(&conv, "[%s]: %s\n", t.Role, t.Content)
		}
	}

	req := protocol.ChatRequest{
		Model: c.Model,
		Messages: []protocol.ChatMessage{
			{
				Role:    protocol.RoleSystem,
				Content: "Summarize the following support conversation. Keep every ticket id, reporter detail, and open question. Be concise.",
			},
			{Role: protocol.RoleUser, Content: conv.String()},
		},
		MaxTokens:   512,
		Temperature: 0.2,
	}

	resp, err := c.Provider.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("memory: compact: %w", err)
	}

	// A user-role summary keeps the history valid for providers that
	// require the first message to come from the user.
	summary := protocol.Turn{
		Role:    protocol.TurnUser,
		Content: fmt.Sprintf("[Summary of earlier conversation: %s]", resp.Content),
	}
	return append([]protocol.Turn{summary}, recent...), nil
}
