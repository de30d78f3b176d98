package provider

import (
	"context"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/guardianbot/guardian/pkg/protocol"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 4096
)

// Anthropic speaks the Messages API.
type Anthropic struct {
	settings
	apiKey string
}

// NewAnthropic returns a client for https://api.anthropic.com.
func NewAnthropic(apiKey string, opts ...Option) *Anthropic {
	return &Anthropic{
		settings: newSettings("https://api.anthropic.com", "claude-sonnet-4-20250514", opts),
		apiKey:   apiKey,
	}
}

func (p *Anthropic) Name() string { return "anthropic" }

type messagesRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []messagesTurn  `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	Tools       []messagesTool  `json:"tools,omitempty"`
	ToolChoice  *messagesChoice `json:"tool_choice,omitempty"`
}

type messagesTurn struct {
	Role    string `json:"role"`
	Content []any  `json:"content"`
}

type textBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolUseBlock struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

type toolResultBlock struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

type messagesTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type messagesChoice struct {
	Type                   string `json:"type"`
	DisableParallelToolUse bool   `json:"disable_parallel_tool_use"`
}

func (p *Anthropic) Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	system, turns := encodeMessages(req.Messages)
	body := messagesRequest{
		Model:       p.modelFor(req),
		System:      system,
		Messages:    turns,
		MaxTokens:   anthropicMaxTokens,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	for _, td := range req.Tools {
		body.Tools = append(body.Tools, messagesTool{
			Name:        td.Function.Name,
			Description: td.Function.Description,
			InputSchema: td.Function.Parameters,
		})
	}
	if len(body.Tools) > 0 {
		body.ToolChoice = &messagesChoice{Type: "auto", DisableParallelToolUse: true}
	}

	headers := http.Header{}
	headers.Set("x-api-key", p.apiKey)
	headers.Set("anthropic-version", anthropicVersion)
	raw, err := p.post(ctx, p.Name(), "/v1/messages", headers, body)
	if err != nil {
		return nil, err
	}
	return decodeMessage(raw), nil
}

// encodeMessages lifts system messages into the top-level system field and
// turns tool exchanges into tool_use and tool_result blocks. Consecutive
// messages with the same role are merged since the API requires the roles
// to alternate.
func encodeMessages(msgs []protocol.ChatMessage) (string, []messagesTurn) {
	var system []string
	var turns []messagesTurn

	push := func(role string, blocks ...any) {
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content = append(turns[n-1].Content, blocks...)
			return
		}
		turns = append(turns, messagesTurn{Role: role, Content: blocks})
	}

	for _, m := range msgs {
		switch m.Role {
		case protocol.RoleSystem:
			system = append(system, m.Content)
		case protocol.RoleTool:
			push(protocol.RoleUser, toolResultBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content})
		case protocol.RoleAssistant:
			var blocks []any
			if m.Content != "" || len(m.ToolCalls) == 0 {
				blocks = append(blocks, textBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, toolUseBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
			push(protocol.RoleAssistant, blocks...)
		default:
			push(protocol.RoleUser, textBlock{Type: "text", Text: m.Content})
		}
	}
	return strings.Join(system, "\n\n"), turns
}

func decodeMessage(raw []byte) *protocol.ChatResponse {
	var text strings.Builder
	resp := &protocol.ChatResponse{
		StopReason: messageStop(gjson.GetBytes(raw, "stop_reason").String()),
		Usage: protocol.Usage{
			InputTokens:  int(gjson.GetBytes(raw, "usage.input_tokens").Int()),
			OutputTokens: int(gjson.GetBytes(raw, "usage.output_tokens").Int()),
		},
	}
	gjson.GetBytes(raw, "content").ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			text.WriteString(block.Get("text").String())
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, protocol.ToolCall{
				ID:        block.Get("id").String(),
				Name:      block.Get("name").String(),
				Arguments: objectArgs(block.Get("input")),
			})
		}
		return true
	})
	resp.Content = text.String()
	return resp
}

func messageStop(reason string) string {
	switch reason {
	case "tool_use":
		return protocol.StopToolUse
	case "max_tokens":
		return protocol.StopMaxToken
	case "":
		return ""
	default:
		return protocol.StopEnd
	}
}
