package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/guardianbot/guardian/pkg/protocol"
)

// OpenAI speaks the chat-completions dialect, so it also serves OpenRouter,
// Groq, vLLM and other compatible gateways.
type OpenAI struct {
	settings
	apiKey string
}

// NewOpenAI returns a client for https://api.openai.com/v1 using gpt-4o
// unless overridden.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	return &OpenAI{
		settings: newSettings("https://api.openai.com/v1", "gpt-4o", opts),
		apiKey:   apiKey,
	}
}

func (p *OpenAI) Name() string { return "openai" }

type completionRequest struct {
	Model       string                    `json:"model"`
	Messages    []completionMessage       `json:"messages"`
	Tools       []protocol.ToolDefinition `json:"tools,omitempty"`
	Parallel    *bool                     `json:"parallel_tool_calls,omitempty"`
	MaxTokens   int                       `json:"max_tokens,omitempty"`
	Temperature float64                   `json:"temperature,omitempty"`
}

type completionMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	Name       string           `json:"name,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []completionCall `json:"tool_calls,omitempty"`
}

type completionCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func (p *OpenAI) Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	body := completionRequest{
		Model:       p.modelFor(req),
		Messages:    make([]completionMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, encodeCompletionMessage(m))
	}
	if len(req.Tools) > 0 {
		single := false
		body.Tools = req.Tools
		body.Parallel = &single
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+p.apiKey)
	raw, err := p.post(ctx, p.Name(), "/chat/completions", headers, body)
	if err != nil {
		return nil, err
	}
	return decodeCompletion(raw)
}

func encodeCompletionMessage(m protocol.ChatMessage) completionMessage {
	out := completionMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
	// Tool results are matched by call id; a name there is rejected by
	// some gateways.
	if m.Role != protocol.RoleTool {
		out.Name = m.Name
	}
	for _, tc := range m.ToolCalls {
		args, _ := json.Marshal(tc.Arguments)
		c := completionCall{ID: tc.ID, Type: "function"}
		c.Function.Name = tc.Name
		c.Function.Arguments = string(args)
		out.ToolCalls = append(out.ToolCalls, c)
	}
	return out
}

func decodeCompletion(raw []byte) (*protocol.ChatResponse, error) {
	choice := gjson.GetBytes(raw, "choices.0")
	if !choice.Exists() {
		return nil, fmt.Errorf("openai: reply has no choices")
	}

	resp := &protocol.ChatResponse{
		Content:    choice.Get("message.content").String(),
		StopReason: completionStop(choice.Get("finish_reason").String()),
		Usage: protocol.Usage{
			InputTokens:  int(gjson.GetBytes(raw, "usage.prompt_tokens").Int()),
			OutputTokens: int(gjson.GetBytes(raw, "usage.completion_tokens").Int()),
		},
	}
	choice.Get("message.tool_calls").ForEach(func(_, tc gjson.Result) bool {
		var args gjson.Result
		if s := tc.Get("function.arguments").String(); gjson.Valid(s) {
			args = gjson.Parse(s)
		}
		resp.ToolCalls = append(resp.ToolCalls, protocol.ToolCall{
			ID:        tc.Get("id").String(),
			Name:      tc.Get("function.name").String(),
			Arguments: objectArgs(args),
		})
		return true
	})
	return resp, nil
}

func completionStop(reason string) string {
	switch reason {
	case "tool_calls", "function_call":
		return protocol.StopToolUse
	case "length":
		return protocol.StopMaxToken
	case "":
		return ""
	default:
		return protocol.StopEnd
	}
}
