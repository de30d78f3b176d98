package protocol

// Wire roles understood by both model APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one entry of the prompt sent to a model.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a model's request to run one named tool. Argument values are
// whatever the model sent; the tool parser decides what is acceptable.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatRequest is the provider-neutral form of one model call.
type ChatRequest struct {
	Model       string           `json:"model"`
	Messages    []ChatMessage    `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
}

// Stop reasons, normalized across providers.
const (
	StopEnd      = "end"
	StopToolUse  = "tool_use"
	StopMaxToken = "max_tokens"
)

// ChatResponse is one model reply: final text, or text plus tool requests.
type ChatResponse struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason,omitempty"`
	Usage      Usage      `json:"usage"`
}

// HasToolCalls reports whether the model asked for any tool.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// FirstToolCall returns the earliest requested call. Callers run one tool
// per iteration and drop the rest.
func (r *ChatResponse) FirstToolCall() (ToolCall, bool) {
	if len(r.ToolCalls) == 0 {
		return ToolCall{}, false
	}
	return r.ToolCalls[0], true
}

// Truncated reports whether the reply was cut off by the output token limit.
func (r *ChatResponse) Truncated() bool {
	return r.StopReason == StopMaxToken
}

// Usage counts the tokens billed for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total is input plus output.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}
