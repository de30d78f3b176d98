package protocol

// TurnRole identifies who produced a turn.
type TurnRole string

const (
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
	TurnTool      TurnRole = "tool"
)

// Turn is one message unit in a conversation: user input, assistant output,
// or a tool observation. Assistant turns that request a tool carry the call.
type Turn struct {
	Role       TurnRole  `json:"role"`
	Content    string    `json:"content"`
	ToolCall   *ToolCall `json:"tool_call,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	Name       string    `json:"name,omitempty"`
}

// ChatMessage converts the turn to its provider wire form.
func (t Turn) ChatMessage() ChatMessage {
	msg := ChatMessage{
		Role:       string(t.Role),
		Content:    t.Content,
		ToolCallID: t.ToolCallID,
		Name:       t.Name,
	}
	if t.ToolCall != nil {
		msg.ToolCalls = []ToolCall{*t.ToolCall}
	}
	return msg
}

// ChatMessages converts an ordered list of turns, preserving order.
func ChatMessages(turns []Turn) []ChatMessage {
	out := make([]ChatMessage, len(turns))
	for i, t := range turns {
		out[i] = t.ChatMessage()
	}
	return out
}
