package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/guardianbot/guardian/pkg/protocol"
)

func TestAnthropic_TextReply(t *testing.T) {
	srv := fakeAPI(t, http.StatusOK,
		`{"content":[{"type":"text","text":"Hello!"}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`,
		func(r *http.Request, body gjson.Result) {
			assert.Equal(t, "/v1/messages", r.URL.Path)
			assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
			assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
			assert.Equal(t, "claude-sonnet-4-20250514", body.Get("model").String())
			assert.EqualValues(t, anthropicMaxTokens, body.Get("max_tokens").Int())
			assert.Equal(t, "You are GuardianBot.", body.Get("system").String())
			assert.Len(t, body.Get("messages").Array(), 1)
			assert.False(t, body.Get("tool_choice").Exists())
		})

	got, err := NewAnthropic("test-key", WithBaseURL(srv.URL)).Chat(context.Background(), protocol.ChatRequest{
		Messages: []protocol.ChatMessage{
			{Role: protocol.RoleSystem, Content: "You are GuardianBot."},
			{Role: protocol.RoleUser, Content: "Hi"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", got.Content)
	assert.Equal(t, protocol.StopEnd, got.StopReason)
	assert.Equal(t, 15, got.Usage.Total())
}

func TestAnthropic_ToolUse(t *testing.T) {
	srv := fakeAPI(t, http.StatusOK,
		`{"content":[
			{"type":"text","text":"Let me check."},
			{"type":"tool_use","id":"toolu_1","name":"check_ticket_status","input":{"ticket_id":"abc"}}
		],"stop_reason":"tool_use","usage":{"input_tokens":20,"output_tokens":8}}`,
		func(_ *http.Request, body gjson.Result) {
			assert.Equal(t, "check_ticket_status", body.Get("tools.0.name").String())
			assert.True(t, body.Get("tools.0.input_schema").IsObject())
			assert.Equal(t, "auto", body.Get("tool_choice.type").String())
			assert.True(t, body.Get("tool_choice.disable_parallel_tool_use").Bool())
		})

	got, err := NewAnthropic("k", WithBaseURL(srv.URL)).Chat(context.Background(), protocol.ChatRequest{
		Messages: []protocol.ChatMessage{{Role: protocol.RoleUser, Content: "status of abc"}},
		Tools:    []protocol.ToolDefinition{statusTool},
	})
	require.NoError(t, err)
	assert.Equal(t, "Let me check.", got.Content)
	assert.Equal(t, protocol.StopToolUse, got.StopReason)
	tc, ok := got.FirstToolCall()
	require.True(t, ok)
	assert.Equal(t, "toolu_1", tc.ID)
	assert.Equal(t, map[string]any{"ticket_id": "abc"}, tc.Arguments)
}

func TestEncodeMessages_ToolTurns(t *testing.T) {
	call := protocol.ToolCall{ID: "toolu_1", Name: "check_ticket_status", Arguments: map[string]any{"ticket_id": "abc"}}
	system, turns := encodeMessages([]protocol.ChatMessage{
		{Role: protocol.RoleSystem, Content: "one"},
		{Role: protocol.RoleSystem, Content: "two"},
		{Role: protocol.RoleUser, Content: "status?"},
		{Role: protocol.RoleAssistant, ToolCalls: []protocol.ToolCall{call}},
		{Role: protocol.RoleTool, Content: `{"ok":true}`, ToolCallID: "toolu_1"},
	})

	assert.Equal(t, "one\n\ntwo", system)
	raw, err := json.Marshal(turns)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"role":"user","content":[{"type":"text","text":"status?"}]},
		{"role":"assistant","content":[{"type":"tool_use","id":"toolu_1","name":"check_ticket_status","input":{"ticket_id":"abc"}}]},
		{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"{\"ok\":true}"}]}
	]`, string(raw))
}

func TestEncodeMessages_MergesSameRole(t *testing.T) {
	_, turns := encodeMessages([]protocol.ChatMessage{
		{Role: protocol.RoleUser, Content: "first"},
		{Role: protocol.RoleUser, Content: "second"},
		{Role: protocol.RoleAssistant, ToolCalls: []protocol.ToolCall{{ID: "t", Name: "check_ticket_status"}}},
	})

	require.Len(t, turns, 2)
	assert.Len(t, turns[0].Content, 2)

	raw, err := json.Marshal(turns[1].Content[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool_use","id":"t","name":"check_ticket_status","input":{}}`, string(raw))
}

func TestAnthropic_MaxTokensStop(t *testing.T) {
	srv := fakeAPI(t, http.StatusOK, `{"content":[{"type":"text","text":"cut"}],"stop_reason":"max_tokens"}`,
		func(_ *http.Request, body gjson.Result) {
			assert.EqualValues(t, 256, body.Get("max_tokens").Int())
		})

	got, err := NewAnthropic("k", WithBaseURL(srv.URL)).Chat(context.Background(), protocol.ChatRequest{MaxTokens: 256})
	require.NoError(t, err)
	assert.True(t, got.Truncated())
}

func TestAnthropic_APIError(t *testing.T) {
	srv := fakeAPI(t, http.StatusUnauthorized,
		`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, nil)

	_, err := NewAnthropic("bad", WithBaseURL(srv.URL)).Chat(context.Background(), protocol.ChatRequest{
		Messages: []protocol.ChatMessage{{Role: protocol.RoleUser, Content: "Hi"}},
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "anthropic", apiErr.Provider)
	assert.Equal(t, "invalid x-api-key", apiErr.Message)
}

func TestAnthropic_RequestModelWins(t *testing.T) {
	var model string
	srv := fakeAPI(t, http.StatusOK, `{"content":[{"type":"text","text":"ok"}]}`,
		func(_ *http.Request, body gjson.Result) { model = body.Get("model").String() })

	p := NewAnthropic("k", WithBaseURL(srv.URL), WithModel("claude-default"))
	_, err := p.Chat(context.Background(), protocol.ChatRequest{Model: "claude-override"})
	require.NoError(t, err)
	assert.Equal(t, "claude-override", model)
}
