package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/guardianbot/guardian/pkg/protocol"
)

func TestBuildSystemPrompt(t *testing.T) {
	a := New(nil, nil, "You are GuardianBot.")
	a.Now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }

	prompt := a.BuildSystemPrompt()
	for _, want := range []string{
		"You are GuardianBot.",
		"2024-05-01 09:30:00 UTC",
		"create_ticket_issue",
		"check_ticket_status",
		"check_attachment_name",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestBuildMessages_Order(t *testing.T) {
	a := New(nil, nil, "sys")
	call := protocol.ToolCall{ID: "c1", Name: "check_ticket_status", Arguments: map[string]any{"ticket_id": "x"}}
	msgs := a.buildMessages([]protocol.Turn{
		{Role: protocol.TurnUser, Content: "status?"},
		{Role: protocol.TurnAssistant, ToolCall: &call},
		{Role: protocol.TurnTool, Content: "{}", ToolCallID: "c1", Name: "check_ticket_status"},
	})

	roles := []string{"system", "user", "assistant", "tool"}
	if len(msgs) != len(roles) {
		t.Fatalf("expected %d messages, got %d", len(roles), len(msgs))
	}
	for i, r := range roles {
		if msgs[i].Role != r {
			t.Errorf("message %d: expected role %s, got %s", i, r, msgs[i].Role)
		}
	}
	if msgs[2].ToolCalls[0].ID != "c1" {
		t.Error("assistant message should carry the tool call")
	}
}
