package agent

import (
	"fmt"
	"strings"

	"github.com/guardianbot/guardian/internal/tool"
	"github.com/guardianbot/guardian/pkg/protocol"
)

// BuildSystemPrompt assembles the system message: configured instructions,
// the current time, and the tool list.
func (a *Agent) BuildSystemPrompt() string {
	var b strings.Builder

	b.WriteString(a.Instructions)
	b.WriteString("\n\n")

	now := a.now()
	fmt.Fprintf(&b, "# Current Time\n%s\n\n", now.Format("2006-01-02 15:04:05 MST"))

	b.WriteString("# Available Tools\n")
	for _, d := range tool.Catalog() {
		fmt.Fprintf(&b, "- **%s**: %s\n", d.Function.Name, d.Function.Description)
	}

	b.WriteString("\n# Rules\n")
	b.WriteString("- Call at most one tool at a time and wait for its result.\n")
	b.WriteString("- Never make up ticket ids; only report ids returned by a tool.\n")
	b.WriteString("- Be concise in responses.\n")

	return b.String()
}

// buildMessages renders the prompt for one model call: the system message
// followed by the transcript in order.
func (a *Agent) buildMessages(transcript []protocol.Turn) []protocol.ChatMessage {
	msgs := make([]protocol.ChatMessage, 0, len(transcript)+1)
	msgs = append(msgs, protocol.ChatMessage{Role: protocol.RoleSystem, Content: a.BuildSystemPrompt()})
	return append(msgs, protocol.ChatMessages(transcript)...)
}
