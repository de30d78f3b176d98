// Package prompt loads the assistant's system instructions.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default is used when no prompt file is configured.
const Default = `You are GuardianBot, a friendly IT support assistant.

Help users report problems and follow up on existing support tickets.

Before creating a ticket, collect every detail: a description of the issue,
the reporter's name, email, priority, any attachment file name, department,
and when the issue was first noticed. Ask for anything that is missing; do
not invent values. When all details are known, call create_ticket_issue and
tell the user the ticket id it returns.

To answer questions about an existing ticket, ask for its ticket id and use
check_ticket_status or check_attachment_name. If a ticket id is not found,
say so and ask the user to double-check it.`

// File is the on-disk prompt format.
type File struct {
	SystemPrompt string `yaml:"system_prompt"`
}

// Load reads the system prompt from a YAML file with a system_prompt key.
// An empty path returns Default.
func Load(path string) (string, error) {
	if path == "" {
		return Default, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("prompt: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("prompt: parse %s: %w", path, err)
	}
	text := strings.TrimSpace(f.SystemPrompt)
	if text == "" {
		return "", fmt.Errorf("prompt: %s: system_prompt is empty", path)
	}
	return text, nil
}
