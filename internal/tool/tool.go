// Package tool defines the closed set of actions the assistant may invoke,
// their typed arguments, and dispatch onto the ticket store.
package tool

import (
	"fmt"
	"sort"
	"strings"
)

// Name identifies a tool in the catalog.
type Name string

const (
	CreateTicketIssueName   Name = "create_ticket_issue"
	CheckTicketStatusName   Name = "check_ticket_status"
	CheckAttachmentNameName Name = "check_attachment_name"
)

// Names lists every tool, in catalog order.
var Names = []Name{CreateTicketIssueName, CheckTicketStatusName, CheckAttachmentNameName}

// Call is a parsed, typed tool invocation. The set of implementations is
// closed to this package.
type Call interface {
	ToolName() Name
	Validate() error
	isCall()
}

// CreateTicketIssue opens a new support ticket.
type CreateTicketIssue struct {
	Issue        string
	ReporterName string
	Email        string
	Priority     string
	Attachments  string
	Department   string
	NoticedAt    string
}

// CheckTicketStatus reads the status of a ticket.
type CheckTicketStatus struct {
	TicketID string
}

// CheckAttachmentName reads the attachment file name of a ticket.
type CheckAttachmentName struct {
	TicketID string
}

func (CreateTicketIssue) ToolName() Name   { return CreateTicketIssueName }
func (CheckTicketStatus) ToolName() Name   { return CheckTicketStatusName }
func (CheckAttachmentName) ToolName() Name { return CheckAttachmentNameName }

func (CreateTicketIssue) isCall()   {}
func (CheckTicketStatus) isCall()   {}
func (CheckAttachmentName) isCall() {}

// Validate checks the fields that must carry a value. Attachments may be
// empty when the reporter has nothing to attach.
func (c CreateTicketIssue) Validate() error {
	var bad []FieldError
	for _, f := range []struct{ name, val string }{
		{"issue", c.Issue},
		{"reporter_name", c.ReporterName},
		{"email", c.Email},
		{"priority", c.Priority},
		{"department", c.Department},
		{"noticed_at", c.NoticedAt},
	} {
		if strings.TrimSpace(f.val) == "" {
			bad = append(bad, FieldError{Field: f.name, Problem: "must not be empty"})
		}
	}
	return newValidationError(CreateTicketIssueName, bad)
}

func (c CheckTicketStatus) Validate() error {
	return validateTicketID(CheckTicketStatusName, c.TicketID)
}

func (c CheckAttachmentName) Validate() error {
	return validateTicketID(CheckAttachmentNameName, c.TicketID)
}

func validateTicketID(tool Name, id string) error {
	if strings.TrimSpace(id) == "" {
		return newValidationError(tool, []FieldError{{Field: "ticket_id", Problem: "must not be empty"}})
	}
	return nil
}

// NotFoundError reports a tool name outside the catalog.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}

// FieldError describes one invalid argument.
type FieldError struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
}

// ValidationError reports every invalid argument of one call.
type ValidationError struct {
	Tool   Name
	Fields []FieldError
}

func newValidationError(tool Name, fields []FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return &ValidationError{Tool: tool, Fields: fields}
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Problem
	}
	return fmt.Sprintf("%s: invalid arguments: %s", e.Tool, strings.Join(parts, "; "))
}

// FieldNames returns the names of the offending fields.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return names
}
