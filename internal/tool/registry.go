package tool

import (
	"fmt"

	"github.com/guardianbot/guardian/pkg/protocol"
)

var createTicketFields = map[string]string{
	"issue":         "A short description of the problem",
	"reporter_name": "Full name of the person reporting the issue",
	"email":         "Contact email of the reporter",
	"priority":      "Priority of the issue, e.g. Low, Medium, High",
	"attachments":   "File name of any attachment, or an empty string",
	"department":    "Department the reporter belongs to",
	"noticed_at":    "When the issue was first noticed",
}

var createTicketOrder = []string{"issue", "reporter_name", "email", "priority", "attachments", "department", "noticed_at"}

var catalog = []protocol.ToolDefinition{
	protocol.NewToolDefinition(
		string(CreateTicketIssueName),
		"Create a support ticket once every detail of the issue has been collected from the user. Returns the new ticket id.",
		protocol.ObjectSchema(createTicketFields, createTicketOrder...),
	),
	protocol.NewToolDefinition(
		string(CheckTicketStatusName),
		"Look up the current status of an existing ticket by its id.",
		protocol.ObjectSchema(map[string]string{"ticket_id": "The ticket id returned when the ticket was created"}, "ticket_id"),
	),
	protocol.NewToolDefinition(
		string(CheckAttachmentNameName),
		"Look up the attachment file name recorded on an existing ticket.",
		protocol.ObjectSchema(map[string]string{"ticket_id": "The ticket id returned when the ticket was created"}, "ticket_id"),
	),
}

// Catalog returns the tool definitions advertised to the model. The
// returned slice is a copy; the catalog itself never changes.
func Catalog() []protocol.ToolDefinition {
	out := make([]protocol.ToolDefinition, len(catalog))
	copy(out, catalog)
	return out
}

// Parse converts a raw tool call from the model into a typed, validated
// Call. It returns *NotFoundError for unknown names and *ValidationError
// when arguments are missing, not strings, or empty where required.
func Parse(tc protocol.ToolCall) (Call, error) {
	args := argReader{args: tc.Arguments}

	var call Call
	switch Name(tc.Name) {
	case CreateTicketIssueName:
		call = CreateTicketIssue{
			Issue:        args.str("issue"),
			ReporterName: args.str("reporter_name"),
			Email:        args.str("email"),
			Priority:     args.str("priority"),
			Attachments:  args.str("attachments"),
			Department:   args.str("department"),
			NoticedAt:    args.str("noticed_at"),
		}
	case CheckTicketStatusName:
		call = CheckTicketStatus{TicketID: args.str("ticket_id")}
	case CheckAttachmentNameName:
		call = CheckAttachmentName{TicketID: args.str("ticket_id")}
	default:
		return nil, &NotFoundError{Name: tc.Name}
	}

	if len(args.bad) > 0 {
		// Missing or mistyped fields; skip the empty-value checks.
		return nil, newValidationError(call.ToolName(), args.bad)
	}
	if err := call.Validate(); err != nil {
		return nil, err
	}
	return call, nil
}

// ParseCreateTicket builds a validated CreateTicketIssue from loosely typed
// fields, as received by the HTTP create endpoint.
func ParseCreateTicket(fields map[string]any) (CreateTicketIssue, error) {
	call, err := Parse(protocol.ToolCall{Name: string(CreateTicketIssueName), Arguments: fields})
	if err != nil {
		return CreateTicketIssue{}, err
	}
	return call.(CreateTicketIssue), nil
}

// argReader extracts string arguments and records every problem.
type argReader struct {
	args map[string]any
	bad  []FieldError
}

func (r *argReader) str(key string) string {
	raw, ok := r.args[key]
	if !ok || raw == nil {
		r.bad = append(r.bad, FieldError{Field: key, Problem: "is required"})
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		r.bad = append(r.bad, FieldError{Field: key, Problem: fmt.Sprintf("must be a string, got %T", raw)})
		return ""
	}
	return s
}
