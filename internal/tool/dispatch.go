package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/guardianbot/guardian/internal/metrics"
	"github.com/guardianbot/guardian/internal/ticket"
	"github.com/guardianbot/guardian/pkg/protocol"
)

// Observation error kinds reported back to the model.
const (
	KindToolNotFound       = "tool_not_found"
	KindArgumentValidation = "argument_validation"
	KindTicketNotFound     = "ticket_not_found"
)

// ObservationError is the error part of an observation.
type ObservationError struct {
	Kind    string       `json:"kind"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// Observation is the outcome of one dispatched tool call, fed back to the
// model as the content of a tool turn.
type Observation struct {
	Tool    string            `json:"tool"`
	OK      bool              `json:"ok"`
	Payload any               `json:"payload,omitempty"`
	Error   *ObservationError `json:"error,omitempty"`
}

// JSON renders the observation as tool-turn content.
func (o Observation) JSON() string {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Sprintf(`{"tool":%q,"ok":false,"error":{"kind":"internal","message":"unencodable observation"}}`, o.Tool)
	}
	return string(b)
}

// CreatedPayload is returned by create_ticket_issue.
type CreatedPayload struct {
	Message  string                `json:"message"`
	TicketID string                `json:"ticket_id"`
	Status   protocol.TicketStatus `json:"status"`
}

// NotFoundPayload is returned by lookups of an unknown ticket id.
type NotFoundPayload struct {
	Message string `json:"message"`
}

// TicketStore is the subset of *ticket.Service the dispatcher needs.
type TicketStore interface {
	Create(ctx context.Context, fields protocol.NewTicket) (string, error)
	Status(ctx context.Context, id string) (ticket.StatusResult, error)
	AttachmentName(ctx context.Context, id string) (ticket.AttachmentResult, error)
}

// Dispatcher executes parsed tool calls against the ticket store.
type Dispatcher struct {
	store   TicketStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDispatcher creates a dispatcher. logger and m may be nil.
func NewDispatcher(store TicketStore, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, logger: logger.With("component", "tool"), metrics: m}
}

// unknownToolLabel stands in for model-invented tool names in metrics.
const unknownToolLabel = "unknown"

func metricLabel(name string) string {
	switch Name(name) {
	case CreateTicketIssueName, CheckTicketStatusName, CheckAttachmentNameName:
		return name
	}
	return unknownToolLabel
}

// Dispatch parses and runs one tool call. Unknown tools, invalid arguments
// and unknown ticket ids come back as failed observations with a nil error;
// the error return is reserved for store faults and cancellation.
func (d *Dispatcher) Dispatch(ctx context.Context, tc protocol.ToolCall) (Observation, error) {
	call, err := Parse(tc)
	if err != nil {
		obs := failedObservation(tc.Name, err)
		d.logger.Warn("tool call rejected", "tool", tc.Name, "kind", obs.Error.Kind, "error", err)
		d.metrics.ObserveToolCall(metricLabel(tc.Name), obs.Error.Kind)
		return obs, nil
	}

	d.logger.Info("tool call", "tool", tc.Name, "id", tc.ID)
	obs, err := d.run(ctx, call)
	if err != nil {
		d.logger.Error("tool call failed", "tool", tc.Name, "error", err)
		d.metrics.ObserveToolCall(tc.Name, "error")
		return Observation{}, fmt.Errorf("tool: %s: %w", tc.Name, err)
	}

	outcome := "ok"
	if obs.Error != nil {
		outcome = obs.Error.Kind
		d.logger.Warn("tool call result", "tool", tc.Name, "kind", obs.Error.Kind)
	} else {
		d.logger.Info("tool call result", "tool", tc.Name, "ok", true)
	}
	d.metrics.ObserveToolCall(tc.Name, outcome)
	return obs, nil
}

func (d *Dispatcher) run(ctx context.Context, call Call) (Observation, error) {
	name := string(call.ToolName())
	switch c := call.(type) {
	case CreateTicketIssue:
		id, err := d.store.Create(ctx, c.NewTicket())
		if err != nil {
			return Observation{}, err
		}
		return Observation{Tool: name, OK: true, Payload: CreatedPayload{
			Message:  fmt.Sprintf("Ticket %s created successfully.", id),
			TicketID: id,
			Status:   protocol.TicketOpen,
		}}, nil

	case CheckTicketStatus:
		res, err := d.store.Status(ctx, c.TicketID)
		if errors.Is(err, ticket.ErrNotFound) {
			return ticketNotFound(name), nil
		}
		if err != nil {
			return Observation{}, err
		}
		return Observation{Tool: name, OK: true, Payload: res}, nil

	case CheckAttachmentName:
		res, err := d.store.AttachmentName(ctx, c.TicketID)
		if errors.Is(err, ticket.ErrNotFound) {
			return ticketNotFound(name), nil
		}
		if err != nil {
			return Observation{}, err
		}
		return Observation{Tool: name, OK: true, Payload: res}, nil

	default:
		return Observation{}, fmt.Errorf("unhandled call type %T", call)
	}
}

// NewTicket converts the call arguments into store fields.
func (c CreateTicketIssue) NewTicket() protocol.NewTicket {
	return protocol.NewTicket{
		Issue:        c.Issue,
		ReporterName: c.ReporterName,
		Email:        c.Email,
		Priority:     c.Priority,
		Attachments:  c.Attachments,
		Department:   c.Department,
		NoticedAt:    c.NoticedAt,
	}
}

func ticketNotFound(tool string) Observation {
	const msg = "Ticket ID not found."
	return Observation{
		Tool:    tool,
		Payload: NotFoundPayload{Message: msg},
		Error:   &ObservationError{Kind: KindTicketNotFound, Message: msg},
	}
}

func failedObservation(tool string, err error) Observation {
	obs := Observation{Tool: tool}
	var nf *NotFoundError
	var ve *ValidationError
	switch {
	case errors.As(err, &nf):
		obs.Error = &ObservationError{
			Kind:    KindToolNotFound,
			Message: fmt.Sprintf("%s. Available tools: %s", nf.Error(), strings.Join(nameStrings(), ", ")),
		}
	case errors.As(err, &ve):
		obs.Error = &ObservationError{Kind: KindArgumentValidation, Message: ve.Error(), Fields: ve.Fields}
	default:
		obs.Error = &ObservationError{Kind: KindArgumentValidation, Message: err.Error()}
	}
	return obs
}

func nameStrings() []string {
	out := make([]string, len(Names))
	for i, n := range Names {
		out[i] = string(n)
	}
	return out
}
