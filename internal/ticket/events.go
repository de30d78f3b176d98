package ticket

import (
	"context"
	"time"

	"github.com/guardianbot/guardian/pkg/protocol"
)

// EventTicketCreated is the only event type emitted by the store.
const EventTicketCreated = "ticket.created"

// Event describes a change to the ticket collection.
type Event struct {
	Type     string          `json:"type"`
	TicketID string          `json:"ticket_id"`
	Ticket   protocol.Ticket `json:"ticket"`
	At       time.Time       `json:"at"`
}

// EventPublisher delivers store events to an external sink.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}
