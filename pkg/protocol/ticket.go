package protocol

import "time"

// TicketStatus represents the lifecycle state of a ticket.
type TicketStatus string

// TicketOpen is the only status a ticket ever takes. Tickets are created
// open and nothing in the system transitions them further.
const TicketOpen TicketStatus = "Open"

// NewTicket holds the caller-supplied fields of a ticket.
type NewTicket struct {
	Issue        string `json:"issue"`
	ReporterName string `json:"reporter_name"`
	Email        string `json:"email"`
	Priority     string `json:"priority"`
	Attachments  string `json:"attachments"`
	Department   string `json:"department"`
	NoticedAt    string `json:"noticed_at"`
}

// Ticket is a durable record of a reported issue.
type Ticket struct {
	TicketID     string       `json:"ticket_id"`
	Issue        string       `json:"issue"`
	ReporterName string       `json:"reporter_name"`
	Email        string       `json:"email"`
	Priority     string       `json:"priority"`
	Attachments  string       `json:"attachments"`
	Department   string       `json:"department"`
	NoticedAt    string       `json:"noticed_at"`
	Status       TicketStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Fields returns the caller-supplied part of the ticket.
func (t Ticket) Fields() NewTicket {
	return NewTicket{
		Issue:        t.Issue,
		ReporterName: t.ReporterName,
		Email:        t.Email,
		Priority:     t.Priority,
		Attachments:  t.Attachments,
		Department:   t.Department,
		NoticedAt:    t.NoticedAt,
	}
}
