package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/guardianbot/guardian/internal/metrics"
	"github.com/guardianbot/guardian/pkg/protocol"
)

// Sentinel errors shared by every backend.
var (
	ErrNotFound      = errors.New("ticket not found")
	ErrAlreadyExists = errors.New("ticket id already exists")
)

// Backend is the persistence interface for tickets. Implementations must
// serialize writes so that concurrent inserts never lose each other, and
// must treat storage that does not exist yet as an empty collection.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Insert stores a new ticket. It never overwrites: an existing id
	// yields ErrAlreadyExists.
	Insert(ctx context.Context, t protocol.Ticket) error
	// Get retrieves a ticket by id, or ErrNotFound.
	Get(ctx context.Context, id string) (protocol.Ticket, error)
	// List returns every ticket ordered by creation time.
	List(ctx context.Context) ([]protocol.Ticket, error)
	// Close releases the underlying storage handle.
	Close() error
}

// StatusResult is the answer to a status lookup.
type StatusResult struct {
	TicketID string                `json:"ticket_id"`
	Status   protocol.TicketStatus `json:"status"`
	Issue    string                `json:"issue"`
}

// AttachmentResult is the answer to an attachment lookup.
type AttachmentResult struct {
	TicketID string `json:"ticket_id"`
	FileName string `json:"file_name"`
}

const maxIDAttempts = 3

// Service implements the ticket operations on top of a Backend.
type Service struct {
	backend   Backend
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	newID     func() string
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher emits a ticket.created event after each successful create.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records created tickets.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithIDGenerator overrides ticket id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithClock overrides the creation timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) { s.now = fn }
}

// NewService wraps a backend.
func NewService(b Backend, opts ...Option) *Service {
	s := &Service{
		backend: b,
		logger:  slog.Default(),
		newID:   func() string { return uuid.NewString() },
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the underlying backend.
func (s *Service) Backend() Backend {
	return s.backend
}

// Create persists a new open ticket and returns its generated id.
func (s *Service) Create(ctx context.Context, fields protocol.NewTicket) (string, error) {
	t := protocol.Ticket{
		Issue:        fields.Issue,
		ReporterName: fields.ReporterName,
		Email:        fields.Email,
		Priority:     fields.Priority,
		Attachments:  fields.Attachments,
		Department:   fields.Department,
		NoticedAt:    fields.NoticedAt,
		Status:       protocol.TicketOpen,
		CreatedAt:    s.now().UTC(),
	}

	var err error
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		t.TicketID = s.newID()
		err = s.backend.Insert(ctx, t)
		if !errors.Is(err, ErrAlreadyExists) {
			break
		}
		s.logger.Warn("ticket id collision, regenerating", "ticket", t.TicketID, "attempt", attempt+1)
	}
	if err != nil {
		return "", fmt.Errorf("ticket: create: %w", err)
	}

	s.metrics.TicketCreated(s.backend.Name())
	s.logger.Info("ticket created",
		"ticket", t.TicketID,
		"priority", t.Priority,
		"department", t.Department,
		"backend", s.backend.Name(),
	)

	if s.publisher != nil {
		ev := Event{Type: EventTicketCreated, TicketID: t.TicketID, Ticket: t, At: t.CreatedAt}
		if err := s.publisher.Publish(ctx, ev); err != nil {
			// The ticket is already durable.
			s.logger.Warn("ticket event publish failed", "ticket", t.TicketID, "error", err)
		}
	}
	return t.TicketID, nil
}

// Get returns the full ticket, or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (protocol.Ticket, error) {
	t, err := s.backend.Get(ctx, id)
	if err != nil {
		return protocol.Ticket{}, wrapLookup("get", err)
	}
	return t, nil
}

// Status returns the status and issue of a ticket, or ErrNotFound.
func (s *Service) Status(ctx context.Context, id string) (StatusResult, error) {
	t, err := s.backend.Get(ctx, id)
	if err != nil {
		return StatusResult{}, wrapLookup("status", err)
	}
	return StatusResult{TicketID: t.TicketID, Status: t.Status, Issue: t.Issue}, nil
}

// AttachmentName returns the attachment file name of a ticket, or ErrNotFound.
func (s *Service) AttachmentName(ctx context.Context, id string) (AttachmentResult, error) {
	t, err := s.backend.Get(ctx, id)
	if err != nil {
		return AttachmentResult{}, wrapLookup("attachment", err)
	}
	return AttachmentResult{TicketID: t.TicketID, FileName: t.Attachments}, nil
}

// List returns a snapshot of every ticket. An empty store yields an empty,
// non-nil slice.
func (s *Service) List(ctx context.Context) ([]protocol.Ticket, error) {
	tickets, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ticket: list: %w", err)
	}
	if tickets == nil {
		tickets = []protocol.Ticket{}
	}
	return tickets, nil
}

// Close closes the backend.
func (s *Service) Close() error {
	return s.backend.Close()
}

func wrapLookup(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("ticket: %s: %w", op, err)
}
