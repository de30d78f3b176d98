package ticket

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardianbot/guardian/pkg/protocol"
)

// PostgresStore implements Backend on PostgreSQL through a pgx pool.
// The primary key on ticket_id makes concurrent inserts safe.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ticket store: connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tickets (
			ticket_id     TEXT PRIMARY KEY,
			issue         TEXT NOT NULL,
			reporter_name TEXT NOT NULL,
			email         TEXT NOT NULL,
			priority      TEXT NOT NULL,
			attachments   TEXT NOT NULL DEFAULT '',
			department    TEXT NOT NULL,
			noticed_at    TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'Open',
			created_at    TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tickets_created_at ON tickets(created_at);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Insert(ctx context.Context, t protocol.Ticket) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO tickets (ticket_id, issue, reporter_name, email, priority, attachments, department, noticed_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (ticket_id) DO NOTHING
	`, t.TicketID, t.Issue, t.ReporterName, t.Email, t.Priority, t.Attachments,
		t.Department, t.NoticedAt, string(t.Status), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("ticket store: insert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (protocol.Ticket, error) {
	row := s.pool.QueryRow(ctx, `SELECT ticket_id, issue, reporter_name, email, priority, attachments, department, noticed_at, status, created_at FROM tickets WHERE ticket_id = $1`, id)
	t, err := scanPgTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return protocol.Ticket{}, ErrNotFound
		}
		return protocol.Ticket{}, fmt.Errorf("ticket store: get: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]protocol.Ticket, error) {
	rows, err := s.pool.Query(ctx, `SELECT ticket_id, issue, reporter_name, email, priority, attachments, department, noticed_at, status, created_at FROM tickets ORDER BY created_at, ticket_id`)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	defer rows.Close()

	tickets := []protocol.Ticket{}
	for rows.Next() {
		t, err := scanPgTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: list scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgTicket(row pgx.Row) (protocol.Ticket, error) {
	var t protocol.Ticket
	var status string
	err := row.Scan(&t.TicketID, &t.Issue, &t.ReporterName, &t.Email, &t.Priority,
		&t.Attachments, &t.Department, &t.NoticedAt, &status, &t.CreatedAt)
	if err != nil {
		return protocol.Ticket{}, err
	}
	t.Status = protocol.TicketStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}
