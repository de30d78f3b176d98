package ticket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/guardianbot/guardian/pkg/protocol"
)

// sqliteTimeLayout is fixed-width so that created_at sorts lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteColumns = `ticket_id, issue, reporter_name, email, priority, attachments, department, noticed_at, status, created_at`

// SQLiteStore implements Backend using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The parent directory is created if missing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ticket store: mkdir: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}
	// Single writer connection: inserts are serialized by the pool.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
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
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_created_at ON tickets(created_at);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Insert(ctx context.Context, t protocol.Ticket) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (`+sqliteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticket_id) DO NOTHING
	`, t.TicketID, t.Issue, t.ReporterName, t.Email, t.Priority, t.Attachments,
		t.Department, t.NoticedAt, string(t.Status), t.CreatedAt.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return fmt.Errorf("ticket store: insert: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (protocol.Ticket, error) {
	t, err := scanTicket(s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM tickets WHERE ticket_id = ?`, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return protocol.Ticket{}, ErrNotFound
	case err != nil:
		return protocol.Ticket{}, fmt.Errorf("ticket store: get: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]protocol.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM tickets ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	defer rows.Close()

	tickets := []protocol.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: list scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (protocol.Ticket, error) {
	var t protocol.Ticket
	var status, createdAt string

	err := row.Scan(&t.TicketID, &t.Issue, &t.ReporterName, &t.Email, &t.Priority,
		&t.Attachments, &t.Department, &t.NoticedAt, &status, &createdAt)
	if err != nil {
		return protocol.Ticket{}, err
	}

	t.Status = protocol.TicketStatus(status)
	if t.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return protocol.Ticket{}, fmt.Errorf("ticket %s: created_at: %w", t.TicketID, err)
	}
	return t, nil
}
