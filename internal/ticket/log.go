package ticket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/guardianbot/guardian/pkg/protocol"
)

// LogStore keeps tickets in an append-only JSON Lines file of create
// events. State is rebuilt by replaying the file; nothing is ever
// rewritten in place.
type LogStore struct {
	path string
	mu   sync.Mutex // serializes appends
}

type logRecord struct {
	Type   string          `json:"type"`
	Ticket protocol.Ticket `json:"ticket"`
}

// NewLogStore returns a store backed by the file at path. The file and its
// directory are created on the first insert.
func NewLogStore(path string) *LogStore {
	return &LogStore{path: path}
}

func (s *LogStore) Name() string { return "log" }

func (s *LogStore) Insert(_ context.Context, t protocol.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.replay()
	if err != nil {
		return err
	}
	if _, ok := snap.byID[t.TicketID]; ok {
		return ErrAlreadyExists
	}
	// Drop a torn tail so the new record starts on its own line.
	if snap.torn {
		if err := os.Truncate(s.path, snap.size); err != nil {
			return fmt.Errorf("ticket log: truncate torn tail: %w", err)
		}
	}

	line, err := json.Marshal(logRecord{Type: EventTicketCreated, Ticket: t})
	if err != nil {
		return fmt.Errorf("ticket log: marshal: %w", err)
	}
	line = append(line, '\n')
	if snap.noEOL {
		line = append([]byte{'\n'}, line...)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ticket log: mkdir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("ticket log: open: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("ticket log: append: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("ticket log: sync: %w", err)
	}
	return f.Close()
}

func (s *LogStore) Get(_ context.Context, id string) (protocol.Ticket, error) {
	snap, err := s.replay()
	if err != nil {
		return protocol.Ticket{}, err
	}
	i, ok := snap.byID[id]
	if !ok {
		return protocol.Ticket{}, ErrNotFound
	}
	return snap.tickets[i], nil
}

func (s *LogStore) List(_ context.Context) ([]protocol.Ticket, error) {
	snap, err := s.replay()
	if err != nil {
		return nil, err
	}
	return snap.tickets, nil
}

func (s *LogStore) Close() error { return nil }

// snapshot is the collection rebuilt from the log.
type snapshot struct {
	tickets []protocol.Ticket
	byID    map[string]int
	size    int64 // bytes up to the end of the last complete line
	torn    bool  // an unparseable fragment follows size
	noEOL   bool  // the last record is whole but has no newline
}

// replay reads the log from the start. A missing file is an empty
// collection; any other open or read failure is an error.
func (s *LogStore) replay() (snapshot, error) {
	snap := snapshot{tickets: []protocol.Ticket{}, byID: map[string]int{}}

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return snapshot{}, fmt.Errorf("ticket log: open: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		line, err := r.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return snapshot{}, fmt.Errorf("ticket log: read: %w", err)
		}
		complete := len(line) > 0 && line[len(line)-1] == '\n'
		if len(line) > 0 {
			var rec logRecord
			if uerr := json.Unmarshal(line, &rec); uerr != nil {
				// A torn final write has no trailing newline; ignore it.
				if !complete {
					snap.torn = true
					break
				}
				return snapshot{}, fmt.Errorf("ticket log: line %d: %w", lineNo, uerr)
			}
			snap.size += int64(len(line))
			snap.noEOL = !complete
			if rec.Type == EventTicketCreated {
				if _, dup := snap.byID[rec.Ticket.TicketID]; !dup {
					snap.byID[rec.Ticket.TicketID] = len(snap.tickets)
					snap.tickets = append(snap.tickets, rec.Ticket)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	return snap, nil
}
