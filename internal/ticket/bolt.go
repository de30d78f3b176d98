package ticket

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/guardianbot/guardian/pkg/protocol"
)

var ticketsBucket = []byte("tickets")

// BoltStore persists tickets to a BoltDB file, one key per ticket id.
// Bolt allows a single read-write transaction at a time, which serializes
// inserts.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) a BoltDB database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ticket store: mkdir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("ticket store: open bolt: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(ticketsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("ticket store: create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Name() string { return "bolt" }

func (b *BoltStore) Insert(_ context.Context, t protocol.Ticket) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("ticket store: marshal: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(ticketsBucket)
		if bkt.Get([]byte(t.TicketID)) != nil {
			return ErrAlreadyExists
		}
		return bkt.Put([]byte(t.TicketID), raw)
	})
}

func (b *BoltStore) Get(_ context.Context, id string) (protocol.Ticket, error) {
	var t protocol.Ticket
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(ticketsBucket).Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &t)
	})
	if err != nil {
		return protocol.Ticket{}, err
	}
	return t, nil
}

func (b *BoltStore) List(_ context.Context) ([]protocol.Ticket, error) {
	tickets := []protocol.Ticket{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(ticketsBucket).ForEach(func(k, v []byte) error {
			var t protocol.Ticket
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			tickets = append(tickets, t)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}

	// Keys are random UUIDs; restore creation order.
	slices.SortStableFunc(tickets, compareCreated)
	return tickets, nil
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}

func compareCreated(a, b protocol.Ticket) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.TicketID, b.TicketID)
}
