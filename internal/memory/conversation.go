// Package memory holds per-session conversation history.
package memory

import (
	"sync"
	"time"

	"github.com/guardianbot/guardian/pkg/protocol"
)

// Conversation is the ordered turn history of one session.
//
// Reads and writes of the turn list are individually safe. Callers running
// a full agent turn hold Lock for its duration so that two turns on the
// same session never interleave.
type Conversation struct {
	id string

	turnMu sync.Mutex // held for one agent turn

	mu       sync.RWMutex
	turns    []protocol.Turn
	lastUsed time.Time
}

// NewConversation creates an empty conversation.
func NewConversation(id string) *Conversation {
	return &Conversation{id: id, lastUsed: time.Now()}
}

// ID returns the session id.
func (c *Conversation) ID() string { return c.id }

// Lock serializes agent turns on this conversation.
func (c *Conversation) Lock() { c.turnMu.Lock() }

// Unlock releases the turn lock.
func (c *Conversation) Unlock() { c.turnMu.Unlock() }

// Turns returns a copy of the history in order.
func (c *Conversation) Turns() []protocol.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]protocol.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Append adds turns to the end of the history.
func (c *Conversation) Append(turns ...protocol.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turns...)
}

// Replace swaps the whole history, as after compaction.
func (c *Conversation) Replace(turns []protocol.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append([]protocol.Turn(nil), turns...)
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

func (c *Conversation) touch(now time.Time) {
	c.mu.Lock()
	c.lastUsed = now
	c.mu.Unlock()
}

func (c *Conversation) idleSince() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUsed
}
