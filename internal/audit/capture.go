package audit

import (
	"context"
	"sync"

	"github.com/jonathan/shift-backfill/internal/types"
)

// Capture keeps entries in memory. It backs tests and the CLI's dry-run output.
type Capture struct {
	mu      sync.Mutex
	entries []types.AuditEntry
}

func (c *Capture) Record(_ context.Context, entry types.AuditEntry) {
	c.mu.Lock()
	c.entries = append(c.entries, entry)
	c.mu.Unlock()
}

// Entries returns a copy of everything recorded so far.
func (c *Capture) Entries() []types.AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.AuditEntry(nil), c.entries...)
}

// Actions returns the recorded actions in order.
func (c *Capture) Actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Action
	}
	return out
}

// Count returns how many entries carry action.
func (c *Capture) Count(action string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}
