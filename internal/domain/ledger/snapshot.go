package ledger

import (
	"sync"
	"time"
)

// DefaultSnapshotTTL is how long a remaining-stock snapshot is served before
// GetRemaining goes back to the store.
const DefaultSnapshotTTL = 2 * time.Second

// SnapshotCache holds recent remaining-stock values for display.
// It is never consulted on the purchase path.
type SnapshotCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]snapshotEntry
}

type snapshotEntry struct {
	remaining int
	storedAt  time.Time
}

func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]snapshotEntry),
	}
}

// Get returns the snapshot for ticketID if one is fresh.
func (c *SnapshotCache) Get(ticketID string) (int, bool) {
	if c == nil {
		return 0, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[ticketID]
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return 0, false
	}
	return e.remaining, true
}

// Set stores an authoritative value read from the store.
func (c *SnapshotCache) Set(ticketID string, remaining int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ticketID] = snapshotEntry{remaining: remaining, storedAt: c.now()}
}

// Observe records a remaining value reported by a purchase. Remaining stock
// only ever decreases, so a fresh lower value wins over a late, higher one.
func (c *SnapshotCache) Observe(ticketID string, remaining int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[ticketID]; ok && now.Sub(e.storedAt) < c.ttl && e.remaining <= remaining {
		return
	}
	c.entries[ticketID] = snapshotEntry{remaining: remaining, storedAt: now}
}

// Invalidate drops the snapshot for ticketID.
func (c *SnapshotCache) Invalidate(ticketID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ticketID)
}
