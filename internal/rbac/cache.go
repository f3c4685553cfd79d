package rbac

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Cache memoizes resolved capability sets per user. It is never the source of
// truth: a miss simply routes the resolver back to the store. Entries are
// published whole; a Get never observes a partially built set.
//
// Visibility contract: once InvalidateUser or InvalidateAll returns, every
// subsequent Get misses. A Get concurrent with an in-flight invalidation may
// still return the just-invalidated entry; that one-operation staleness
// window is accepted.
type Cache interface {
	Get(ctx context.Context, userID uuid.UUID) (CapabilitySet, bool, error)
	Put(ctx context.Context, userID uuid.UUID, set CapabilitySet) error
	// InvalidateUser drops one entry. Called after a direct role
	// (re)assignment for that user.
	InvalidateUser(ctx context.Context, userID uuid.UUID) error
	// InvalidateAll clears everything. Called after any role or permission
	// content/status change, because the affected-user blast radius is not
	// tracked.
	InvalidateAll(ctx context.Context) error
}

type memoryEntry struct {
	set      CapabilitySet
	storedAt time.Time
}

// MemoryCache is the process-local cache backend. Multi-instance deployments
// either accept per-instance staleness or configure the redis backend.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]memoryEntry
	ttl     time.Duration
	clock   func() time.Time
}

// NewMemoryCache constructs a memory cache. A zero ttl disables the
// safety-net expiry and entries live until invalidated.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[uuid.UUID]memoryEntry),
		ttl:     ttl,
		clock:   time.Now,
	}
}

// Get returns the cached set for the user, if present and unexpired.
func (c *MemoryCache) Get(_ context.Context, userID uuid.UUID) (CapabilitySet, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && c.clock().Sub(entry.storedAt) > c.ttl {
		return nil, false, nil
	}
	return entry.set.Clone(), true, nil
}

// Put stores a copy of the set so later mutations by the caller cannot leak
// into cached state.
func (c *MemoryCache) Put(_ context.Context, userID uuid.UUID, set CapabilitySet) error {
	entry := memoryEntry{set: set.Clone(), storedAt: c.clock()}
	c.mu.Lock()
	c.entries[userID] = entry
	c.mu.Unlock()
	return nil
}

// InvalidateUser removes a single user's entry.
func (c *MemoryCache) InvalidateUser(_ context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
	return nil
}

// InvalidateAll clears every entry.
func (c *MemoryCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[uuid.UUID]memoryEntry)
	c.mu.Unlock()
	return nil
}

// Len reports the number of live entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
