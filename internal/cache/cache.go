// Package cache holds the process-wide entity state cache. The connection
// manager is its only writer; everything else reads.
package cache

import (
	"sync"

	"github.com/sakumikko/lammonsaato-sub000/internal/hass"
)

// Cache maps entity ids to their last-known snapshots. The version counter
// increments on every accepted mutation so readers can memoize derived
// values against an unchanged cache.
type Cache struct {
	mu       sync.RWMutex
	entities map[hass.EntityID]hass.Snapshot
	version  uint64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entities: make(map[hass.EntityID]hass.Snapshot)}
}

// Get returns the snapshot for id, if present.
func (c *Cache) Get(id hass.EntityID) (hass.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entities[id]
	return s, ok
}

// Apply stores one pushed snapshot. A push whose last_updated is older than
// or equal to the stored one is ignored, which defends against reordering.
func (c *Cache) Apply(s hass.Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.entities[s.EntityID]; ok && !s.LastUpdated.After(prev.LastUpdated) {
		return false
	}
	c.entities[s.EntityID] = s
	c.version++
	return true
}

// ReplaceAll swaps the entire contents for a fresh get_states result. A full
// resync strictly dominates any older in-flight per-id update.
func (c *Cache) ReplaceAll(snaps []hass.Snapshot) {
	next := make(map[hass.EntityID]hass.Snapshot, len(snaps))
	for _, s := range snaps {
		next[s.EntityID] = s
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities = next
	c.version++
}

// Version returns the mutation counter.
func (c *Cache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Len returns the number of cached entities.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entities)
}
