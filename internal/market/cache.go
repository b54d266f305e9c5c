// Package market keeps the session's market cache in sync with the Gamma
// API: incremental pagination, visible-row price refresh and per-category
// fetches.
package market

import (
	"sync"

	"github.com/spectra/engine/internal/store"
)

// Cache is the shared id -> record map. Records keep the order in which they
// were first seen so pagination stays stable as the cache grows.
type Cache struct {
	mu      sync.RWMutex
	records map[string]store.Market
	order   []string
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{records: make(map[string]store.Market)}
}

// Merge adds records whose id is not cached yet. Existing records are left
// untouched. It returns the number of records added.
func (c *Cache) Merge(records []store.Market) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		if _, ok := c.records[r.ID]; ok {
			continue
		}
		c.records[r.ID] = r
		c.order = append(c.order, r.ID)
		added++
	}
	return added
}

// ApplyRefresh overwrites records that are already cached. Unknown ids are
// ignored. It returns the number of records updated.
func (c *Cache) ApplyRefresh(records []store.Market) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	updated := 0
	for _, r := range records {
		if _, ok := c.records[r.ID]; !ok {
			continue
		}
		c.records[r.ID] = r
		updated++
	}
	return updated
}

// Get returns the record for id.
func (c *Cache) Get(id string) (store.Market, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.records[id]
	return m, ok
}

// Lookup returns the cached records among ids, in ids order.
func (c *Cache) Lookup(ids []string) []store.Market {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]store.Market, 0, len(ids))
	for _, id := range ids {
		if m, ok := c.records[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// All returns every record in first-seen order.
func (c *Cache) All() []store.Market {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]store.Market, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.records[id])
	}
	return out
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// SeenSet records the ids already merged this session.
type SeenSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewSeenSet creates an empty SeenSet.
func NewSeenSet() *SeenSet {
	return &SeenSet{ids: make(map[string]struct{})}
}

// FilterNew returns the records not seen before and marks them seen.
// Duplicates within records are dropped too.
func (s *SeenSet) FilterNew(records []store.Market) []store.Market {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.Market, 0, len(records))
	for _, r := range records {
		if _, ok := s.ids[r.ID]; ok {
			continue
		}
		s.ids[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
