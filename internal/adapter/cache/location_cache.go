// Package cache holds the in-memory coordinate cache shared by shop and
// inventory lookups.
package cache

import (
	"sync"

	"github.com/rl1809/slabby/internal/core/domain"
	"github.com/rl1809/slabby/internal/port"
)

// LocationCache maps one coordinate to one cached lookup result. Entries live
// until they are deleted or overwritten.
type LocationCache struct {
	mu      sync.RWMutex
	entries map[domain.Location]*domain.Shop
}

func NewLocationCache() *LocationCache {
	return &LocationCache{entries: make(map[domain.Location]*domain.Shop)}
}

func (c *LocationCache) Get(loc domain.Location) port.Lookup {
	c.mu.RLock()
	defer c.mu.RUnlock()

	shop, ok := c.entries[loc]
	switch {
	case !ok:
		return port.Lookup{Kind: port.LookupUnknown}
	case shop == nil:
		return port.Lookup{Kind: port.LookupTombstone}
	default:
		return port.Lookup{Kind: port.LookupHit, Shop: shop}
	}
}

func (c *LocationCache) Store(loc domain.Location, shop *domain.Shop) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[loc] = shop
}

func (c *LocationCache) Delete(loc domain.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, loc)
}

func (c *LocationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *LocationCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

var _ port.LocationCache = (*LocationCache)(nil)
