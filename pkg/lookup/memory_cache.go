package lookup

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// maxMemoryTTL caps how long the in-process cache holds any entry
const maxMemoryTTL = 24 * time.Hour

type memoryEntry struct {
	person    *Person
	expiresAt time.Time
}

// MemoryCache is a size-bounded in-process ProfileCache. Each entry keeps
// its own expiry on top of the LRU's global cap.
type MemoryCache struct {
	entries *lru.LRU[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryCache creates a cache holding at most size profiles
func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = 1000
	}
	return &MemoryCache{
		entries: lru.NewLRU[string, memoryEntry](size, nil, maxMemoryTTL),
		now:     time.Now,
	}
}

// Name implements ProfileCache
func (c *MemoryCache) Name() string { return "memory" }

// Get implements ProfileCache. Expired entries read as misses and stay in
// place until a Set replaces them or the LRU evicts them.
func (c *MemoryCache) Get(_ context.Context, key string) (*Person, bool, error) {
	entry, ok := c.entries.Get(key)
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.person, true, nil
}

// Set implements ProfileCache
func (c *MemoryCache) Set(_ context.Context, key string, person *Person, ttl time.Duration) error {
	if ttl > maxMemoryTTL {
		ttl = maxMemoryTTL
	}
	c.entries.Add(key, memoryEntry{person: person, expiresAt: c.now().Add(ttl)})
	return nil
}

// Delete implements ProfileCache
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}
