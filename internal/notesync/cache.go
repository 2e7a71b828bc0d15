package notesync

import "sync"

const (
	notesKey   = "notes"
	profileKey = "profile"
)

func noteKey(noteID string) string {
	return "note/" + noteID
}

type cacheEntry struct {
	value any
	fresh bool
}

// cache is a keyed in-memory store owned by a single Client. An entry is
// either fresh (servable without a round trip) or stale (kept for eager
// patching, refetched on next read).
type cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newCache() *cache {
	return &cache{entries: make(map[string]cacheEntry)}
}

func (c *cache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || !entry.fresh {
		return nil, false
	}
	return entry.value, true
}

// peek returns the entry even when stale.
func (c *cache) peek(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return entry.value, true
}

func (c *cache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, fresh: true}
}

// invalidate marks the entry stale without dropping its value.
func (c *cache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	entry.fresh = false
	c.entries[key] = entry
}

// patch rewrites the stored value in place, keeping the freshness flag.
func (c *cache) patch(key string, fn func(any) any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	entry.value = fn(entry.value)
	c.entries[key] = entry
}

func (c *cache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
