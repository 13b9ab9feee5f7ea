// Package cache provides the single content-addressed cache shared by
// every derived-value producer in the engine (instrumented source,
// sourcemap, code map, comment scan). One Cache instance, keyed by
// (FileKey, content hash), with explicit Invalidate/Clear verbs, is
// used by every one of those call sites instead of ad-hoc globals.
package cache

import (
	"sync"

	"github.com/covstar/luacov/internal/luacov/pathkey"
	"github.com/covstar/luacov/internal/luacov/source"
)

type key struct {
	file pathkey.Key
	hash source.Hash
}

// Cache is a process-wide, content-addressed store of arbitrary
// per-file derived values (parsed ASTs, code maps, comment scans,
// instrumented source + sourcemaps). It is safe for concurrent use:
// the engine's own data store is single-writer, but nothing
// stops multiple goroutines from warming the same parse/instrument
// cache ahead of a run.
type Cache struct {
	mu    sync.RWMutex
	items map[key]any
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{items: map[key]any{}}
}

// Get returns the cached value for (file, hash), if present and not
// invalidated since.
func (c *Cache) Get(file pathkey.Key, hash source.Hash) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key{file, hash}]
	return v, ok
}

// Put stores v under (file, hash), overwriting any prior entry.
func (c *Cache) Put(file pathkey.Key, hash source.Hash, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key{file, hash}] = v
}

// Invalidate removes every cached entry for file, regardless of hash:
// used when a file's identity itself is being forgotten (e.g. reset),
// as opposed to one stale hash simply aging out naturally because a
// new Put for the same file with a different hash never collides with it.
func (c *Cache) Invalidate(file pathkey.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if k.file == file {
			delete(c.items, k)
		}
	}
}

// Clear removes every entry in the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = map[key]any{}
}

// Len reports the number of cached entries, mostly useful in tests.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
