// Package metadatacache holds the per-file MetadataEntry table (C3): the
// authoritative in-process record of what has already been loaded for each
// path, keyed so the loader orchestrator can skip redundant extraction.
package metadatacache

import (
	"sync"
	"time"

	"github.com/conneroisu/metaforge/internal/errors"
	"github.com/conneroisu/metaforge/internal/types"
)

// ChangeEvent is broadcast to watchers whenever an entry is set. Clear and
// InvalidateByPaths remove entries without broadcasting.
type ChangeEvent struct {
	Path      types.Path
	Entry     *types.MetadataEntry
	Timestamp time.Time
}

// Cache is a concurrency-safe map of path to MetadataEntry, enforcing the
// no-downgrade invariant on every Set.
type Cache struct {
	mu       sync.RWMutex
	entries  map[types.Path]*types.MetadataEntry
	watchers map[chan ChangeEvent]struct{}
}

// New creates an empty metadata cache.
func New() *Cache {
	return &Cache{
		entries:  make(map[types.Path]*types.MetadataEntry),
		watchers: make(map[chan ChangeEvent]struct{}),
	}
}

// GetEntry returns the entry for path, if present.
func (c *Cache) GetEntry(path types.Path) (*types.MetadataEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	return e, ok
}

// GetEntriesBatch returns a snapshot consistent at call time, taking the
// lock exactly once regardless of how many paths are requested.
func (c *Cache) GetEntriesBatch(paths []types.Path) map[types.Path]*types.MetadataEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[types.Path]*types.MetadataEntry, len(paths))
	for _, p := range paths {
		if e, ok := c.entries[p]; ok {
			result[p] = e
		}
	}
	return result
}

// Set stores data for path with the given isExtended flag. If the existing
// entry is extended and isExtended is false, Set is a no-op that returns an
// error wrapping ErrInvariantViolation.
func (c *Cache) Set(path types.Path, data types.MetadataValues, isExtended bool) error {
	return c.set(path, data, isExtended, false)
}

// SetAllowDowngrade is the only way to shrink is_extended from true to
// false; the orchestrator never calls it.
func (c *Cache) SetAllowDowngrade(path types.Path, data types.MetadataValues, isExtended bool) error {
	return c.set(path, data, isExtended, true)
}

func (c *Cache) set(path types.Path, data types.MetadataValues, isExtended, allowDowngrade bool) error {
	c.mu.Lock()
	if existing, ok := c.entries[path]; ok && existing.IsExtended && !isExtended && !allowDowngrade {
		c.mu.Unlock()
		return errors.WrapInternal(errors.ErrInvariantViolation, errors.ErrCodeInvariantViolation,
			"refusing to downgrade extended metadata entry for "+string(path))
	}

	entry := &types.MetadataEntry{Path: path, Values: data, IsExtended: isExtended, LoadedAt: time.Now()}
	c.entries[path] = entry
	c.mu.Unlock()

	c.notify(ChangeEvent{Path: path, Entry: entry, Timestamp: time.Now()})
	return nil
}

// Iterate calls fn for every entry currently in the cache. fn must not call
// back into the Cache.
func (c *Cache) Iterate(fn func(path types.Path, entry *types.MetadataEntry)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for p, e := range c.entries {
		fn(p, e)
	}
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[types.Path]*types.MetadataEntry)
	c.mu.Unlock()
}

// InvalidateByPaths removes the cache entries for exactly the given paths
// and returns how many were present. Used by the watch command to drop
// stale entries for files that changed on disk.
func (c *Cache) InvalidateByPaths(paths []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, p := range paths {
		if _, ok := c.entries[types.Path(p)]; ok {
			delete(c.entries, types.Path(p))
			removed++
		}
	}
	return removed
}

// Count returns the number of cached entries.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Watch returns a channel that receives every subsequent ChangeEvent. The
// channel is buffered; slow consumers drop events rather than blocking Set.
func (c *Cache) Watch() <-chan ChangeEvent {
	ch := make(chan ChangeEvent, 100)
	c.mu.Lock()
	c.watchers[ch] = struct{}{}
	c.mu.Unlock()
	return ch
}

// Unwatch stops delivery to ch and closes it.
func (c *Cache) Unwatch(ch <-chan ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for w := range c.watchers {
		if w == ch {
			delete(c.watchers, w)
			close(w)
			return
		}
	}
}

func (c *Cache) notify(event ChangeEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for ch := range c.watchers {
		select {
		case ch <- event:
		default:
		}
	}
}
