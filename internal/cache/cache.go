// Package cache implements the two-tier (in-memory LRU + on-disk) artifact
// cache for byte values under string keys. Keys follow the file_, metadata_,
// hash_ and dir_ prefixes that InvalidateByPattern matches on.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/metaforge/internal/errors"
	"github.com/conneroisu/metaforge/internal/logging"
)

const diskExpiry = 24 * time.Hour

// entry is one in-memory LRU node.
type entry struct {
	key        string
	value      []byte
	createdAt  time.Time
	accessedAt time.Time
	size       int64
	prev, next *entry
}

// Cache is the composite LRU-plus-disk artifact cache (C2). It is safe for
// concurrent use by the loader's worker pool.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]*entry
	maxEntries  int
	currentSize int64

	head, tail *entry

	diskDir       string
	diskThreshold int64

	hits, misses, sets, deletes, evictions int64

	logger logging.Logger
}

// New creates a Cache. diskDir is created lazily on first disk write.
func New(maxEntries int, diskDir string, diskThresholdBytes int64, logger logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	c := &Cache{
		entries:       make(map[string]*entry),
		maxEntries:    maxEntries,
		diskDir:       diskDir,
		diskThreshold: diskThresholdBytes,
		logger:        logger,
	}
	c.head = &entry{}
	c.tail = &entry{}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

func fingerprint(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Get reads key from memory first, falling back to disk and promoting a
// disk hit back into memory, matching the spec's composite policy.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.moveToFront(e)
		e.accessedAt = time.Now()
		atomic.AddInt64(&c.hits, 1)
		value := e.value
		c.mu.Unlock()
		return value, true
	}
	c.mu.Unlock()

	value, ok := c.readDisk(key)
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	c.mu.Lock()
	c.insertFront(key, value)
	atomic.AddInt64(&c.hits, 1)
	c.mu.Unlock()
	return value, true
}

// Set writes key into memory always, and additionally to disk when value
// exceeds the configured size threshold.
func (c *Cache) Set(key string, value []byte) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.currentSize += int64(len(value)) - e.size
		e.value = value
		e.size = int64(len(value))
		e.accessedAt = time.Now()
		c.moveToFront(e)
	} else {
		c.evictIfNeeded()
		c.insertFront(key, value)
	}
	atomic.AddInt64(&c.sets, 1)
	c.mu.Unlock()

	if int64(len(value)) > c.diskThreshold {
		if err := c.writeDisk(key, value); err != nil {
			c.logger.Warn(context.Background(), err, "cache disk write failed, continuing with memory tier only", "key", key)
		}
	}
}

// Clear empties both tiers and resets statistics.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.head.next = c.tail
	c.tail.prev = c.head
	c.currentSize = 0
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.sets, 0)
	atomic.StoreInt64(&c.deletes, 0)
	atomic.StoreInt64(&c.evictions, 0)
	c.mu.Unlock()

	if c.diskDir != "" {
		_ = os.RemoveAll(c.diskDir)
	}
}

// Stats is the composite cache's {size, maxsize, hits, misses, hit_rate,
// total_requests} contract.
type Stats struct {
	Size          int
	MaxSize       int
	Hits          int64
	Misses        int64
	HitRate       float64
	TotalRequests int64
	Evictions     int64
}

// GetStats returns a snapshot of cache statistics.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()

	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := hits + misses
	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Size:          size,
		MaxSize:       c.maxEntries,
		Hits:          hits,
		Misses:        misses,
		HitRate:       rate,
		TotalRequests: total,
		Evictions:     atomic.LoadInt64(&c.evictions),
	}
}

// InvalidateByPattern implements smart invalidation (§4.2): given a list of
// changed paths, evict any in-memory key containing one of the derived
// patterns as a substring. Deliberately coarse: tuned for a cheap O(N) pass
// over the bounded LRU rather than precise pattern matching.
func (c *Cache) InvalidateByPattern(changedPaths []string) int {
	patterns := make([]string, 0, len(changedPaths)*4)
	for _, p := range changedPaths {
		patterns = append(patterns,
			"file_"+p,
			"metadata_"+p,
			"hash_"+p,
			"dir_"+filepath.Dir(p),
		)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int
	for key, e := range c.entries {
		for _, pattern := range patterns {
			if strings.Contains(key, pattern) {
				c.removeFromList(e)
				delete(c.entries, key)
				c.currentSize -= e.size
				removed++
				atomic.AddInt64(&c.deletes, 1)
				break
			}
		}
	}
	return removed
}

// CompactLRU implements the self-optimization rule: if the memory hit rate
// drops below 50% while size exceeds 100 entries, rebuild the LRU with its
// capacity set to half the current size, keeping the most-recently-used half.
func (c *Cache) CompactLRU() {
	stats := c.GetStats()
	if stats.Size <= 100 || stats.HitRate >= 0.5 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	keep := stats.Size / 2
	kept := make([]*entry, 0, keep)
	for e := c.head.next; e != c.tail && len(kept) < keep; e = e.next {
		kept = append(kept, e)
	}

	newEntries := make(map[string]*entry, len(kept))
	c.head.next = c.tail
	c.tail.prev = c.head
	c.currentSize = 0
	for _, e := range kept {
		e.prev, e.next = nil, nil
		c.insertFrontEntry(e)
		newEntries[e.key] = e
		c.currentSize += e.size
	}
	c.entries = newEntries
	c.maxEntries = keep
}

func (c *Cache) insertFront(key string, value []byte) {
	e := &entry{key: key, value: value, createdAt: time.Now(), accessedAt: time.Now(), size: int64(len(value))}
	c.insertFrontEntry(e)
	c.entries[key] = e
	c.currentSize += e.size
}

func (c *Cache) insertFrontEntry(e *entry) {
	e.next = c.head.next
	e.prev = c.head
	c.head.next.prev = e
	c.head.next = e
}

func (c *Cache) moveToFront(e *entry) {
	c.removeFromList(e)
	c.insertFrontEntry(e)
}

func (c *Cache) removeFromList(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (c *Cache) evictIfNeeded() {
	for len(c.entries) >= c.maxEntries && c.maxEntries > 0 {
		lru := c.tail.prev
		if lru == c.head {
			return
		}
		c.removeFromList(lru)
		delete(c.entries, lru.key)
		c.currentSize -= lru.size
		atomic.AddInt64(&c.evictions, 1)
	}
}

func (c *Cache) diskPath(key string) string {
	return filepath.Join(c.diskDir, fingerprint(key)+".cache")
}

func (c *Cache) readDisk(key string) ([]byte, bool) {
	if c.diskDir == "" {
		return nil, false
	}
	path := c.diskPath(key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) >= diskExpiry {
		_ = os.Remove(path)
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// writeDisk writes via write-to-temp-then-rename so concurrent readers
// never observe a partially written file.
func (c *Cache) writeDisk(key string, value []byte) error {
	if c.diskDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.diskDir, 0755); err != nil {
		return errors.WrapCache(err, errors.ErrCodeCacheIO, "create cache directory")
	}

	path := c.diskPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0644); err != nil {
		return errors.WrapCache(err, errors.ErrCodeCacheIO, "write cache temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.WrapCache(err, errors.ErrCodeCacheIO, "rename cache temp file")
	}
	return nil
}
