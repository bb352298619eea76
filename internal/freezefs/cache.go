package freezefs

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cesargomez89/freezetag/internal/ftag"
	"github.com/cesargomez89/freezetag/internal/logger"
)

// cacheEntry is one parsed freezetag kept warm in the cache, along with
// the bookkeeping needed to decide when it is safe to evict.
type cacheEntry struct {
	ft        *ftag.Freezetag
	openCount int
	timer     *time.Timer
	lastUsed  uint64
}

// ftagCache is the shared LRU + refcount + keep-alive timer structure
// described in spec 4.E and 9: one struct behind one mutex, so eviction
// can ask its can-purge predicate while already holding the lock that
// protects open_count.
type ftagCache struct {
	mu        sync.Mutex
	limit     int
	keepAlive time.Duration
	entries   map[string]*cacheEntry
	clock     uint64
	log       *logger.Logger
}

func newFtagCache(limit int, keepAlive time.Duration, log *logger.Logger) *ftagCache {
	return &ftagCache{
		limit:     limit,
		keepAlive: keepAlive,
		entries:   make(map[string]*cacheEntry),
		log:       log.WithComponent("ftagcache"),
	}
}

// Acquire loads (parsing if necessary) the freezetag at path, cancels any
// pending keep-alive timer, and increments its open count. Callers must
// pair every Acquire with a Release.
func (c *ftagCache) Acquire(path string) (*ftag.Freezetag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok {
		ft, err := loadFreezetag(path)
		if err != nil {
			return nil, err
		}
		entry = &cacheEntry{ft: ft}
		c.entries[path] = entry
	}

	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
	entry.openCount++
	c.clock++
	entry.lastUsed = c.clock

	// Evict only after the new reference is counted, so the entry just
	// acquired is never its own eviction victim.
	c.evictLocked()

	return entry.ft, nil
}

// Release decrements path's open count and, once it reaches zero, arms a
// keep-alive timer that purges the entry if nothing reopens it in time.
func (c *ftagCache) Release(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok {
		return
	}
	if entry.openCount > 0 {
		entry.openCount--
	}
	if entry.openCount == 0 {
		entry.timer = time.AfterFunc(c.keepAlive, func() { c.purgeIfIdle(path) })
	}
}

// Forget drops path from the cache unconditionally, used when the
// watcher reports the freezetag file itself was deleted.
func (c *ftagCache) Forget(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(path)
}

func (c *ftagCache) purgeIfIdle(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok || entry.openCount != 0 {
		return
	}
	c.dropLocked(path)
}

func (c *ftagCache) dropLocked(path string) {
	if entry, ok := c.entries[path]; ok {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(c.entries, path)
	}
}

// evictLocked removes the least-recently-used entry with no open
// references, if the cache is over its limit and such an entry exists. A
// cache with every entry still referenced is allowed to grow transiently.
func (c *ftagCache) evictLocked() {
	if len(c.entries) <= c.limit {
		return
	}

	var victim string
	var victimClock uint64
	found := false
	for path, entry := range c.entries {
		if entry.openCount != 0 {
			continue
		}
		if !found || entry.lastUsed < victimClock {
			victim = path
			victimClock = entry.lastUsed
			found = true
		}
	}
	if !found {
		c.log.Debug("ftag cache over limit with no evictable entry", "size", len(c.entries), "limit", c.limit)
		return
	}
	c.dropLocked(victim)
}

func loadFreezetag(path string) (*ftag.Freezetag, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("freezefs: read %s: %w", path, err)
	}
	ft, err := ftag.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("freezefs: decode %s: %w", path, err)
	}
	return ft, nil
}
