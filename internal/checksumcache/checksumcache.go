// Package checksumcache persists the (device, inode, mtime) -> (checksum,
// metadata layout) mapping that lets a mount skip rehashing backing files
// it has already seen.
package checksumcache

import (
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/cesargomez89/freezetag/internal/constants"
	"github.com/cesargomez89/freezetag/internal/fsutil"
)

// MetadataInfo names a frozen metadata region's format and reports its
// encoded byte length, for UI purposes and for recomputing metadata_len.
type MetadataInfo struct {
	Type string
	Size uint32
}

// Entry is a cached file's audio checksum and metadata layout as of Mtime.
type Entry struct {
	Mtime        float64
	Checksum     [20]byte
	MetadataLen  uint32
	MetadataInfo []MetadataInfo
}

type key struct {
	Device uint32
	Inode  uint64
}

// Cache is a versioned, buffered-write checksum store. It is safe for
// concurrent use; writes are buffered in memory and flushed to disk every
// constants.ChecksumCacheFlushInterval mutations or on explicit Flush.
type Cache struct {
	mu      sync.Mutex
	path    string
	entries map[key]Entry
	dirty   int
}

// Load reads path if it exists, or returns an empty cache ready to write
// to path. A missing file is not an error; a version mismatch is.
func Load(path string) (*Cache, error) {
	c := &Cache{path: path, entries: make(map[key]Entry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if fsutil.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("checksumcache: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return c, nil
	}

	entries, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("checksumcache: decode %s: %w", path, err)
	}
	c.entries = entries
	return c, nil
}

// StatKey derives the cache key for a file from its os.FileInfo, as
// reported by the platform's underlying syscall.Stat_t.
func StatKey(info os.FileInfo) (device uint32, inode uint64, mtime float64, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, 0, false
	}
	return uint32(stat.Dev), stat.Ino, float64(info.ModTime().UnixNano()) / 1e9, true
}

// Lookup returns the cached entry for (device, inode) if present and its
// stored mtime matches exactly; an mtime mismatch is treated as a miss.
func (c *Cache) Lookup(device uint32, inode uint64, mtime float64) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key{Device: device, Inode: inode}]
	if !ok || e.Mtime != mtime {
		return Entry{}, false
	}
	return e, true
}

// Store records or replaces the entry for (device, inode), flushing to
// disk once the buffered mutation count reaches the flush interval.
func (c *Cache) Store(device uint32, inode uint64, entry Entry) error {
	c.mu.Lock()
	c.entries[key{Device: device, Inode: inode}] = entry
	c.dirty++
	needsFlush := c.dirty >= constants.ChecksumCacheFlushInterval
	c.mu.Unlock()

	if needsFlush {
		return c.Flush()
	}
	return nil
}

// Flush writes all buffered entries to disk atomically.
func (c *Cache) Flush() error {
	c.mu.Lock()
	data := encode(c.entries)
	c.dirty = 0
	c.mu.Unlock()

	if err := fsutil.AtomicWriteFile(c.path, data); err != nil {
		return fmt.Errorf("checksumcache: flush %s: %w", c.path, err)
	}
	return nil
}
