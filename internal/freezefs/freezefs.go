// Package freezefs implements the read-only FUSE mount that presents a
// frozen music library's thawed view without ever rewriting a file on
// disk: when a file is opened it splices the freezetag's metadata back into
// the stripped backing file once and serves every read of that handle from
// the result, and it keeps its content-addressed indices in sync with a
// directory watcher.
package freezefs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/cesargomez89/freezetag/internal/checksumcache"
	"github.com/cesargomez89/freezetag/internal/constants"
	"github.com/cesargomez89/freezetag/internal/format"
	"github.com/cesargomez89/freezetag/internal/ftag"
	"github.com/cesargomez89/freezetag/internal/logger"
)

// Options configures a mount.
type Options struct {
	CacheLimit int
	KeepAlive  time.Duration

	// CachePath is the checksum cache file (spec 4.C/6:
	// "<user-cache-dir>/freezetag/freezefs.db"). Empty disables the cache:
	// every backing file is rehashed on every scan.
	CachePath string
}

// FreezeFS is the mounted filesystem's root: the directory it mirrors,
// its indices, and the shared freezetag cache.
type FreezeFS struct {
	directory string
	log       *logger.Logger

	idxMu sync.RWMutex
	idx   *index

	cache *ftagCache

	// statCache is the on-disk (device, inode, mtime) -> checksum cache
	// consulted for every backing file at scan time and for each file the
	// watcher sees created afterwards, per spec 4.C. Nil when
	// Options.CachePath is empty.
	statCache *checksumcache.Cache

	uid uint32
	gid uint32

	watcher *watcher
}

// New scans directory and builds a FreezeFS ready to serve, without
// mounting it yet.
func New(directory string, opts Options, log *logger.Logger) (*FreezeFS, error) {
	if opts.CacheLimit <= 0 {
		opts.CacheLimit = constants.FreezetagCacheLimit
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = constants.FreezetagKeepAliveTime
	}

	abs, err := filepath.Abs(directory)
	if err != nil {
		return nil, fmt.Errorf("freezefs: resolve %s: %w", directory, err)
	}

	fs := &FreezeFS{
		directory: abs,
		log:       log.WithComponent("freezefs").WithPath(abs),
		cache:     newFtagCache(opts.CacheLimit, opts.KeepAlive, log),
		uid:       uint32(os.Getuid()),
		gid:       uint32(os.Getgid()),
	}

	if opts.CachePath != "" {
		statCache, err := checksumcache.Load(opts.CachePath)
		if err != nil {
			return nil, fmt.Errorf("freezefs: load checksum cache: %w", err)
		}
		fs.statCache = statCache
	}

	idx, err := scan(abs, fs.statCache, fs.log)
	if err != nil {
		return nil, err
	}
	fs.idx = idx

	if fs.statCache != nil {
		if err := fs.statCache.Flush(); err != nil {
			fs.log.Warn("failed to flush checksum cache", "error", err)
		}
	}

	return fs, nil
}

// Mount mounts the filesystem at mountpoint, starts the directory
// watcher, and serves FUSE requests until ctx is cancelled or an
// unrecoverable mount error occurs.
func (f *FreezeFS) Mount(ctx context.Context, mountpoint string) error {
	conn, err := fuse.Mount(
		mountpoint,
		fuse.ReadOnly(),
		fuse.FSName("freezetag"),
		fuse.Subtype("freezefs"),
	)
	if err != nil {
		return fmt.Errorf("freezefs: mount %s: %w", mountpoint, err)
	}
	defer conn.Close()

	w, err := newWatcher(f)
	if err != nil {
		return fmt.Errorf("freezefs: start watcher: %w", err)
	}
	f.watcher = w
	defer w.Close()

	serveErr := make(chan error, 1)
	go func() { serveErr <- fusefs.Serve(conn, f) }()

	select {
	case <-ctx.Done():
		_ = fuse.Unmount(mountpoint)
		<-serveErr
		return nil
	case err := <-serveErr:
		return err
	}
}

// Root implements fusefs.FS.
func (f *FreezeFS) Root() (fusefs.Node, error) {
	return &dirNode{fs: f, path: ""}, nil
}

// scan walks directory once, indexing every freezetag and every backing
// file beneath it. It runs before FUSE starts, so it needs no locking.
// cache may be nil, in which case every backing file is rehashed.
func scan(directory string, cache *checksumcache.Cache, log *logger.Logger) (*index, error) {
	idx := newIndex()

	var ftagPaths []string
	var filePaths []string

	err := filepath.WalkDir(directory, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(p) == constants.ExtFtag {
			ftagPaths = append(ftagPaths, p)
		} else {
			filePaths = append(filePaths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("freezefs: scan %s: %w", directory, err)
	}

	for _, ftagPath := range sortedFtagPaths(ftagPaths) {
		raw, err := os.ReadFile(ftagPath)
		if err != nil {
			log.WithPath(ftagPath).Warn("failed to read freezetag, skipping", "error", err)
			continue
		}
		ft, err := ftag.Decode(raw)
		if err != nil {
			log.WithPath(ftagPath).Warn("failed to decode freezetag, skipping", "error", err)
			continue
		}
		indexFreezetag(idx, ftagPath, ft, log)
	}

	for _, filePath := range filePaths {
		if _, err := indexBackingFile(idx, cache, filePath, log); err != nil {
			log.WithPath(filePath).Warn("failed to index file, skipping", "error", err)
		}
	}

	return idx, nil
}

// indexBackingFile registers filePath's content-checksum item in idx,
// consulting cache first (spec 4.C: skip re-parsing and re-hashing a
// backing file whose device/inode/mtime match a stored entry) and
// storing a freshly computed checksum back into it on a miss. cache may
// be nil, disabling the lookup/store entirely.
func indexBackingFile(idx *index, cache *checksumcache.Cache, filePath string, log *logger.Logger) ([20]byte, error) {
	var device uint32
	var inode uint64
	var mtime float64
	var statOK bool

	if cache != nil {
		if info, err := os.Stat(filePath); err == nil {
			device, inode, mtime, statOK = checksumcache.StatKey(info)
			if statOK {
				if entry, hit := cache.Lookup(device, inode, mtime); hit {
					item := idx.getOrCreateItem(entry.Checksum)
					item.Files = append(item.Files, filePath)
					idx.absPaths[filePath] = item
					return entry.Checksum, nil
				}
			}
		}
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		return [20]byte{}, fmt.Errorf("read %s: %w", filePath, err)
	}
	pf, err := format.Parse(filePath, raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("parse %s: %w", filePath, err)
	}
	if _, err := pf.Strip(); err != nil {
		return [20]byte{}, fmt.Errorf("strip %s: %w", filePath, err)
	}
	checksum, err := pf.Checksum()
	if err != nil {
		return [20]byte{}, fmt.Errorf("checksum %s: %w", filePath, err)
	}

	item := idx.getOrCreateItem(checksum)
	item.Files = append(item.Files, filePath)
	idx.absPaths[filePath] = item

	if cache != nil && statOK {
		if err := cache.Store(device, inode, checksumcache.Entry{Mtime: mtime, Checksum: checksum}); err != nil {
			log.WithPath(filePath).Warn("failed to store checksum cache entry", "error", err)
		}
	}

	return checksum, nil
}

// indexFreezetag registers ft's entries under its virtual root, unless
// another freezetag already claims that root, in which case ft is parked
// as inactive (spec 9: lexicographic tie-break among colliding roots).
func indexFreezetag(idx *index, ftagPath string, ft *ftag.Freezetag, log *logger.Logger) {
	for _, rec := range idx.freezetags {
		if rec.VirtualRoot == ft.Root {
			idx.inactiveFreezetags = append(idx.inactiveFreezetags, inactiveFreezetag{VirtualRoot: ft.Root, FtagPath: ftagPath})
			log.WithPath(ftagPath).Info("virtual root already mounted, queuing as inactive", "root", ft.Root)
			return
		}
	}

	rec := &freezetagRecord{VirtualRoot: ft.Root}
	for _, entry := range ft.Files {
		virtualPath := filepath.ToSlash(filepath.Join(ft.Root, filepath.FromSlash(entry.Path)))
		item := idx.getOrCreateItem(entry.Checksum)
		item.Ftags = append(item.Ftags, FtagRef{FtagPath: ftagPath, VirtualPath: virtualPath, Entry: entry})

		node := idx.insert(virtualPath)
		node.Item = item

		rec.Checksums = append(rec.Checksums, entry.Checksum)
	}
	idx.freezetags[ftagPath] = rec
}
