package freezefs

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/cesargomez89/freezetag/internal/constants"
	"github.com/cesargomez89/freezetag/internal/ftag"
)

// watcher recursively tracks fs.directory and replays created/deleted/
// modified/renamed events into the index, mirroring the ctx/wg lifecycle
// the rest of this codebase uses for background loops.
type watcher struct {
	fs     *FreezeFS
	fsw    *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWatcher(fs *FreezeFS) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := filepath.WalkDir(fs.directory, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(p)
		}
		return nil
	}); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &watcher{fs: fs, fsw: fsw, ctx: ctx, cancel: cancel}

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

func (w *watcher) Close() {
	w.cancel()
	_ = w.fsw.Close()
	w.wg.Wait()

	if w.fs.statCache != nil {
		if err := w.fs.statCache.Flush(); err != nil {
			w.fs.log.Warn("failed to flush checksum cache", "error", err)
		}
	}
}

func (w *watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.fs.log.Warn("watcher error", "error", err)
		}
	}
}

func (w *watcher) handle(ev fsnotify.Event) {
	w.fs.log.WithWatchEvent(ev.Op.String()).Debug("watcher event", "path", ev.Name)

	switch {
	case ev.Op.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(ev.Name)
			return
		}
		w.onCreate(ev.Name)

	case ev.Op.Has(fsnotify.Remove):
		w.onRemove(ev.Name)

	case ev.Op.Has(fsnotify.Rename):
		// fsnotify reports a bare Rename for the old name; the new name
		// arrives as a separate Create. Treat the old name as a removal.
		w.onRemove(ev.Name)

	case ev.Op.Has(fsnotify.Write):
		// modified is handled as delete+create. Handles already open are
		// unaffected: each holds its own fully materialized contents.
		w.onRemove(ev.Name)
		w.onCreate(ev.Name)
	}
}

func (w *watcher) onCreate(absPath string) {
	if filepath.Ext(absPath) == constants.ExtFtag {
		raw, err := os.ReadFile(absPath)
		if err != nil {
			return
		}
		ft, err := ftag.Decode(raw)
		if err != nil {
			w.fs.log.WithPath(absPath).Warn("failed to decode new freezetag, skipping")
			return
		}

		w.fs.idxMu.Lock()
		indexFreezetag(w.fs.idx, absPath, ft, w.fs.log)
		w.fs.idxMu.Unlock()
		return
	}

	w.fs.idxMu.Lock()
	defer w.fs.idxMu.Unlock()
	if _, err := indexBackingFile(w.fs.idx, w.fs.statCache, absPath, w.fs.log); err != nil {
		w.fs.log.WithPath(absPath).Warn("failed to index new file, skipping", "error", err)
	}
}

func (w *watcher) onRemove(absPath string) {
	w.fs.idxMu.Lock()
	defer w.fs.idxMu.Unlock()

	if filepath.Ext(absPath) == constants.ExtFtag {
		rec, ok := w.fs.idx.freezetags[absPath]
		if !ok {
			return
		}
		delete(w.fs.idx.freezetags, absPath)
		w.fs.cache.Forget(absPath)
		w.deactivateFreezetag(absPath, rec)
		w.reactivateInactive(rec.VirtualRoot)
		return
	}

	item, ok := w.fs.idx.absPaths[absPath]
	if !ok {
		return
	}
	delete(w.fs.idx.absPaths, absPath)
	item.Files = removeString(item.Files, absPath)
}

// deactivateFreezetag removes every virtual path rec contributed and
// drops rec's checksums from items that no longer reference any
// freezetag entry for them.
func (w *watcher) deactivateFreezetag(ftagPath string, rec *freezetagRecord) {
	for _, checksum := range rec.Checksums {
		item, ok := w.fs.idx.checksums[checksum]
		if !ok {
			continue
		}
		kept := item.Ftags[:0]
		var removedPaths []string
		for _, ref := range item.Ftags {
			if ref.FtagPath == ftagPath {
				removedPaths = append(removedPaths, ref.VirtualPath)
				continue
			}
			kept = append(kept, ref)
		}
		item.Ftags = kept
		for _, vp := range removedPaths {
			w.fs.idx.remove(vp)
		}
	}
}

// reactivateInactive promotes the lexicographically first freezetag
// waiting on virtualRoot, if any, now that the active one is gone.
func (w *watcher) reactivateInactive(virtualRoot string) {
	var candidates []string
	remaining := w.fs.idx.inactiveFreezetags[:0]
	for _, inactive := range w.fs.idx.inactiveFreezetags {
		if inactive.VirtualRoot == virtualRoot {
			candidates = append(candidates, inactive.FtagPath)
			continue
		}
		remaining = append(remaining, inactive)
	}
	w.fs.idx.inactiveFreezetags = remaining
	if len(candidates) == 0 {
		return
	}

	winner := sortedFtagPaths(candidates)[0]
	raw, err := os.ReadFile(winner)
	if err != nil {
		return
	}
	ft, err := ftag.Decode(raw)
	if err != nil {
		return
	}
	indexFreezetag(w.fs.idx, winner, ft, w.fs.log)

	for _, p := range candidates[1:] {
		w.fs.idx.inactiveFreezetags = append(w.fs.idx.inactiveFreezetags, inactiveFreezetag{VirtualRoot: virtualRoot, FtagPath: p})
	}
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
