package freezefs

import (
	"context"
	"os"
	"path"
	"sort"
	"syscall"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/cesargomez89/freezetag/internal/ftag"
)

// dirNode is a synthetic virtual directory: mode 0755, nlink 2, owned by
// the mounting user, per spec 4.E getattr.
type dirNode struct {
	fs   *FreezeFS
	path string
}

func (d *dirNode) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0o755
	a.Nlink = 2
	a.Uid = d.fs.uid
	a.Gid = d.fs.gid
	now := time.Now()
	a.Mtime, a.Atime, a.Ctime = now, now, now
	return nil
}

func (d *dirNode) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	d.fs.idxMu.RLock()
	defer d.fs.idxMu.RUnlock()

	node := d.fs.idx.lookup(path.Join(d.path, name))
	if node == nil {
		return nil, syscall.ENOENT
	}
	childPath := path.Join(d.path, name)

	if node.Item == nil {
		return &dirNode{fs: d.fs, path: childPath}, nil
	}
	if !node.Item.Ready() {
		return nil, syscall.ENOENT
	}
	return &fileNode{fs: d.fs, path: childPath, item: node.Item}, nil
}

func (d *dirNode) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	d.fs.idxMu.RLock()
	defer d.fs.idxMu.RUnlock()

	node := d.fs.idx.lookup(d.path)
	if node == nil {
		return nil, syscall.ENOENT
	}

	names := make([]string, 0, len(node.Children))
	for name, child := range node.Children {
		if child.Item != nil && !child.Item.Ready() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	ents := make([]fuse.Dirent, 0, len(names)+2)
	ents = append(ents, fuse.Dirent{Name: ".", Type: fuse.DT_Dir}, fuse.Dirent{Name: "..", Type: fuse.DT_Dir})
	for _, name := range names {
		child := node.Children[name]
		typ := fuse.DT_Dir
		if child.Item != nil {
			typ = fuse.DT_File
		}
		ents = append(ents, fuse.Dirent{Name: name, Type: typ})
	}
	return ents, nil
}

// fileNode is a leaf with at least one backing file and one freezetag
// entry naming it at this virtual path.
type fileNode struct {
	fs   *FreezeFS
	path string
	item *FrozenItem
}

func (fnode *fileNode) Attr(ctx context.Context, a *fuse.Attr) error {
	backing, entry, err := fnode.resolve()
	if err != nil {
		return err
	}

	info, err := os.Stat(backing)
	if err != nil {
		return syscall.ENOENT
	}

	ff, err := newFuseFile(backing, entry)
	if err != nil {
		return syscall.EIO
	}

	a.Mode = 0o644
	a.Nlink = 1
	a.Uid = fnode.fs.uid
	a.Gid = fnode.fs.gid
	a.Size = uint64(ff.Len())
	a.Mtime = info.ModTime()
	a.Atime = info.ModTime()
	a.Ctime = info.ModTime()
	return nil
}

// resolve picks any backing file (they all share the audio checksum) and
// the freezetag entry whose virtual path matches this node exactly.
func (fnode *fileNode) resolve() (string, ftag.FrozenFileEntry, error) {
	fnode.fs.idxMu.RLock()
	defer fnode.fs.idxMu.RUnlock()

	if !fnode.item.Ready() {
		return "", ftag.FrozenFileEntry{}, syscall.ENOENT
	}
	backing := fnode.item.Files[0]

	for _, ref := range fnode.item.Ftags {
		if ref.VirtualPath == fnode.path {
			return backing, ref.Entry, nil
		}
	}
	return "", ftag.FrozenFileEntry{}, syscall.ENOENT
}

func (fnode *fileNode) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	backing, entry, err := fnode.resolve()
	if err != nil {
		return nil, err
	}

	ff, err := newFuseFile(backing, entry)
	if err != nil {
		return nil, syscall.EIO
	}

	var ftagPath string
	fnode.fs.idxMu.RLock()
	for _, ref := range fnode.item.Ftags {
		if ref.VirtualPath == fnode.path {
			ftagPath = ref.FtagPath
			break
		}
	}
	fnode.fs.idxMu.RUnlock()

	if !entry.Metadata.Empty() {
		if _, err := fnode.fs.cache.Acquire(ftagPath); err != nil {
			return nil, syscall.EIO
		}
	}

	resp.Flags |= fuse.OpenKeepCache
	return &fileHandle{fs: fnode.fs, ftagPath: ftagPath, hasMetadata: !entry.Metadata.Empty(), file: ff}, nil
}

// fileHandle is the open file handle bazil.org/fuse hands back to the
// kernel; it carries the already-materialized FuseFile for this open.
type fileHandle struct {
	fs          *FreezeFS
	ftagPath    string
	hasMetadata bool
	file        *FuseFile
}

func (h *fileHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	resp.Data = h.file.ReadAt(req.Offset, int64(req.Size))
	return nil
}

func (h *fileHandle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	if h.hasMetadata {
		h.fs.cache.Release(h.ftagPath)
	}
	return nil
}
