package freezefs

import (
	"path"
	"sort"
	"strings"

	"github.com/cesargomez89/freezetag/internal/ftag"
)

// FtagRef points a FrozenItem back at the freezetag entry and virtual path
// that named it.
type FtagRef struct {
	FtagPath    string
	VirtualPath string
	Entry       ftag.FrozenFileEntry
}

// FrozenItem is the content-addressed node linking an audio checksum to
// the real files that carry it and the freezetag entries that name it.
type FrozenItem struct {
	Checksum [20]byte
	Ftags    []FtagRef
	Files    []string // real absolute paths sharing Checksum
}

// Ready reports whether this item has at least one freezetag entry and at
// least one backing file, the condition readdir and getattr require.
func (i *FrozenItem) Ready() bool {
	return i != nil && len(i.Ftags) > 0 && len(i.Files) > 0
}

// pathNode is one node of the virtual directory tree. A node with a
// non-nil Item is a leaf; otherwise its Children map describes a
// directory, possibly empty.
type pathNode struct {
	Item     *FrozenItem
	Children map[string]*pathNode
}

func newDirNode() *pathNode {
	return &pathNode{Children: make(map[string]*pathNode)}
}

// freezetagRecord is what freezetag_map stores for one active freezetag.
type freezetagRecord struct {
	VirtualRoot string
	Checksums   [][20]byte
}

type inactiveFreezetag struct {
	VirtualRoot string
	FtagPath    string
}

// index holds every lookup structure the mount needs, per spec 4.E.
// Mutations happen either during the initial scan (single-threaded, no
// lock needed) or from the serialized FUSE/watcher callback domain.
type index struct {
	root              *pathNode
	checksums         map[[20]byte]*FrozenItem
	absPaths          map[string]*FrozenItem
	freezetags        map[string]*freezetagRecord // ftag path -> record
	inactiveFreezetags []inactiveFreezetag
}

func newIndex() *index {
	return &index{
		root:       newDirNode(),
		checksums:  make(map[[20]byte]*FrozenItem),
		absPaths:   make(map[string]*FrozenItem),
		freezetags: make(map[string]*freezetagRecord),
	}
}

func splitVirtualPath(p string) []string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" || p == "." {
		return nil
	}
	return strings.Split(p, "/")
}

// lookup walks the tree and returns the node at p, or nil if absent.
func (idx *index) lookup(p string) *pathNode {
	node := idx.root
	for _, seg := range splitVirtualPath(p) {
		if node.Children == nil {
			return nil
		}
		next, ok := node.Children[seg]
		if !ok {
			return nil
		}
		node = next
	}
	return node
}

// insert creates (or fetches) the leaf node at virtualPath, creating
// intermediate directory nodes as needed.
func (idx *index) insert(virtualPath string) *pathNode {
	segs := splitVirtualPath(virtualPath)
	node := idx.root
	for i, seg := range segs {
		if node.Children == nil {
			node.Children = make(map[string]*pathNode)
		}
		next, ok := node.Children[seg]
		if !ok {
			next = &pathNode{}
			if i < len(segs)-1 {
				next.Children = make(map[string]*pathNode)
			}
			node.Children[seg] = next
		}
		node = next
	}
	return node
}

// remove drops the leaf at virtualPath if its item is no longer Ready (it
// lacks a freezetag entry or a backing file), and prunes any directory
// ancestors left childless.
func (idx *index) remove(virtualPath string) {
	segs := splitVirtualPath(virtualPath)
	idx.removeSegs(idx.root, segs)
}

func (idx *index) removeSegs(node *pathNode, segs []string) bool {
	if len(segs) == 0 {
		return node.Item == nil && len(node.Children) == 0
	}
	child, ok := node.Children[segs[0]]
	if !ok {
		return false
	}
	if len(segs) == 1 {
		if child.Item != nil && !child.Item.Ready() {
			delete(node.Children, segs[0])
		}
		return len(node.Children) == 0
	}
	if idx.removeSegs(child, segs[1:]) {
		delete(node.Children, segs[0])
	}
	return len(node.Children) == 0
}

// getOrCreateItem returns the FrozenItem for checksum, creating it if this
// is the first reference seen.
func (idx *index) getOrCreateItem(checksum [20]byte) *FrozenItem {
	item, ok := idx.checksums[checksum]
	if !ok {
		item = &FrozenItem{Checksum: checksum}
		idx.checksums[checksum] = item
	}
	return item
}

// sortedFtagPaths returns the freezetag paths in lexicographic order, the
// tie-break policy for colliding virtual roots (spec 9, open question).
func sortedFtagPaths(paths []string) []string {
	out := append([]string(nil), paths...)
	sort.Strings(out)
	return out
}
