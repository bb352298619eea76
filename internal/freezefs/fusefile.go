package freezefs

import (
	"fmt"
	"os"

	"github.com/cesargomez89/freezetag/internal/format"
	"github.com/cesargomez89/freezetag/internal/ftag"
)

// FuseFile is the materialized, thawed view of one backing file for the
// duration of a single open handle: the stripped audio read off disk with
// the freezetag's metadata spliced back in, ready to be served by byte
// range.
type FuseFile struct {
	data []byte
}

// newFuseFile reads backingPath, strips whatever's currently on it, and
// restores entry's frozen metadata, reusing the same strip/restore
// machinery the thaw engine uses so the two never disagree about layout.
func newFuseFile(backingPath string, entry ftag.FrozenFileEntry) (*FuseFile, error) {
	raw, err := os.ReadFile(backingPath)
	if err != nil {
		return nil, fmt.Errorf("freezefs: read %s: %w", backingPath, err)
	}

	pf, err := format.Parse(backingPath, raw)
	if err != nil {
		return nil, fmt.Errorf("freezefs: parse %s: %w", backingPath, err)
	}
	if _, err := pf.Strip(); err != nil {
		return nil, fmt.Errorf("freezefs: strip %s: %w", backingPath, err)
	}
	if err := pf.Restore(entry.Metadata); err != nil {
		return nil, fmt.Errorf("freezefs: restore %s: %w", backingPath, err)
	}

	return &FuseFile{data: pf.Bytes()}, nil
}

// Len is the full restored file's size, the value getattr reports.
func (f *FuseFile) Len() int { return len(f.data) }

// ReadAt copies up to length bytes starting at offset, the way a single
// splice-region walk would, except the splicing already happened once at
// open time.
func (f *FuseFile) ReadAt(offset, length int64) []byte {
	if offset < 0 || offset >= int64(len(f.data)) {
		return nil
	}
	end := offset + length
	if end > int64(len(f.data)) {
		end = int64(len(f.data))
	}
	return f.data[offset:end]
}
