package engine

import (
	"os"
	"path/filepath"

	"github.com/cesargomez89/freezetag/internal/constants"
	"github.com/cesargomez89/freezetag/internal/format"
	"github.com/cesargomez89/freezetag/internal/fsutil"
	"github.com/cesargomez89/freezetag/internal/ftagerr"
	"github.com/cesargomez89/freezetag/internal/logger"
)

// ShaveResult reports what Shave stripped.
type ShaveResult struct {
	FilesStripped int
}

// Shave walks root and rewrites every recognized music file in place with
// its tags stripped, leaving non-music files untouched. The audio checksum
// of every stripped file is unchanged by this operation.
func Shave(root string, log *logger.Logger) (*ShaveResult, error) {
	log = log.WithOperation("shave").WithPath(root)

	rels, err := walkDir(root)
	if err != nil {
		return nil, ftagerr.IOFailure("walk", root, err)
	}

	stripped := 0
	for _, rel := range rels {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if format.Detect(abs) == constants.FormatGeneric {
			continue
		}

		raw, err := os.ReadFile(abs)
		if err != nil {
			return nil, ftagerr.IOFailure("read", abs, err)
		}
		pf, err := format.Parse(abs, raw)
		if err != nil {
			return nil, ftagerr.ParseFailure(abs, err)
		}
		if _, err := pf.Strip(); err != nil {
			return nil, ftagerr.ParseFailure(abs, err)
		}

		if err := fsutil.AtomicWriteFile(abs, pf.Bytes()); err != nil {
			return nil, ftagerr.IOFailure("write", abs, err)
		}
		stripped++
		log.WithPath(rel).Debug("shaved file")
	}

	log.Info("shave complete", "files_stripped", stripped)
	return &ShaveResult{FilesStripped: stripped}, nil
}
