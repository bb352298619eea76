package engine

import (
	"io/fs"
	"path/filepath"

	"github.com/cesargomez89/freezetag/internal/constants"
)

// walkDir lists every regular file under root, relative to root with
// forward slashes, in the deterministic order filepath.WalkDir already
// provides: directory entries sorted by name, depth-first. .ftag files
// and *.ftag-tmp directories are skipped.
func walkDir(root string) ([]string, error) {
	var rel []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && filepath.Ext(d.Name()) == constants.FtagTmpSuffix {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(d.Name()) == constants.ExtFtag {
			return nil
		}

		r, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = append(rel, filepath.ToSlash(r))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}
