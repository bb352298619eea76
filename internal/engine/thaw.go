package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cesargomez89/freezetag/internal/constants"
	"github.com/cesargomez89/freezetag/internal/format"
	"github.com/cesargomez89/freezetag/internal/fsutil"
	"github.com/cesargomez89/freezetag/internal/ftag"
	"github.com/cesargomez89/freezetag/internal/ftagerr"
	"github.com/cesargomez89/freezetag/internal/logger"
)

// ThawOptions controls a Thaw call.
type ThawOptions struct {
	// FtagPath selects a specific freezetag file; empty resolves the sole
	// .ftag directly inside root.
	FtagPath string
	// Destination is the directory the thawed tree is written under. Empty
	// means thaw in place: the source root is overwritten.
	Destination string
	// SkipChecks bypasses the safety pass entirely.
	SkipChecks bool
	// MaxVersion caps the accepted freezetag version; 0 uses
	// constants.DefaultMaxFtagVersion.
	MaxVersion uint8
}

// ThawResult reports what Thaw produced.
type ThawResult struct {
	Root        string // final directory the thawed tree lives under
	FilesWritten int
}

type thawEntry struct {
	entry ftag.FrozenFileEntry
	done  bool
}

// Thaw resolves a freezetag, verifies the source tree against it, and
// restores every frozen file into destination (or in place if destination
// is empty), using a sibling temp directory for an atomic swap.
func Thaw(root string, opts ThawOptions, log *logger.Logger) (*ThawResult, error) {
	log = log.WithOperation("thaw").WithPath(root)

	ftagPath, err := FindFtag(root, opts.FtagPath)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(ftagPath)
	if err != nil {
		return nil, ftagerr.IOFailure("read", ftagPath, err)
	}
	ft, err := ftag.Decode(raw)
	if err != nil {
		if ftag.ErrVersionTooNew(err) {
			return nil, fmt.Errorf("%w: %s", ftagerr.ErrVersionTooNew, ftagPath)
		}
		return nil, ftagerr.ParseFailure(ftagPath, err)
	}

	maxVersion := opts.MaxVersion
	if maxVersion == 0 {
		maxVersion = constants.DefaultMaxFtagVersion
	}
	if ft.Version > maxVersion {
		return nil, fmt.Errorf("%w: %s declares version %d", ftagerr.ErrVersionTooNew, ftagPath, ft.Version)
	}

	groups := make(map[[20]byte][]*thawEntry, len(ft.Files))
	for _, e := range ft.Files {
		te := &thawEntry{entry: e}
		groups[e.Checksum] = append(groups[e.Checksum], te)
	}

	inPlace := opts.Destination == "" || filepath.Clean(opts.Destination) == filepath.Clean(root)
	destRoot := opts.Destination
	if destRoot == "" {
		destRoot = root
	}

	sourceForChecksum, err := safetyPass(root, groups, opts.SkipChecks, log)
	if err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(ftagPath), constants.ExtFtag)
	tmpDir := filepath.Join(root, stem+constants.FtagTmpSuffix)
	if err := fsutil.EnsureDir(tmpDir); err != nil {
		return nil, ftagerr.IOFailure("mkdir", tmpDir, err)
	}

	written, err := applyPass(root, tmpDir, groups, sourceForChecksum, inPlace)
	if err != nil {
		return nil, err
	}

	finalRoot, err := commitPass(root, tmpDir, destRoot, ft, inPlace)
	if err != nil {
		return nil, err
	}

	log.Info("thaw complete", "files_written", written, "root", finalRoot)
	return &ThawResult{Root: finalRoot, FilesWritten: written}, nil
}

// safetyPass walks the source tree, strips and checksums every recognized
// file, and verifies that every music entry in groups has a match on disk.
// It returns the relative path of a representative source file for each
// checksum it saw, for the apply pass to read from. With skip set the walk
// still runs to build that map, but the path-mismatch and missing-music
// checks are not made.
func safetyPass(root string, groups map[[20]byte][]*thawEntry, skip bool, log *logger.Logger) (map[[20]byte]string, error) {
	sourceForChecksum := make(map[[20]byte]string)

	rels, err := walkDir(root)
	if err != nil {
		return nil, ftagerr.IOFailure("walk", root, err)
	}

	var recognizedDirs []string
	for _, rel := range rels {
		abs := filepath.Join(root, filepath.FromSlash(rel))
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
		checksum, err := pf.Checksum()
		if err != nil {
			return nil, ftagerr.ParseFailure(abs, err)
		}

		if _, ok := groups[checksum]; !ok {
			log.WithPath(rel).Debug("unrecognized file, skipping")
			continue
		}
		if _, exists := sourceForChecksum[checksum]; !exists {
			sourceForChecksum[checksum] = rel
		}
		recognizedDirs = append(recognizedDirs, filepath.Dir(filepath.ToSlash(rel)))
	}

	if skip {
		return sourceForChecksum, nil
	}

	if common := commonSlashPrefix(recognizedDirs); common != "." && common != "" {
		return nil, fmt.Errorf("%w: recognized files live under %q, expected %q", ftagerr.ErrPathMismatch, common, root)
	}

	for checksum, entries := range groups {
		musicEntry := false
		for _, te := range entries {
			if te.entry.Format != constants.FormatGeneric {
				musicEntry = true
				break
			}
		}
		if musicEntry {
			if _, ok := sourceForChecksum[checksum]; !ok {
				return nil, fmt.Errorf("%w: no source file matches checksum for %s", ftagerr.ErrMissingMusic, entries[0].entry.Path)
			}
		}
	}

	return sourceForChecksum, nil
}

// commonSlashPrefix returns the longest shared leading path-component
// sequence across dirs, using "." to mean "no subdirectory" (root level).
func commonSlashPrefix(dirs []string) string {
	if len(dirs) == 0 {
		return "."
	}
	split := func(d string) []string {
		if d == "." {
			return nil
		}
		return strings.Split(d, "/")
	}

	common := split(dirs[0])
	for _, d := range dirs[1:] {
		parts := split(d)
		if len(parts) < len(common) {
			common = common[:len(parts)]
		}
		for i := range common {
			if i >= len(parts) || common[i] != parts[i] {
				common = common[:i]
				break
			}
		}
	}
	if len(common) == 0 {
		return "."
	}
	return strings.Join(common, "/")
}

// applyPass renders every frozen entry into tmpDir from the one source file
// chosen for its checksum, re-reading that file for each entry sharing the
// checksum, and (when thawing in place) removing the source file once every
// entry sharing its checksum has been rendered.
func applyPass(root, tmpDir string, groups map[[20]byte][]*thawEntry, sourceForChecksum map[[20]byte]string, inPlace bool) (int, error) {
	written := 0

	for checksum, entries := range groups {
		rel, haveSource := sourceForChecksum[checksum]
		if !haveSource {
			// Generic-only entries with no disk counterpart are simply
			// skipped; there is nothing to splice metadata into.
			continue
		}
		abs := filepath.Join(root, filepath.FromSlash(rel))

		for _, te := range entries {
			if te.done {
				continue
			}

			raw, err := os.ReadFile(abs)
			if err != nil {
				return written, ftagerr.IOFailure("read", abs, err)
			}
			pf, err := format.Parse(abs, raw)
			if err != nil {
				return written, ftagerr.ParseFailure(abs, err)
			}
			if _, err := pf.Strip(); err != nil {
				return written, ftagerr.ParseFailure(abs, err)
			}
			if err := pf.Restore(te.entry.Metadata); err != nil {
				return written, ftagerr.ParseFailure(abs, err)
			}

			dst := filepath.Join(tmpDir, filepath.FromSlash(te.entry.Path))
			if err := fsutil.AtomicWriteFile(dst, pf.Bytes()); err != nil {
				return written, ftagerr.IOFailure("write", dst, err)
			}

			te.done = true
			written++
		}

		if inPlace {
			if err := os.Remove(abs); err != nil && !fsutil.IsNotExist(err) {
				return written, ftagerr.IOFailure("remove", abs, err)
			}
			if err := fsutil.PruneEmptyDirs(filepath.Dir(abs), root); err != nil {
				return written, ftagerr.IOFailure("prune", filepath.Dir(abs), err)
			}
		}
	}

	return written, nil
}

// commitPass moves every file out of tmpDir into its final location and
// returns the directory the thawed tree now lives under.
func commitPass(root, tmpDir, destRoot string, ft *ftag.Freezetag, inPlace bool) (string, error) {
	finalRoot := destRoot
	if !inPlace {
		finalRoot = filepath.Join(destRoot, ft.Root)
	}

	rels, err := walkDir(tmpDir)
	if err != nil {
		return "", ftagerr.IOFailure("walk", tmpDir, err)
	}
	for _, rel := range rels {
		src := filepath.Join(tmpDir, filepath.FromSlash(rel))
		dst := filepath.Join(finalRoot, filepath.FromSlash(rel))
		if err := fsutil.MoveFile(src, dst); err != nil {
			return "", ftagerr.IOFailure("move", src, err)
		}
	}

	if err := fsutil.PruneEmptyDirs(tmpDir, filepath.Dir(tmpDir)); err != nil {
		return "", ftagerr.IOFailure("prune", tmpDir, err)
	}

	if inPlace && filepath.Base(root) != ft.Root {
		renamed := filepath.Join(filepath.Dir(root), ft.Root)
		if err := os.Rename(root, renamed); err != nil {
			return "", ftagerr.IOFailure("rename", root, err)
		}
		finalRoot = renamed
	}

	return finalRoot, nil
}
