// Package engine implements the freeze, thaw, and shave operations: the
// synchronous, single-threaded directory walks that build, apply, and
// strip freezetags.
package engine

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/cesargomez89/freezetag/internal/constants"
	"github.com/cesargomez89/freezetag/internal/format"
	"github.com/cesargomez89/freezetag/internal/ftag"
	"github.com/cesargomez89/freezetag/internal/ftagerr"
	"github.com/cesargomez89/freezetag/internal/logger"
)

// FreezeOptions controls a Freeze call.
type FreezeOptions struct {
	// Backup selects version-2 backup-mode freezing: per-file stat is
	// recorded and unchanged files are reused from the most recent prior
	// backup without rehashing.
	Backup bool
}

// FreezeResult is what Freeze produced, or an indication that nothing
// changed since the last backup freeze.
type FreezeResult struct {
	Freezetag *ftag.Freezetag
	Bytes     []byte
	Filename  string
	NoChanges bool
}

var backupFilenameRE = regexp.MustCompile(constants.BackupFilenamePattern)

// Freeze walks root, strips and checksums every recognized file, and
// builds a freezetag. It refuses to run while an unrestored thaw temp
// directory remains, and fails if no music file was found.
func Freeze(root string, opts FreezeOptions, log *logger.Logger) (*FreezeResult, error) {
	log = log.WithOperation("freeze").WithPath(root)

	if tmp, err := findUnrestoredTemp(root); err != nil {
		return nil, ftagerr.IOFailure("scan", root, err)
	} else if tmp != "" {
		return nil, fmt.Errorf("%w: %s", ftagerr.ErrUnrestoredState, tmp)
	}

	var existing map[string]ftag.FrozenFileEntry
	var existingRoot string
	if opts.Backup {
		prior, err := findLatestBackup(root)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			existing = indexByPath(prior.Files)
			existingRoot = prior.Root
		}
	}

	relPaths, err := walkDir(root)
	if err != nil {
		return nil, ftagerr.IOFailure("walk", root, err)
	}

	entries := make([]ftag.FrozenFileEntry, 0, len(relPaths))
	musicCount := 0
	reused := 0

	for _, rel := range relPaths {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if err != nil {
			return nil, ftagerr.IOFailure("stat", abs, err)
		}

		formatID := format.Detect(abs)
		if formatID != constants.FormatGeneric {
			musicCount++
		}

		if opts.Backup {
			if prior, ok := existing[rel]; ok && statMatches(prior.Stat, info) {
				entries = append(entries, prior)
				reused++
				continue
			}
		}

		entry, err := buildEntry(abs, rel, formatID, opts.Backup, info)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		log.WithPath(rel).Debug("scanned file")
	}

	if musicCount == 0 {
		return nil, ftagerr.ErrNoMusic
	}

	version := constants.VersionDefault
	mode := constants.ModeDefault
	if opts.Backup {
		version = constants.VersionBackup
		mode = constants.ModeBackup
	}

	rootName := filepath.Base(root)

	if opts.Backup && reused == len(entries) && existingRoot == rootName && len(existing) == len(entries) {
		log.Info("no changes")
		return &FreezeResult{NoChanges: true}, nil
	}

	ft := ftag.New(version, mode, rootName, entries)
	data, err := ft.Bytes()
	if err != nil {
		return nil, fmt.Errorf("freeze: %w", err)
	}

	var filename string
	if opts.Backup {
		filename = "F" + time.Now().Format(constants.BackupTimestampLayout) + constants.ExtFtag
	} else {
		id, err := ft.ID()
		if err != nil {
			return nil, fmt.Errorf("freeze: %w", err)
		}
		filename = id + constants.ExtFtag
	}

	return &FreezeResult{Freezetag: ft, Bytes: data, Filename: filename}, nil
}

func buildEntry(abs, rel string, formatID uint8, wantStat bool, info os.FileInfo) (ftag.FrozenFileEntry, error) {
	raw, err := os.ReadFile(abs)
	if err != nil {
		return ftag.FrozenFileEntry{}, ftagerr.IOFailure("read", abs, err)
	}

	pf, err := format.Parse(abs, raw)
	if err != nil {
		return ftag.FrozenFileEntry{}, ftagerr.ParseFailure(abs, err)
	}
	meta, err := pf.Strip()
	if err != nil {
		return ftag.FrozenFileEntry{}, ftagerr.ParseFailure(abs, err)
	}
	checksum, err := pf.Checksum()
	if err != nil {
		return ftag.FrozenFileEntry{}, ftagerr.ParseFailure(abs, err)
	}

	entry := ftag.FrozenFileEntry{Path: rel, Format: formatID, Checksum: checksum, Metadata: meta}
	if wantStat {
		entry.Stat = &ftag.FileStat{Mtime: statMtime(info), Size: uint64(info.Size())}
	}
	return entry, nil
}

func statMtime(info os.FileInfo) float64 {
	return float64(info.ModTime().UnixNano()) / 1e9
}

func statMatches(prior *ftag.FileStat, info os.FileInfo) bool {
	if prior == nil {
		return false
	}
	if prior.Size != uint64(info.Size()) {
		return false
	}
	return math.Abs(prior.Mtime-statMtime(info)) < 1e-3
}

func indexByPath(files []ftag.FrozenFileEntry) map[string]ftag.FrozenFileEntry {
	m := make(map[string]ftag.FrozenFileEntry, len(files))
	for _, f := range files {
		m[f.Path] = f
	}
	return m
}

// findUnrestoredTemp returns the path of any *.ftag-tmp directory
// directly inside root, or "" if none exists.
func findUnrestoredTemp(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ftagerr.ErrInputNotFound, root)
		}
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() && filepath.Ext(e.Name()) == constants.FtagTmpSuffix {
			return filepath.Join(root, e.Name()), nil
		}
	}
	return "", nil
}

// findLatestBackup locates the most recently mtimed backup-pattern .ftag
// file in root and decodes it, or returns nil if none exists.
func findLatestBackup(root string) (*ftag.Freezetag, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, ftagerr.IOFailure("scan", root, err)
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !backupFilenameRE.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(root, e.Name()), modTime: info.ModTime()})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime.After(candidates[j].modTime) })

	raw, err := os.ReadFile(candidates[0].path)
	if err != nil {
		return nil, ftagerr.IOFailure("read", candidates[0].path, err)
	}
	ft, err := ftag.Decode(raw)
	if err != nil {
		return nil, ftagerr.ParseFailure(candidates[0].path, err)
	}
	return ft, nil
}

// FindFtag resolves the freezetag to operate on: explicit if given,
// otherwise the sole .ftag file directly inside dir.
func FindFtag(dir, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ftagerr.ErrInputNotFound, dir)
		}
		return "", err
	}

	var matches []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == constants.ExtFtag {
			matches = append(matches, filepath.Join(dir, e.Name()))
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no .ftag file in %s", ftagerr.ErrInputNotFound, dir)
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", fmt.Errorf("%w: %d candidates in %s", ftagerr.ErrAmbiguousSelection, len(matches), dir)
	}
}
