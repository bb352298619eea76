// Package ftag encodes and decodes the freezetag sidecar container: the
// versioned, LZMA-compressed binary format that carries a frozen
// directory's per-file paths, audio checksums, and tag metadata, plus the
// content-addressed identifier derived from it.
package ftag

import (
	"crypto/sha1"
	"fmt"
	"sort"

	"github.com/cesargomez89/freezetag/internal/constants"
	"github.com/cesargomez89/freezetag/internal/format"
)

// FileStat is the optional per-file (mtime, size) snapshot carried by
// version 2 backup-mode freezetags, letting a later freeze skip rehashing
// files whose stat hasn't changed.
type FileStat struct {
	Mtime float64
	Size  uint64
}

// FrozenFileEntry is one file's frozen state: its virtual path, which
// codec produced its checksum, the checksum itself, and the metadata that
// restores it.
type FrozenFileEntry struct {
	Path     string // forward-slash relative path
	Format   uint8
	Checksum [20]byte
	Stat     *FileStat
	Metadata format.Metadata
}

// Freezetag is a fully decoded .ftag value: the root directory name it
// was frozen from, the two short digests identifying its audio and tag
// content, and every file it covers.
type Freezetag struct {
	Version          uint8
	Mode             uint8
	MusicChecksum    [8]byte
	MetadataChecksum [4]byte
	Root             string
	Files            []FrozenFileEntry

	cachedBytes []byte
}

// New builds a Freezetag from a completed directory walk, deriving the
// music and metadata digests from the entries themselves.
func New(version, mode uint8, root string, files []FrozenFileEntry) *Freezetag {
	return &Freezetag{
		Version:          version,
		Mode:             mode,
		MusicChecksum:    ComputeMusicChecksum(files),
		MetadataChecksum: ComputeMetadataChecksum(files),
		Root:             root,
		Files:            files,
	}
}

// InvalidateBytes clears the memoized encoding. Call this after mutating
// Files, Root, Mode, or either checksum field.
func (f *Freezetag) InvalidateBytes() {
	f.cachedBytes = nil
}

// Bytes returns the encoded wire form, computing and memoizing it on
// first call.
func (f *Freezetag) Bytes() ([]byte, error) {
	if f.cachedBytes != nil {
		return f.cachedBytes, nil
	}
	b, err := Encode(f)
	if err != nil {
		return nil, err
	}
	f.cachedBytes = b
	return b, nil
}

// ID derives the three-segment freezetag identifier: the music digest,
// the metadata digest, and a digest of the whole encoded container. It is
// a pure function of Bytes().
func (f *Freezetag) ID() (string, error) {
	b, err := f.Bytes()
	if err != nil {
		return "", fmt.Errorf("derive freezetag id: %w", err)
	}
	whole := sha1.Sum(b)
	return fmt.Sprintf("F%x-%x-%x", f.MusicChecksum, f.MetadataChecksum, whole[:4]), nil
}

// ComputeMusicChecksum hashes the sorted, concatenated audio checksums of
// every entry and truncates to 8 bytes. It identifies the raw audio set
// independent of tags or paths.
func ComputeMusicChecksum(files []FrozenFileEntry) [8]byte {
	sums := make([][20]byte, 0, len(files))
	for _, f := range files {
		sums = append(sums, f.Checksum)
	}
	digest := sortConcatSHA1(sums)
	var out [8]byte
	copy(out[:], digest[:8])
	return out
}

// ComputeMetadataChecksum hashes the sorted, concatenated per-file
// metadata checksums and truncates to 4 bytes.
func ComputeMetadataChecksum(files []FrozenFileEntry) [4]byte {
	sums := make([][20]byte, 0, len(files))
	for _, f := range files {
		sums = append(sums, metadataChecksum(f))
	}
	digest := sortConcatSHA1(sums)
	var out [4]byte
	copy(out[:], digest[:4])
	return out
}

func metadataChecksum(f FrozenFileEntry) [20]byte {
	b, err := encodeMetadata(f.Metadata)
	if err != nil {
		return sha1.Sum(nil)
	}
	return sha1.Sum(b)
}

func sortConcatSHA1(sums [][20]byte) [20]byte {
	sorted := make([][20]byte, len(sums))
	copy(sorted, sums)
	sort.Slice(sorted, func(i, j int) bool {
		for k := 0; k < 20; k++ {
			if sorted[i][k] != sorted[j][k] {
				return sorted[i][k] < sorted[j][k]
			}
		}
		return false
	})

	h := sha1.New()
	for _, s := range sorted {
		h.Write(s[:])
	}
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DefaultFilename is the default (non-backup) .ftag filename for a
// freezetag with the given id.
func DefaultFilename(id string) string {
	return id + constants.ExtFtag
}
