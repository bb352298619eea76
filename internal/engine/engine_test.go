package engine

import (
	"bytes"
	"crypto/sha1"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goflac "github.com/go-flac/go-flac"

	"github.com/cesargomez89/freezetag/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "text"})
}

// writeFlacFile builds a minimal FLAC stream with one VORBIS_COMMENT block
// carrying comment, and writes it to path.
func writeFlacFile(t *testing.T, path, comment string) {
	t.Helper()

	f := &goflac.File{
		Meta: []*goflac.MetaDataBlock{
			{Type: goflac.StreamInfo, Data: bytes.Repeat([]byte{0x01}, 34)},
			{Type: goflac.VorbisComment, Data: []byte(comment)},
		},
		Frames: []byte{0xFF, 0xF8, 0x01, 0x02, 0x03, 0x04},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, f.Marshal(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return b
}

// Scenario 1: freeze a single FLAC file, thaw into an empty destination,
// and expect a byte-identical copy under dst/<root-name>.
func TestFreezeThawSingleFlacToNewDestination(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "root")
	writeFlacFile(t, filepath.Join(root, "a.flac"), "title=X")
	original := readFile(t, filepath.Join(root, "a.flac"))

	result, err := Freeze(root, FreezeOptions{}, testLogger())
	if err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	if result.Filename == "" {
		t.Fatal("expected a non-empty filename")
	}
	ftagPath := filepath.Join(root, result.Filename)
	if err := os.WriteFile(ftagPath, result.Bytes, 0o644); err != nil {
		t.Fatalf("write ftag: %v", err)
	}

	dst := filepath.Join(base, "dst")
	thawRes, err := Thaw(root, ThawOptions{Destination: dst}, testLogger())
	if err != nil {
		t.Fatalf("Thaw failed: %v", err)
	}
	if thawRes.FilesWritten != 1 {
		t.Errorf("FilesWritten = %d, want 1", thawRes.FilesWritten)
	}

	got := readFile(t, filepath.Join(dst, "root", "a.flac"))
	if !bytes.Equal(got, original) {
		t.Errorf("thawed file does not byte-equal original")
	}
}

// Scenario 2: freeze, retag on disk, thaw in place, and expect the
// original tag to come back; a re-freeze shares the first ID segment.
func TestThawInPlaceRestoresOriginalTags(t *testing.T) {
	root := t.TempDir()
	writeFlacFile(t, filepath.Join(root, "a.flac"), "title=X")

	result, err := Freeze(root, FreezeOptions{}, testLogger())
	if err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	ftagPath := filepath.Join(root, result.Filename)
	if err := os.WriteFile(ftagPath, result.Bytes, 0o644); err != nil {
		t.Fatalf("write ftag: %v", err)
	}
	firstID := result.Filename

	writeFlacFile(t, filepath.Join(root, "a.flac"), "title=Y")

	if _, err := Thaw(root, ThawOptions{FtagPath: ftagPath}, testLogger()); err != nil {
		t.Fatalf("Thaw failed: %v", err)
	}

	refrozen, err := Freeze(root, FreezeOptions{}, testLogger())
	if err != nil {
		t.Fatalf("re-Freeze failed: %v", err)
	}
	if firstSegment(refrozen.Filename) != firstSegment(firstID) {
		t.Errorf("expected first ID segment to match after in-place thaw: %s vs %s", refrozen.Filename, firstID)
	}
}

func firstSegment(filename string) string {
	return strings.SplitN(filename, "-", 2)[0]
}

// Scenario 3: two FLAC files with identical audio but different tags;
// delete one, thaw, and expect both restored from the surviving file.
func TestThawRestoresDuplicateAudioFromSurvivor(t *testing.T) {
	root := t.TempDir()
	writeFlacFile(t, filepath.Join(root, "a.flac"), "title=X")
	writeFlacFile(t, filepath.Join(root, "b.flac"), "title=Y")

	result, err := Freeze(root, FreezeOptions{}, testLogger())
	if err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	ftagPath := filepath.Join(root, result.Filename)
	if err := os.WriteFile(ftagPath, result.Bytes, 0o644); err != nil {
		t.Fatalf("write ftag: %v", err)
	}

	if err := os.Remove(filepath.Join(root, "b.flac")); err != nil {
		t.Fatalf("remove b.flac: %v", err)
	}

	if _, err := Thaw(root, ThawOptions{FtagPath: ftagPath}, testLogger()); err != nil {
		t.Fatalf("Thaw failed: %v", err)
	}

	a := readFile(t, filepath.Join(root, "a.flac"))
	b := readFile(t, filepath.Join(root, "b.flac"))
	if bytes.Equal(a, b) {
		t.Error("expected each restored file to carry its own frozen tags")
	}

	pfA, err := parseAndChecksum(t, filepath.Join(root, "a.flac"))
	if err != nil {
		t.Fatalf("checksum a: %v", err)
	}
	pfB, err := parseAndChecksum(t, filepath.Join(root, "b.flac"))
	if err != nil {
		t.Fatalf("checksum b: %v", err)
	}
	if pfA != pfB {
		t.Error("expected both restored files to share the same audio checksum")
	}
}

func parseAndChecksum(t *testing.T, path string) ([20]byte, error) {
	t.Helper()
	raw := readFile(t, path)
	parsed, err := goflac.ParseBytes(bytes.NewReader(raw))
	if err != nil {
		return [20]byte{}, err
	}
	stripped := &goflac.File{Meta: []*goflac.MetaDataBlock{parsed.Meta[0]}, Frames: parsed.Frames}
	return sha1.Sum(stripped.Marshal()), nil
}

// Scenario 4: backup-freeze twice with no changes reports NoChanges; once
// a file's mtime genuinely changes the stat match fails and it gets
// rehashed, but unchanged audio still yields the same music checksum.
func TestBackupFreezeNoChanges(t *testing.T) {
	root := t.TempDir()
	writeFlacFile(t, filepath.Join(root, "a.flac"), "title=X")

	first, err := Freeze(root, FreezeOptions{Backup: true}, testLogger())
	if err != nil {
		t.Fatalf("first backup freeze failed: %v", err)
	}
	if first.NoChanges {
		t.Fatal("expected the first backup freeze to produce output")
	}
	if err := os.WriteFile(filepath.Join(root, first.Filename), first.Bytes, 0o644); err != nil {
		t.Fatalf("write ftag: %v", err)
	}

	second, err := Freeze(root, FreezeOptions{Backup: true}, testLogger())
	if err != nil {
		t.Fatalf("second backup freeze failed: %v", err)
	}
	if !second.NoChanges {
		t.Error("expected the second backup freeze with no edits to report no changes")
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(root, "a.flac"), future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	third, err := Freeze(root, FreezeOptions{Backup: true}, testLogger())
	if err != nil {
		t.Fatalf("third backup freeze failed: %v", err)
	}
	if third.NoChanges {
		t.Error("expected a genuine mtime change to fail the stat match and trigger a rehash")
	}
	if third.Freezetag.MusicChecksum != first.Freezetag.MusicChecksum {
		t.Error("expected the rehashed audio checksum to still match, since content didn't change")
	}
}

func TestShaveStripsTagsAndPreservesChecksum(t *testing.T) {
	root := t.TempDir()
	writeFlacFile(t, filepath.Join(root, "a.flac"), "title=X")

	before, err := parseAndChecksum(t, filepath.Join(root, "a.flac"))
	if err != nil {
		t.Fatalf("checksum before: %v", err)
	}

	res, err := Shave(root, testLogger())
	if err != nil {
		t.Fatalf("Shave failed: %v", err)
	}
	if res.FilesStripped != 1 {
		t.Errorf("FilesStripped = %d, want 1", res.FilesStripped)
	}

	raw := readFile(t, filepath.Join(root, "a.flac"))
	parsed, err := goflac.ParseBytes(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("parse shaved file: %v", err)
	}
	if len(parsed.Meta) != 1 {
		t.Errorf("expected shaved file to carry only STREAMINFO, got %d blocks", len(parsed.Meta))
	}

	after, err := parseAndChecksum(t, filepath.Join(root, "a.flac"))
	if err != nil {
		t.Fatalf("checksum after: %v", err)
	}
	if before != after {
		t.Error("expected audio checksum to survive a shave")
	}
}

func TestShaveThenFreezeThenThawRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeFlacFile(t, filepath.Join(root, "a.flac"), "title=X")
	original := readFile(t, filepath.Join(root, "a.flac"))

	result, err := Freeze(root, FreezeOptions{}, testLogger())
	if err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	ftagPath := filepath.Join(root, result.Filename)
	if err := os.WriteFile(ftagPath, result.Bytes, 0o644); err != nil {
		t.Fatalf("write ftag: %v", err)
	}

	if _, err := Shave(root, testLogger()); err != nil {
		t.Fatalf("Shave failed: %v", err)
	}

	if _, err := Thaw(root, ThawOptions{FtagPath: ftagPath}, testLogger()); err != nil {
		t.Fatalf("Thaw failed: %v", err)
	}

	got := readFile(t, filepath.Join(root, "a.flac"))
	if !bytes.Equal(got, original) {
		t.Error("expected shave then thaw to restore the original bytes")
	}
}

func TestFindFtagAmbiguousSelection(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.ftag"), []byte{0}, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "b.ftag"), []byte{0}, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := FindFtag(root, ""); err == nil {
		t.Error("expected an error when multiple .ftag files are present with no explicit choice")
	}
}
