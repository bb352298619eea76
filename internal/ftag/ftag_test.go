package ftag

import (
	"bytes"
	"testing"

	goflac "github.com/go-flac/go-flac"

	"github.com/cesargomez89/freezetag/internal/constants"
	"github.com/cesargomez89/freezetag/internal/format"
)

func sampleFiles() []FrozenFileEntry {
	return []FrozenFileEntry{
		{
			Path:     "disc1/a.flac",
			Format:   constants.FormatFLAC,
			Checksum: [20]byte{1, 2, 3},
			Metadata: format.FlacMetadata{Blocks: []format.FlacBlock{
				{Type: goflac.VorbisComment, Data: []byte("title=X")},
			}},
		},
		{
			Path:     "disc1/b.mp3",
			Format:   constants.FormatMP3,
			Checksum: [20]byte{4, 5, 6},
			Metadata: format.Mp3Metadata{V1: append([]byte("TAG"), make([]byte, 125)...)},
		},
		{
			Path:     "cover.jpg",
			Format:   constants.FormatGeneric,
			Checksum: [20]byte{7, 8, 9},
			Metadata: format.GenericMetadata{},
		},
	}
}

func TestEncodeDecodeRoundTripV1(t *testing.T) {
	files := sampleFiles()
	original := New(constants.VersionDefault, constants.ModeDefault, "mylibrary", files)

	encoded, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Root != original.Root {
		t.Errorf("Root = %q, want %q", decoded.Root, original.Root)
	}
	if decoded.MusicChecksum != original.MusicChecksum {
		t.Errorf("MusicChecksum mismatch")
	}
	if decoded.MetadataChecksum != original.MetadataChecksum {
		t.Errorf("MetadataChecksum mismatch")
	}
	if len(decoded.Files) != len(files) {
		t.Fatalf("got %d files, want %d", len(decoded.Files), len(files))
	}
	for i, f := range files {
		if decoded.Files[i].Path != f.Path {
			t.Errorf("file %d path = %q, want %q", i, decoded.Files[i].Path, f.Path)
		}
		if decoded.Files[i].Checksum != f.Checksum {
			t.Errorf("file %d checksum mismatch", i)
		}
	}
}

func TestEncodeDecodeRoundTripV2Backup(t *testing.T) {
	files := sampleFiles()
	for i := range files {
		files[i].Stat = &FileStat{Mtime: 1234.5, Size: uint64(100 + i)}
	}
	original := New(constants.VersionBackup, constants.ModeBackup, "mylibrary", files)

	encoded, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Mode != constants.ModeBackup {
		t.Errorf("Mode = %d, want %d", decoded.Mode, constants.ModeBackup)
	}
	for i, f := range files {
		got := decoded.Files[i].Stat
		if got == nil {
			t.Fatalf("file %d: expected stat, got nil", i)
		}
		if got.Mtime != f.Stat.Mtime || got.Size != f.Stat.Size {
			t.Errorf("file %d stat = %+v, want %+v", i, got, f.Stat)
		}
	}
}

func TestParseBuildIsIdentity(t *testing.T) {
	original := New(constants.VersionDefault, constants.ModeDefault, "root", sampleFiles())

	b1, err := original.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}

	decoded, err := Decode(b1)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	b2, err := Encode(decoded)
	if err != nil {
		t.Fatalf("re-Encode failed: %v", err)
	}

	if !bytes.Equal(b1, b2) {
		t.Error("parse(build(x)) round trip produced different bytes")
	}
}

func TestIDIsPureFunctionOfBytes(t *testing.T) {
	ft := New(constants.VersionDefault, constants.ModeDefault, "root", sampleFiles())

	id1, err := ft.ID()
	if err != nil {
		t.Fatalf("ID failed: %v", err)
	}
	id2, err := ft.ID()
	if err != nil {
		t.Fatalf("ID failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("ID is not stable across calls: %s != %s", id1, id2)
	}

	b, _ := ft.Bytes()
	decoded, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	id3, err := decoded.ID()
	if err != nil {
		t.Fatalf("ID failed: %v", err)
	}
	if id1 != id3 {
		t.Errorf("ID differs after a round trip through bytes: %s != %s", id1, id3)
	}
}

func TestSameAudioSetSharesFirstIDSegment(t *testing.T) {
	filesA := sampleFiles()
	filesB := sampleFiles()
	// Different tag metadata, identical audio checksums.
	filesB[0].Metadata = format.FlacMetadata{Blocks: []format.FlacBlock{
		{Type: goflac.VorbisComment, Data: []byte("title=Y")},
	}}

	ftA := New(constants.VersionDefault, constants.ModeDefault, "root", filesA)
	ftB := New(constants.VersionDefault, constants.ModeDefault, "root", filesB)

	if _, err := ftA.ID(); err != nil {
		t.Fatalf("ID failed: %v", err)
	}
	if _, err := ftB.ID(); err != nil {
		t.Fatalf("ID failed: %v", err)
	}

	if ftA.MusicChecksum != ftB.MusicChecksum {
		t.Error("expected identical audio checksums to produce identical music_checksum")
	}
	if ftA.MetadataChecksum == ftB.MetadataChecksum {
		t.Error("expected different tag metadata to change metadata_checksum")
	}
}

func TestInvalidateBytes(t *testing.T) {
	ft := New(constants.VersionDefault, constants.ModeDefault, "root", sampleFiles())

	b1, err := ft.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}

	ft.Root = "renamed"
	ft.InvalidateBytes()

	b2, err := ft.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if bytes.Equal(b1, b2) {
		t.Error("expected bytes to change after mutation + InvalidateBytes")
	}
}

func TestDecodeRejectsVersionTooNew(t *testing.T) {
	original := New(constants.VersionDefault, constants.ModeDefault, "root", sampleFiles())
	encoded, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	encoded[len(magic)] = 99 // corrupt the version byte

	_, err = Decode(encoded)
	if err == nil {
		t.Fatal("expected Decode to reject an unsupported version")
	}
	if !ErrVersionTooNew(err) {
		t.Errorf("expected ErrVersionTooNew, got %v", err)
	}
}
