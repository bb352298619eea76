package engine

import (
	"strings"
	"testing"

	"github.com/cesargomez89/freezetag/internal/constants"
	"github.com/cesargomez89/freezetag/internal/format"
	"github.com/cesargomez89/freezetag/internal/ftag"
)

// buildID3v2HeaderForTest wraps body in a minimal ID3v2.3 header, the same
// layout internal/format/mp3.go's own fixtures use.
func buildID3v2HeaderForTest(body []byte) []byte {
	size := len(body)
	header := []byte{
		'I', 'D', '3',
		3, 0, // version 2.3.0
		0, // flags
		byte((size >> 21) & 0x7f), byte((size >> 14) & 0x7f), byte((size >> 7) & 0x7f), byte(size & 0x7f),
	}
	return append(header, body...)
}

// buildTIT2Frame builds one ID3v2.3 text frame: a 4-byte id, a big-endian
// (non-syncsafe) size, two flag bytes, then an encoding byte and the text.
func buildTIT2Frame(title string) []byte {
	payload := append([]byte{0}, []byte(title)...) // encoding 0 = ISO-8859-1
	size := len(payload)
	frame := []byte{'T', 'I', 'T', '2', byte(size >> 24), byte(size >> 16), byte(size >> 8), byte(size), 0, 0}
	return append(frame, payload...)
}

func TestDescribeMp3ReportsFrameCountViaID3v2Library(t *testing.T) {
	head := buildID3v2HeaderForTest(buildTIT2Frame("Test Title"))

	entry := ftag.FrozenFileEntry{
		Path:     "a.mp3",
		Format:   constants.FormatMP3,
		Checksum: [20]byte{1, 2, 3},
		Metadata: format.Mp3Metadata{Head: head},
	}
	ft := ftag.New(constants.VersionDefault, constants.ModeDefault, "root", []ftag.FrozenFileEntry{entry})

	desc, err := Describe(ft)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if len(desc.Files) != 1 {
		t.Fatalf("expected 1 file report, got %d", len(desc.Files))
	}

	spans := desc.Files[0].MetadataSpans
	if len(spans) != 1 {
		t.Fatalf("expected 1 metadata span, got %v", spans)
	}
	if !strings.HasPrefix(spans[0], "ID3v2.3 ") {
		t.Errorf("span = %q, want ID3v2.3 prefix", spans[0])
	}
	if !strings.Contains(spans[0], "1 frame(s)") {
		t.Errorf("span = %q, want a frame count", spans[0])
	}
}

func TestDescribeMp3FallsBackWhenRegionHasNoFrames(t *testing.T) {
	// A header with no frames at all (e.g. the padding-only edge case) has
	// nothing for bogem/id3v2 to enumerate, so describe falls back to the
	// raw version-byte label instead of a frame count.
	head := buildID3v2HeaderForTest(nil)

	entry := ftag.FrozenFileEntry{
		Path:     "b.mp3",
		Format:   constants.FormatMP3,
		Checksum: [20]byte{4, 5, 6},
		Metadata: format.Mp3Metadata{Head: head},
	}
	ft := ftag.New(constants.VersionDefault, constants.ModeDefault, "root", []ftag.FrozenFileEntry{entry})

	desc, err := Describe(ft)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}

	spans := desc.Files[0].MetadataSpans
	if len(spans) != 1 {
		t.Fatalf("expected 1 metadata span, got %v", spans)
	}
	if spans[0] != "ID3v2.3 (10 bytes)" {
		t.Errorf("span = %q, want fallback label", spans[0])
	}
}
