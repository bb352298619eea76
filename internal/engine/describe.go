package engine

import (
	"bytes"
	"fmt"

	"github.com/bogem/id3v2/v2"

	"github.com/cesargomez89/freezetag/internal/constants"
	"github.com/cesargomez89/freezetag/internal/format"
	"github.com/cesargomez89/freezetag/internal/ftag"
)

// FileReport summarizes one frozen entry for the show command.
type FileReport struct {
	Path          string
	Format        string
	ChecksumHex   string
	MetadataSpans []string // e.g. "VORBIS_COMMENT (128 bytes)", "ID3v2.3 (4096 bytes)"
}

// Description is the full summary of a decoded freezetag, independent of
// any CLI output format.
type Description struct {
	ID               string
	Version          uint8
	Mode             uint8
	Root             string
	MusicChecksumHex string
	MetaChecksumHex  string
	Files            []FileReport
}

// Describe builds a human-oriented summary of ft, suitable for the show
// command's text or JSON rendering.
func Describe(ft *ftag.Freezetag) (*Description, error) {
	id, err := ft.ID()
	if err != nil {
		return nil, fmt.Errorf("describe: %w", err)
	}

	d := &Description{
		ID:               id,
		Version:          ft.Version,
		Mode:             ft.Mode,
		Root:             ft.Root,
		MusicChecksumHex: fmt.Sprintf("%x", ft.MusicChecksum),
		MetaChecksumHex:  fmt.Sprintf("%x", ft.MetadataChecksum),
		Files:            make([]FileReport, 0, len(ft.Files)),
	}

	for _, entry := range ft.Files {
		d.Files = append(d.Files, describeEntry(entry))
	}

	return d, nil
}

func describeEntry(entry ftag.FrozenFileEntry) FileReport {
	fr := FileReport{
		Path:        entry.Path,
		Format:      formatName(entry.Format),
		ChecksumHex: fmt.Sprintf("%x", entry.Checksum),
	}

	switch m := entry.Metadata.(type) {
	case format.FlacMetadata:
		for _, b := range m.Blocks {
			fr.MetadataSpans = append(fr.MetadataSpans, fmt.Sprintf("%s (%d bytes)", format.BlockTypeName(b.Type), b.Size()))
		}
	case format.Mp3Metadata:
		if m.Head != nil {
			fr.MetadataSpans = append(fr.MetadataSpans, id3v2Span(m.Head))
		}
		if m.Tail != nil {
			fr.MetadataSpans = append(fr.MetadataSpans, id3v2Span(m.Tail))
		}
		if m.V1 != nil {
			fr.MetadataSpans = append(fr.MetadataSpans, fmt.Sprintf("ID3v1 (%d bytes)", len(m.V1)))
		}
	}

	return fr
}

func formatName(id uint8) string {
	switch id {
	case constants.FormatFLAC:
		return "FLAC"
	case constants.FormatMP3:
		return "MP3"
	default:
		return "generic"
	}
}

// id3v2Span describes one ID3v2 region by parsing its frames with
// bogem/id3v2, the way show's output enumerates FLAC blocks by name. A
// region that doesn't parse as a standalone tag (e.g. a trailing footer
// span with no frames of its own) falls back to a raw version-byte read.
func id3v2Span(region []byte) string {
	tag, err := id3v2.ParseReader(bytes.NewReader(region), id3v2.Options{Parse: true})
	if err != nil || !tag.HasFrames() {
		return fmt.Sprintf("%s (%d bytes)", id3VersionLabel(region), len(region))
	}
	return fmt.Sprintf("ID3v2.%d (%d bytes, %d frame(s))", tag.Version(), len(region), tag.Count())
}

// id3VersionLabel reads the major version byte out of a raw ID3v2 region's
// 10-byte header to produce a label like "ID3v2.3" or "ID3v2.4".
func id3VersionLabel(region []byte) string {
	if len(region) < 4 {
		return "ID3v2"
	}
	return fmt.Sprintf("ID3v2.%d", region[3])
}
