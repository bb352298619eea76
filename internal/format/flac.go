package format

import (
	"bytes"
	"fmt"

	goflac "github.com/go-flac/go-flac"

	"github.com/cesargomez89/freezetag/internal/constants"
)

// flacBlockTypeNames mirrors the FLAC spec's metadata block type ordinals,
// used only for human-readable reporting.
var flacBlockTypeNames = [...]string{
	"STREAMINFO",
	"PADDING",
	"APPLICATION",
	"SEEKTABLE",
	"VORBIS_COMMENT",
	"CUESHEET",
	"PICTURE",
}

// BlockTypeName returns the FLAC metadata block type name for t, or
// "RESERVED" if t falls outside the named range.
func BlockTypeName(t goflac.BlockType) string {
	if int(t) >= 0 && int(t) < len(flacBlockTypeNames) {
		return flacBlockTypeNames[t]
	}
	return "RESERVED"
}

// FlacBlock is one non-STREAMINFO metadata block carried in frozen FLAC
// metadata. Size is reported inclusive of the 4-byte block header.
type FlacBlock struct {
	Type goflac.BlockType
	Data []byte
}

// Size is the block's encoded length including its 4-byte header.
func (b FlacBlock) Size() int { return 4 + len(b.Data) }

// FlacMetadata is the ordered sequence of non-STREAMINFO metadata blocks
// stripped from a FLAC file.
type FlacMetadata struct {
	Blocks []FlacBlock
}

func (FlacMetadata) FormatID() uint8   { return constants.FormatFLAC }
func (m FlacMetadata) Empty() bool     { return len(m.Blocks) == 0 }
func (m FlacMetadata) BlockCount() int { return len(m.Blocks) }

// flacFile wraps a parsed FLAC stream. STREAMINFO always occupies Meta[0];
// strip/restore only ever touch what follows it.
type flacFile struct {
	file *goflac.File
}

func parseFLAC(raw []byte) (*flacFile, error) {
	parsed, err := goflac.ParseBytes(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse flac: %w", err)
	}
	if len(parsed.Meta) == 0 || parsed.Meta[0].Type != goflac.StreamInfo {
		return nil, fmt.Errorf("parse flac: STREAMINFO is not the first block")
	}
	return &flacFile{file: parsed}, nil
}

func (f *flacFile) FormatID() uint8 { return constants.FormatFLAC }

// Strip removes every block after STREAMINFO and returns them in order.
// Marshal recomputes the "last" bit from slice position, so leaving only
// STREAMINFO in Meta automatically marks it final.
func (f *flacFile) Strip() (Metadata, error) {
	streamInfo := f.file.Meta[0]
	rest := f.file.Meta[1:]

	blocks := make([]FlacBlock, len(rest))
	for i, b := range rest {
		blocks[i] = FlacBlock{Type: b.Type, Data: append([]byte(nil), b.Data...)}
	}

	f.file.Meta = []*goflac.MetaDataBlock{streamInfo}
	return FlacMetadata{Blocks: blocks}, nil
}

// Restore appends m's blocks back after STREAMINFO, preserving their
// original order; the previously-final block regains last=0 automatically
// since it is no longer the slice's tail.
func (f *flacFile) Restore(m Metadata) error {
	fm, ok := m.(FlacMetadata)
	if !ok {
		return fmt.Errorf("restore flac: metadata is %T, want FlacMetadata", m)
	}

	streamInfo := f.file.Meta[0]
	meta := make([]*goflac.MetaDataBlock, 0, len(fm.Blocks)+1)
	meta = append(meta, streamInfo)
	for _, b := range fm.Blocks {
		meta = append(meta, &goflac.MetaDataBlock{Type: b.Type, Data: append([]byte(nil), b.Data...)})
	}
	f.file.Meta = meta
	return nil
}

// Checksum hashes "fLaC" + STREAMINFO{last=1} + the audio tail, regardless
// of whatever other blocks are currently attached, so retagging never
// changes it.
func (f *flacFile) Checksum() ([20]byte, error) {
	stripped := &goflac.File{
		Meta:   []*goflac.MetaDataBlock{f.file.Meta[0]},
		Frames: f.file.Frames,
	}
	return sha1Sum(stripped.Marshal()), nil
}

func (f *flacFile) Bytes() []byte {
	return f.file.Marshal()
}
