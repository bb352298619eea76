package format

import (
	"bytes"
	"fmt"

	"github.com/cesargomez89/freezetag/internal/constants"
)

const (
	id3v2HeaderLen = 10
	id3v1Len       = 128
)

// Mp3Metadata is the triple of optional tag regions surrounding an MP3's
// raw audio frames.
type Mp3Metadata struct {
	Head []byte // ID3v2 at offset 0, nil if absent
	Tail []byte // ID3v2 placed just before ID3v1 or at EOF, nil if absent
	V1   []byte // 128-byte ID3v1 footer, nil if absent
}

func (Mp3Metadata) FormatID() uint8 { return constants.FormatMP3 }

func (m Mp3Metadata) Empty() bool {
	return m.Head == nil && m.Tail == nil && m.V1 == nil
}

// mp3File holds the three possible tag regions plus the audio span found
// between them. Bytes() reassembles the four pieces in file order.
type mp3File struct {
	head  []byte
	audio []byte
	tail  []byte
	v1    []byte
}

func parseMP3(raw []byte) *mp3File {
	headLen := id3v2RegionLen(raw, 0)
	head := raw[:headLen]

	v1Start := len(raw)
	if hasID3v1(raw) {
		v1Start = len(raw) - id3v1Len
	}

	tailStart := v1Start
	peek := v1Start - id3v2HeaderLen
	if peek >= headLen {
		// Only a genuine footer ("3DI", the header signature reversed) sits
		// at peek; a bare "ID3" there would be header bytes belonging to
		// the tail tag's own body, not a second tag, and the subtraction
		// below would misplace tailStart by a header's length.
		if sig := safeSlice(raw, peek, peek+3); isID3v2FooterSignature(sig) {
			size := decodeSyncsafe(safeSlice(raw, peek+6, peek+id3v2HeaderLen))
			candidate := peek - int(size) - id3v2HeaderLen
			if candidate >= headLen && candidate <= peek {
				tailStart = candidate
			}
		}
	}

	return &mp3File{
		head:  cloneOrNil(head),
		audio: append([]byte(nil), raw[headLen:tailStart]...),
		tail:  cloneOrNil(raw[tailStart:v1Start]),
		v1:    cloneOrNil(raw[v1Start:]),
	}
}

func (f *mp3File) FormatID() uint8 { return constants.FormatMP3 }

func (f *mp3File) Strip() (Metadata, error) {
	m := Mp3Metadata{Head: f.head, Tail: f.tail, V1: f.v1}
	f.head, f.tail, f.v1 = nil, nil, nil
	return m, nil
}

func (f *mp3File) Restore(m Metadata) error {
	mm, ok := m.(Mp3Metadata)
	if !ok {
		return fmt.Errorf("restore mp3: metadata is %T, want Mp3Metadata", m)
	}
	f.head, f.tail, f.v1 = mm.Head, mm.Tail, mm.V1
	return nil
}

func (f *mp3File) Checksum() ([20]byte, error) {
	return sha1Sum(f.audio), nil
}

func (f *mp3File) Bytes() []byte {
	var buf bytes.Buffer
	buf.Write(f.head)
	buf.Write(f.audio)
	buf.Write(f.tail)
	buf.Write(f.v1)
	return buf.Bytes()
}

// id3v2RegionLen returns the byte length of an ID3v2 tag starting at off,
// or 0 if no "ID3" signature is found there. Per the ID3v2 spec the
// declared size already accounts for any extended header, so the region's
// total length is simply header + size + optional footer.
func id3v2RegionLen(data []byte, off int) int {
	header := safeSlice(data, off, off+id3v2HeaderLen)
	if len(header) < id3v2HeaderLen || string(header[:3]) != "ID3" {
		return 0
	}
	size := decodeSyncsafe(header[6:10])
	total := id3v2HeaderLen + int(size)
	if hasFooterFlag(header[5]) {
		total += id3v2HeaderLen
	}
	if off+total > len(data) {
		return 0
	}
	return total
}

func hasFooterFlag(flags byte) bool {
	// flags: unsync(0x80) ext(0x40) experimental(0x20) footer(0x10) unused(0x0f)
	return flags&0x10 != 0
}

func hasID3v1(data []byte) bool {
	if len(data) < id3v1Len {
		return false
	}
	return string(data[len(data)-id3v1Len:len(data)-id3v1Len+3]) == "TAG"
}

func isID3v2FooterSignature(sig []byte) bool {
	return len(sig) == 3 && string(sig) == "3DI"
}

// decodeSyncsafe decodes a four-byte ID3v2 syncsafe integer: seven usable
// bits per byte, most significant byte first.
func decodeSyncsafe(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return uint32(b[0])<<21 | uint32(b[1])<<14 | uint32(b[2])<<7 | uint32(b[3])
}

func safeSlice(data []byte, start, end int) []byte {
	if start < 0 || end > len(data) || start > end {
		return nil
	}
	return data[start:end]
}

func cloneOrNil(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
