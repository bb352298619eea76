package ftag

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	goflac "github.com/go-flac/go-flac"

	"github.com/cesargomez89/freezetag/internal/constants"
	"github.com/cesargomez89/freezetag/internal/format"
)

const magic = "freezetag"

var errTruncated = errors.New("freezetag: truncated wire data")

// Encode serializes f per the big-endian, LZMA-compressed wire format:
// "freezetag" | version | version-specific header | LZMA(files array).
func Encode(f *Freezetag) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.WriteByte(f.Version)

	switch f.Version {
	case constants.VersionDefault:
		buf.Write(f.MusicChecksum[:])
		buf.Write(f.MetadataChecksum[:])
		writeCString(&buf, f.Root)
	case constants.VersionBackup:
		buf.WriteByte(f.Mode)
		buf.Write(f.MusicChecksum[:])
		buf.Write(f.MetadataChecksum[:])
		writeCString(&buf, f.Root)
	default:
		return nil, fmt.Errorf("freezetag: unsupported version %d", f.Version)
	}

	filesBytes, err := encodeFilesArray(f.Files, f.Version, f.Mode)
	if err != nil {
		return nil, fmt.Errorf("freezetag: encode files: %w", err)
	}
	compressed, err := lzmaCompress(filesBytes)
	if err != nil {
		return nil, fmt.Errorf("freezetag: compress files: %w", err)
	}
	buf.Write(compressed)

	return buf.Bytes(), nil
}

// Decode parses a complete .ftag file. Trailing bytes inside the
// decompressed files array are rejected; bytes after the end of the LZMA
// stream itself are not checked.
func Decode(data []byte) (*Freezetag, error) {
	r := bytes.NewReader(data)

	sig := make([]byte, len(magic))
	if _, err := readFull(r, sig); err != nil || string(sig) != magic {
		return nil, fmt.Errorf("freezetag: bad signature")
	}

	version, err := readUint8(r)
	if err != nil {
		return nil, errTruncated
	}

	f := &Freezetag{Version: version, cachedBytes: append([]byte(nil), data...)}

	switch version {
	case constants.VersionDefault:
		if err := readChecksums(r, f); err != nil {
			return nil, err
		}
	case constants.VersionBackup:
		mode, err := readUint8(r)
		if err != nil {
			return nil, errTruncated
		}
		f.Mode = mode
		if err := readChecksums(r, f); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: version %d", errVersionTooNew, version)
	}

	root, err := readCString(r)
	if err != nil {
		return nil, fmt.Errorf("freezetag: read root: %w", err)
	}
	f.Root = root

	rest := make([]byte, r.Len())
	if _, err := readFull(r, rest); err != nil {
		return nil, errTruncated
	}

	filesBytes, err := lzmaDecompress(rest)
	if err != nil {
		return nil, fmt.Errorf("freezetag: decompress files: %w", err)
	}

	files, err := decodeFilesArray(filesBytes, version, f.Mode)
	if err != nil {
		return nil, fmt.Errorf("freezetag: decode files: %w", err)
	}
	f.Files = files

	return f, nil
}

var errVersionTooNew = errors.New("freezetag version too new")

// ErrVersionTooNew reports whether err indicates a freezetag declaring an
// unsupported version.
func ErrVersionTooNew(err error) bool {
	return errors.Is(err, errVersionTooNew)
}

func readChecksums(r *bytes.Reader, f *Freezetag) error {
	if _, err := readFull(r, f.MusicChecksum[:]); err != nil {
		return errTruncated
	}
	if _, err := readFull(r, f.MetadataChecksum[:]); err != nil {
		return errTruncated
	}
	return nil
}

func encodeFilesArray(files []FrozenFileEntry, version, mode uint8) ([]byte, error) {
	var buf bytes.Buffer
	if len(files) > math.MaxUint16 {
		return nil, fmt.Errorf("too many files: %d", len(files))
	}
	writeUint16(&buf, uint16(len(files)))
	for _, entry := range files {
		if err := encodeFrozenFile(&buf, entry, version, mode); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeFilesArray(data []byte, version, mode uint8) ([]FrozenFileEntry, error) {
	r := bytes.NewReader(data)
	count, err := readUint16(r)
	if err != nil {
		return nil, errTruncated
	}
	files := make([]FrozenFileEntry, 0, count)
	for i := 0; i < int(count); i++ {
		entry, err := decodeFrozenFile(r, version, mode)
		if err != nil {
			return nil, err
		}
		files = append(files, entry)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("freezetag: %d trailing bytes in files array", r.Len())
	}
	return files, nil
}

func encodeFrozenFile(buf *bytes.Buffer, entry FrozenFileEntry, version, mode uint8) error {
	writeCString(buf, entry.Path)
	buf.WriteByte(entry.Format)
	buf.Write(entry.Checksum[:])

	if version == constants.VersionBackup && mode == constants.ModeBackup {
		if entry.Stat == nil {
			return fmt.Errorf("backup entry %q missing stat", entry.Path)
		}
		writeFloat64(buf, entry.Stat.Mtime)
		writeUint64(buf, entry.Stat.Size)
	}

	metaBytes, err := encodeMetadata(entry.Metadata)
	if err != nil {
		return fmt.Errorf("entry %q: %w", entry.Path, err)
	}
	buf.Write(metaBytes)
	return nil
}

func decodeFrozenFile(r *bytes.Reader, version, mode uint8) (FrozenFileEntry, error) {
	var entry FrozenFileEntry

	path, err := readCString(r)
	if err != nil {
		return entry, fmt.Errorf("freezetag: read path: %w", err)
	}
	entry.Path = path

	formatID, err := readUint8(r)
	if err != nil {
		return entry, errTruncated
	}
	entry.Format = formatID

	if _, err := readFull(r, entry.Checksum[:]); err != nil {
		return entry, errTruncated
	}

	if version == constants.VersionBackup && mode == constants.ModeBackup {
		mtime, err := readFloat64(r)
		if err != nil {
			return entry, errTruncated
		}
		size, err := readUint64(r)
		if err != nil {
			return entry, errTruncated
		}
		entry.Stat = &FileStat{Mtime: mtime, Size: size}
	}

	meta, err := decodeMetadata(formatID, r)
	if err != nil {
		return entry, fmt.Errorf("freezetag: entry %q: %w", path, err)
	}
	entry.Metadata = meta

	return entry, nil
}

// encodeMetadata writes a FrozenFile's format-specific metadata section.
func encodeMetadata(m format.Metadata) ([]byte, error) {
	var buf bytes.Buffer
	switch meta := m.(type) {
	case nil:
		return nil, nil
	case format.GenericMetadata:
		// empty
	case format.FlacMetadata:
		if len(meta.Blocks) > math.MaxUint8 {
			return nil, fmt.Errorf("too many FLAC blocks: %d", len(meta.Blocks))
		}
		buf.WriteByte(byte(len(meta.Blocks)))
		for _, b := range meta.Blocks {
			buf.WriteByte(byte(b.Type))
			writeUint32(&buf, uint32(len(b.Data)))
			buf.Write(b.Data)
		}
	case format.Mp3Metadata:
		flags := byte(0)
		if meta.Head != nil {
			flags |= 0x01
		}
		if meta.Tail != nil {
			flags |= 0x02
		}
		if meta.V1 != nil {
			flags |= 0x04
		}
		buf.WriteByte(flags)
		buf.Write(meta.Head)
		buf.Write(meta.Tail)
		buf.Write(meta.V1)
	default:
		return nil, fmt.Errorf("unknown metadata type %T", m)
	}
	return buf.Bytes(), nil
}

// decodeMetadata reads a FrozenFile's format-specific metadata section
// for the given format_id.
func decodeMetadata(formatID uint8, r *bytes.Reader) (format.Metadata, error) {
	switch formatID {
	case constants.FormatGeneric:
		return format.GenericMetadata{}, nil

	case constants.FormatFLAC:
		count, err := readUint8(r)
		if err != nil {
			return nil, errTruncated
		}
		blocks := make([]format.FlacBlock, 0, count)
		for i := 0; i < int(count); i++ {
			t, err := readUint8(r)
			if err != nil {
				return nil, errTruncated
			}
			size, err := readUint32(r)
			if err != nil {
				return nil, errTruncated
			}
			data := make([]byte, size)
			if _, err := readFull(r, data); err != nil {
				return nil, errTruncated
			}
			blocks = append(blocks, format.FlacBlock{Type: goflac.BlockType(t), Data: data})
		}
		return format.FlacMetadata{Blocks: blocks}, nil

	case constants.FormatMP3:
		flags, err := readUint8(r)
		if err != nil {
			return nil, errTruncated
		}
		meta := format.Mp3Metadata{}
		if flags&0x01 != 0 {
			head, err := readID3v2Region(r)
			if err != nil {
				return nil, fmt.Errorf("read id3v2 head: %w", err)
			}
			meta.Head = head
		}
		if flags&0x02 != 0 {
			tail, err := readID3v2Region(r)
			if err != nil {
				return nil, fmt.Errorf("read id3v2 tail: %w", err)
			}
			meta.Tail = tail
		}
		if flags&0x04 != 0 {
			v1 := make([]byte, 128)
			if _, err := readFull(r, v1); err != nil {
				return nil, errTruncated
			}
			meta.V1 = v1
		}
		return meta, nil

	default:
		return nil, fmt.Errorf("unknown format_id %d", formatID)
	}
}

// readID3v2Region reads a self-describing ID3v2 header/body/footer blob:
// the 10-byte header declares its own total length.
func readID3v2Region(r *bytes.Reader) ([]byte, error) {
	header := make([]byte, 10)
	if _, err := readFull(r, header); err != nil {
		return nil, errTruncated
	}
	size := uint32(header[6])<<21 | uint32(header[7])<<14 | uint32(header[8])<<7 | uint32(header[9])
	total := 10 + int(size)
	if header[5]&0x10 != 0 {
		total += 10
	}
	rest := make([]byte, total-10)
	if _, err := readFull(r, rest); err != nil {
		return nil, errTruncated
	}
	return append(header, rest...), nil
}

func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

func readCString(r *bytes.Reader) (string, error) {
	var out bytes.Buffer
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", errTruncated
		}
		if b == 0 {
			return out.String(), nil
		}
		out.WriteByte(b)
	}
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeFloat64(buf *bytes.Buffer, v float64) {
	writeUint64(buf, math.Float64bits(v))
}

func readUint8(r *bytes.Reader) (uint8, error) {
	return r.ReadByte()
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readFloat64(r *bytes.Reader) (float64, error) {
	v, err := readUint64(r)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, errTruncated
	}
	return n, nil
}
