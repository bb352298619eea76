package checksumcache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cesargomez89/freezetag/internal/constants"
)

// encode serializes the cache per: version:u8 | *{device:u32be, inode:u64be,
// mtime:f64, checksum:20, metadata_len:u32be, metadata_info:(count:u8 |
// (type:CString, size:u32be)*)}.
func encode(entries map[key]Entry) []byte {
	var buf bytes.Buffer
	buf.WriteByte(constants.ChecksumCacheVersion)

	for k, e := range entries {
		writeUint32(&buf, k.Device)
		writeUint64(&buf, k.Inode)
		writeUint64(&buf, math.Float64bits(e.Mtime))
		buf.Write(e.Checksum[:])
		writeUint32(&buf, e.MetadataLen)

		buf.WriteByte(byte(len(e.MetadataInfo)))
		for _, info := range e.MetadataInfo {
			buf.WriteString(info.Type)
			buf.WriteByte(0)
			writeUint32(&buf, info.Size)
		}
	}

	return buf.Bytes()
}

func decode(data []byte) (map[key]Entry, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty cache file")
	}
	if version != constants.ChecksumCacheVersion {
		return nil, fmt.Errorf("unsupported checksum cache version %d", version)
	}

	entries := make(map[key]Entry)
	for r.Len() > 0 {
		var k key
		var e Entry

		device, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		k.Device = device

		inode, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		k.Inode = inode

		mtimeBits, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		e.Mtime = math.Float64frombits(mtimeBits)

		if _, err := readFull(r, e.Checksum[:]); err != nil {
			return nil, err
		}

		metaLen, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		e.MetadataLen = metaLen

		count, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		e.MetadataInfo = make([]MetadataInfo, 0, count)
		for i := 0; i < int(count); i++ {
			typ, err := readCString(r)
			if err != nil {
				return nil, err
			}
			size, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			e.MetadataInfo = append(e.MetadataInfo, MetadataInfo{Type: typ, Size: size})
		}

		entries[k] = e
	}

	return entries, nil
}

func readCString(r *bytes.Reader) (string, error) {
	var out bytes.Buffer
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("truncated cstring")
		}
		if b == 0 {
			return out.String(), nil
		}
		out.WriteByte(b)
	}
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

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, fmt.Errorf("truncated checksum cache entry")
	}
	return n, nil
}
