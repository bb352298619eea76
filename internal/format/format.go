// Package format parses the audio containers freezetag understands well
// enough to split each file losslessly into raw audio and tag metadata.
// Every format here satisfies the same narrow contract: strip the tags off,
// hand back something that can restore them bit-for-bit, and report a
// checksum of the audio alone.
package format

import (
	"crypto/sha1"
	"path/filepath"
	"strings"

	"github.com/cesargomez89/freezetag/internal/constants"
)

// Metadata is the tag-region payload a File returns from Strip and accepts
// back via Restore. It carries no audio bytes of its own.
type Metadata interface {
	// FormatID reports which wire format_id (constants.FormatFLAC etc.)
	// this metadata belongs to.
	FormatID() uint8
	// Empty reports whether this is the "no tags present" case.
	Empty() bool
}

// File is a parsed, in-memory music (or opaque) file. Strip and Restore
// mutate the file's own bytes; Bytes reflects whatever state was last set.
type File interface {
	FormatID() uint8
	// Strip removes the tag regions and returns them, leaving the file's
	// in-memory bytes holding only the raw audio framing.
	Strip() (Metadata, error)
	// Restore re-attaches a previously stripped Metadata, or a fresh one
	// built from a freezetag entry.
	Restore(Metadata) error
	// Checksum is the SHA-1 of the audio alone (the whole content for
	// generic files); it is the same before and after Strip.
	Checksum() ([20]byte, error)
	// Bytes returns the file's current on-disk representation.
	Bytes() []byte
}

// Detect classifies path by extension. Anything not recognized as FLAC or
// MP3 is Generic.
func Detect(path string) uint8 {
	switch strings.ToLower(filepath.Ext(path)) {
	case constants.ExtFLAC:
		return constants.FormatFLAC
	case constants.ExtMP3:
		return constants.FormatMP3
	default:
		return constants.FormatGeneric
	}
}

// Parse reads raw and returns the File implementation matching path's
// detected format.
func Parse(path string, raw []byte) (File, error) {
	switch Detect(path) {
	case constants.FormatFLAC:
		return parseFLAC(raw)
	case constants.FormatMP3:
		return parseMP3(raw), nil
	default:
		return newGenericFile(raw), nil
	}
}

func sha1Sum(b []byte) [20]byte {
	return sha1.Sum(b)
}
