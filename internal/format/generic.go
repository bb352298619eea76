package format

import "github.com/cesargomez89/freezetag/internal/constants"

// GenericMetadata is always empty; generic files carry no tag region.
type GenericMetadata struct{}

func (GenericMetadata) FormatID() uint8 { return constants.FormatGeneric }
func (GenericMetadata) Empty() bool     { return true }

// genericFile treats its contents as opaque. Strip and Restore are no-ops;
// the checksum covers the whole file.
type genericFile struct {
	data []byte
}

func newGenericFile(data []byte) *genericFile {
	return &genericFile{data: data}
}

func (f *genericFile) FormatID() uint8 { return constants.FormatGeneric }

func (f *genericFile) Strip() (Metadata, error) {
	return GenericMetadata{}, nil
}

func (f *genericFile) Restore(Metadata) error {
	return nil
}

func (f *genericFile) Checksum() ([20]byte, error) {
	return sha1Sum(f.data), nil
}

func (f *genericFile) Bytes() []byte {
	return f.data
}
