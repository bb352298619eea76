// Package ftagerr defines the error kinds named in the freezetag error
// handling design: sentinel values usable with errors.Is for conditions
// the engine and filesystem must distinguish, plus a path-annotated
// wrapper for parse and I/O failures.
package ftagerr

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Wrap these with fmt.Errorf("...: %w", Err...) or
// return them directly; callers distinguish kinds with errors.Is.
var (
	// ErrInputNotFound: the requested directory or .ftag file does not exist.
	ErrInputNotFound = errors.New("input not found")

	// ErrVersionTooNew: a freezetag declares a version newer than this
	// build supports.
	ErrVersionTooNew = errors.New("freezetag version too new")

	// ErrUnrestoredState: a *.ftag-tmp directory remains from an
	// interrupted thaw; freeze refuses to run until it's resolved.
	ErrUnrestoredState = errors.New("unrestored freezetag temp directory present")

	// ErrNoMusic: a freeze walk found zero recognized music files.
	ErrNoMusic = errors.New("no music files found")

	// ErrAmbiguousSelection: more than one .ftag file was found and no
	// disambiguating choice was supplied.
	ErrAmbiguousSelection = errors.New("multiple freezetags found, selection required")

	// ErrMissingMusic: the thaw safety pass found a frozen music entry
	// with no corresponding file on disk.
	ErrMissingMusic = errors.New("music file missing from source")

	// ErrPathMismatch: the thaw safety pass found that the common path of
	// recognized source files differs from the thaw root.
	ErrPathMismatch = errors.New("thaw source structure does not match freezetag root")
)

// PathError wraps a parse or I/O failure with the operation and path that
// triggered it, mirroring the stdlib's os.PathError so the original cause
// remains visible to errors.Is/errors.As.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// ParseFailure wraps a music-file or freezetag parse error.
func ParseFailure(path string, err error) error {
	return &PathError{Op: "parse", Path: path, Err: err}
}

// IOFailure wraps a read/write/rename failure.
func IOFailure(op, path string, err error) error {
	return &PathError{Op: op, Path: path, Err: err}
}
