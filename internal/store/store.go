package store

import "errors"

// Store is the medium holding a single opaque byte payload.
// The file implementation writes a flat file; the bolt implementation keeps
// the payload under one key of an embedded database. Callers above this
// layer never see which one they got.
type Store interface {
	// Read returns the whole payload. A missing payload is ErrNotFound.
	Read() ([]byte, error)
	// Write replaces the payload.
	Write(data []byte) error
	// Remove deletes the payload. Removing a missing payload is not an error.
	Remove() error
	// Path is the on-disk location of the payload.
	Path() string
}

// Error taxonomy shared by the storage stack.
var (
	ErrNotFound    = errors.New("not found")
	ErrIO          = errors.New("i/o failure")
	ErrBadFormat   = errors.New("bad format")
	ErrCorrupt     = errors.New("corrupt data")
	ErrBadArgument = errors.New("bad argument")
)
