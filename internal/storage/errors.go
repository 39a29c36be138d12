package storage

import (
	"stash/internal/crypto"
	"stash/internal/store"
)

// Errors returned by backends and the factory. Match with errors.Is; OS
// causes (fs.ErrNotExist, fs.ErrPermission) stay in the chain.
var (
	ErrNotFound    = store.ErrNotFound
	ErrIO          = store.ErrIO
	ErrBadFormat   = store.ErrBadFormat
	ErrCorrupt     = store.ErrCorrupt
	ErrBadArgument = store.ErrBadArgument
	// ErrShortFrame is returned alongside ErrBadFormat when an encrypted
	// file is too short to hold its IV.
	ErrShortFrame = crypto.ErrShortFrame
)
