package file

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"stash/internal/store"
)

// DefaultMode imposes no permissions: a new file is created 0666 less the
// process umask and an existing file keeps the mode it has.
const DefaultMode os.FileMode = 0

// PrivateMode restricts a file to its owner.
const PrivateMode os.FileMode = 0o600

// createPerm is what a new file asks for under DefaultMode.
const createPerm os.FileMode = 0o666

// Store implements store.Store on a single flat file.
type Store struct {
	path string
	mode os.FileMode
}

// New returns a file store at path. A non-zero mode is applied on every
// write regardless of umask or existing permissions.
func New(path string, mode os.FileMode) *Store {
	return &Store{path: path, mode: mode}
}

// Path returns the file path.
func (s *Store) Path() string { return s.path }

// Mode returns the enforced permission bits, or DefaultMode.
func (s *Store) Mode() os.FileMode { return s.mode }

// Read returns the file contents.
func (s *Store) Read() ([]byte, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", store.ErrNotFound, s.path, err)
		}
		return nil, fmt.Errorf("%w: opening %s: %w", store.ErrIO, s.path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", store.ErrIO, s.path, err)
	}
	return data, nil
}

// Write replaces the file contents. The bytes go to a sibling temp file
// that already carries the final mode, which is then renamed over the
// target, so the payload is never visible with looser permissions and
// never half-written.
func (s *Store) Write(data []byte) error {
	perm, enforce := s.perm()

	dir := filepath.Dir(s.path)
	tmp := filepath.Join(dir, filepath.Base(s.path)+".tmp-"+uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("%w: creating temp file in %s: %w", store.ErrIO, dir, err)
	}
	defer func() { _ = os.Remove(tmp) }() // no-op after a successful rename

	// The umask only narrows; an enforced mode must come out exact.
	if enforce {
		if err := f.Chmod(perm); err != nil {
			_ = f.Close()
			return fmt.Errorf("%w: chmod %s: %w", store.ErrIO, tmp, err)
		}
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: writing %s: %w", store.ErrIO, tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: syncing %s: %w", store.ErrIO, tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", store.ErrIO, tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: replacing %s: %w", store.ErrIO, s.path, err)
	}
	return nil
}

// perm picks the mode for the next write. Under DefaultMode an existing
// target's bits are carried over; otherwise the umask decides.
func (s *Store) perm() (os.FileMode, bool) {
	if s.mode != DefaultMode {
		return s.mode, true
	}
	if info, err := os.Stat(s.path); err == nil {
		return info.Mode().Perm(), true
	}
	return createPerm, false
}

// Remove deletes the file.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: removing %s: %w", store.ErrIO, s.path, err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
